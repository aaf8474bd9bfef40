package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", raw: "好的：\n```json\n{\"a\": 1}\n```\n希望有帮助", want: `{"a": 1}`},
		{name: "fenced without language", raw: "```\n{\"a\": [1, 2]}\n```", want: `{"a": [1, 2]}`},
		{name: "surrounded by prose", raw: `结果如下 {"a": {"b": 2}} 以上`, want: `{"a": {"b": 2}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONObject(tt.raw)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSONObjectRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "没有 JSON", "{not json}", "[1,2,3]"} {
		_, err := extractJSONObject(raw)
		require.True(t, errors.Is(err, ErrParseFailure), "input %q", raw)
	}
}

func TestRequireJSONKeys(t *testing.T) {
	payload := `{"message": "hi", "image_prompt": "  ", "score_changes": {"stress_level_change": 0}, "empty": null}`

	require.NoError(t, requireJSONKeys(payload, "message", "score_changes.stress_level_change"))

	err := requireJSONKeys(payload, "image_prompt", "empty", "missing")
	require.True(t, errors.Is(err, ErrParseFailure))
	require.Contains(t, err.Error(), "image_prompt, empty, missing")
}
