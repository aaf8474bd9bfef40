package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/moodfox/internal/config"
	"github.com/moodfox/internal/db"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

type client struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
}

func (c *client) do(method, path string, body any) (int, map[string]json.RawMessage) {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	if cookies := rr.Result().Cookies(); len(cookies) > 0 {
		c.cookies = cookies
	}

	out := map[string]json.RawMessage{}
	if rr.Body.Len() > 0 {
		require.NoError(c.t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr.Code, out
}

func decodeField[T any](t *testing.T, body map[string]json.RawMessage, key string) T {
	t.Helper()
	var value T
	require.Contains(t, body, key)
	require.NoError(t, json.Unmarshal(body[key], &value))
	return value
}

func testConfig(t *testing.T) config.AppConfig {
	return config.AppConfig{
		SessionSecret: "test-secret",
		UploadDir:     t.TempDir(),
		UploadURLPath: "/image/postcards",
		DemoUserName:  "fox",
		DemoPassword:  "secret",
		AI: config.AIConfig{
			Provider:         "openai",
			Timeout:          5 * time.Second,
			RetryCount:       1,
			TemplateFallback: true,
			GenerateImages:   true,
		},
		Workers: config.WorkerConfig{PostcardWorkers: 1, ChallengeWorkers: 1, QueueSize: 8},
	}
}

// 未配置 AI 密钥时整条链路走本地模板：分析回退、题目模板、明信片纯文字。
func TestDiaryFlowWithoutAIKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(filepath.Join(t.TempDir(), "app.db"), logger.Silent)
	require.NoError(t, err)

	application, err := Build(testConfig(t), gdb)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, application.Shutdown(ctx))
	})

	c := &client{t: t, handler: application.Router}

	code, _ := c.do(http.MethodPost, "/api/login", map[string]string{"username": "fox", "password": "secret"})
	require.Equal(t, http.StatusOK, code)

	code, body := c.do(http.MethodPost, "/api/diaries", map[string]any{
		"content":       "明天要考试，心里一直很紧张",
		"emotion_tags":  []string{"焦虑"},
		"intensity":     7,
		"trigger_event": "期末考试",
	})
	require.Equal(t, http.StatusCreated, code)
	diary := decodeField[db.Diary](t, body, "diary")
	require.NotZero(t, diary.ID)
	require.False(t, diary.ScoreApplied)

	code, body = c.do(http.MethodPost, fmt.Sprintf("/api/diaries/%d/analyze", diary.ID), nil)
	require.Equal(t, http.StatusOK, code)
	analysis := decodeField[struct {
		AlreadyApplied bool `json:"already_applied"`
		UsedFallback   bool `json:"used_fallback"`
	}](t, body, "analysis")
	require.False(t, analysis.AlreadyApplied)
	require.True(t, analysis.UsedFallback)

	code, body = c.do(http.MethodPost, fmt.Sprintf("/api/diaries/%d/analyze", diary.ID), nil)
	require.Equal(t, http.StatusOK, code)
	again := decodeField[struct {
		AlreadyApplied bool `json:"already_applied"`
	}](t, body, "analysis")
	require.True(t, again.AlreadyApplied)

	sessionPath := fmt.Sprintf("/api/adventures/session/%d", diary.ID)
	require.Eventually(t, func() bool {
		code, body := c.do(http.MethodGet, sessionPath, nil)
		return code == http.StatusOK && decodeField[bool](t, body, "ready")
	}, 5*time.Second, 20*time.Millisecond)

	code, body = c.do(http.MethodGet, sessionPath, nil)
	require.Equal(t, http.StatusOK, code)
	session := decodeField[db.AdventureSession](t, body, "session")
	require.Equal(t, db.AdventureStatusPending, session.Status)
	require.NotEmpty(t, session.Challenges)

	postcardPath := fmt.Sprintf("/api/postcards/by-diary/%d", diary.ID)
	require.Eventually(t, func() bool {
		code, body := c.do(http.MethodGet, postcardPath, nil)
		if code != http.StatusOK {
			return false
		}
		card := decodeField[db.Postcard](t, body, "postcard")
		return card.Status == db.PostcardStatusTextOnly
	}, 5*time.Second, 20*time.Millisecond)

	code, body = c.do(http.MethodGet, "/api/postcards/unread-count", nil)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, decodeField[int64](t, body, "unread"))

	code, _ = c.do(http.MethodGet, "/api/diaries/99999", nil)
	require.Equal(t, http.StatusNotFound, code)
}
