package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSONObject 从模型输出中提取 JSON 对象：
// 先尝试整体解析，再尝试 markdown 代码块，最后取第一个 { 到最后一个 }。
func extractJSONObject(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty response", ErrParseFailure)
	}

	if gjson.Valid(trimmed) && strings.HasPrefix(trimmed, "{") {
		return trimmed, nil
	}

	if match := fencedJSONPattern.FindStringSubmatch(trimmed); len(match) == 2 && gjson.Valid(match[1]) {
		return match[1], nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if gjson.Valid(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: no json object in response", ErrParseFailure)
}

// requireJSONKeys 校验 JSON 中存在所有必需字段，路径使用 gjson 语法。
func requireJSONKeys(payload string, keys ...string) error {
	var missing []string
	for _, key := range keys {
		value := gjson.Get(payload, key)
		if !value.Exists() || value.Type == gjson.Null {
			missing = append(missing, key)
			continue
		}
		if value.Type == gjson.String && strings.TrimSpace(value.String()) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrParseFailure, strings.Join(missing, ", "))
	}
	return nil
}
