package service

import (
	"log"
	"strings"
	"unicode/utf8"
)

const maxAILogSnippetRunes = 512

// logAIExchange 输出 AI 请求与响应的片段，方便排查模型行为。
func logAIExchange(kind, phase, content string) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		log.Printf("[AI %s] %s: <empty>", kind, phase)
		return
	}

	log.Printf("[AI %s] %s (runes=%d): %s", kind, phase, utf8.RuneCountInString(trimmed), truncateRunes(trimmed, maxAILogSnippetRunes))
}

// truncateRunes 按字符截断文本，超出部分以省略号表示。
func truncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "…"
}
