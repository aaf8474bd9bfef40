package service

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// MessageRenderer 将明信片正文渲染为安全的 HTML，保留段落与换行。
type MessageRenderer struct {
	markdown  goldmark.Markdown
	sanitizer *bluemonday.Policy
}

// NewMessageRenderer 构造 MessageRenderer。
func NewMessageRenderer() *MessageRenderer {
	return &MessageRenderer{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.Linkify),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps(), gmhtml.WithXHTML()),
		),
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// Render 渲染失败时退回转义后的纯文本。
func (r *MessageRenderer) Render(message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(message), &buf); err != nil {
		return "<p>" + strings.ReplaceAll(html.EscapeString(message), "\n", "<br/>") + "</p>"
	}
	return strings.TrimSpace(r.sanitizer.Sanitize(buf.String()))
}
