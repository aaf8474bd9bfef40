package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 表示请求的资源不存在或不属于当前用户。
	ErrNotFound = errors.New("not found")
	// ErrInvalidState 表示当前状态不允许执行该操作。
	ErrInvalidState = errors.New("invalid state")
	// ErrProviderFailure 表示 AI 平台调用失败。
	ErrProviderFailure = errors.New("ai provider failure")
	// ErrParseFailure 表示 AI 返回内容无法解析或缺少必要字段。
	ErrParseFailure = errors.New("ai response parse failure")
	// ErrInvalidDiary 表示日记输入不合法。
	ErrInvalidDiary = errors.New("invalid diary input")
	// ErrImageUnsupported 表示当前 AI 平台不支持图片生成。
	ErrImageUnsupported = errors.New("image generation not supported by provider")

	ErrDiaryNotFound    = fmt.Errorf("diary %w", ErrNotFound)
	ErrSessionNotFound  = fmt.Errorf("adventure session %w", ErrNotFound)
	ErrPostcardNotFound = fmt.Errorf("postcard %w", ErrNotFound)
)
