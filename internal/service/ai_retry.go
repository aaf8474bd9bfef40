package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type retryPolicy struct {
	attempts int
	interval time.Duration
}

// generateJSON 调用文本模型并解析 JSON，传输失败、解析失败和 decode 校验失败都会按固定间隔重试。
// decode 只在所有必需字段齐全时调用。
func generateJSON(ctx context.Context, gen TextGenerator, policy retryPolicy, req TextRequest, required []string, decode func(payload []byte) error) error {
	if gen == nil {
		return fmt.Errorf("%w: text generator not configured", ErrProviderFailure)
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		logAIExchange(req.Kind, fmt.Sprintf("request #%d", attempt), req.UserPrompt)

		content, err := gen.GenerateText(ctx, req)
		if err != nil {
			if errors.Is(err, ErrAIAPIKeyMissing) {
				return struct{}{}, backoff.Permanent(err)
			}
			logAIExchange(req.Kind, fmt.Sprintf("error #%d", attempt), err.Error())
			return struct{}{}, err
		}
		logAIExchange(req.Kind, fmt.Sprintf("response #%d", attempt), content)

		payload, err := extractJSONObject(content)
		if err != nil {
			return struct{}{}, err
		}
		if err := requireJSONKeys(payload, required...); err != nil {
			return struct{}{}, err
		}
		if err := decode([]byte(payload)); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.interval)),
		backoff.WithMaxTries(uint(max(policy.attempts, 1))),
	)
	if err != nil {
		return fmt.Errorf("%s 生成失败（共 %d 次尝试）: %w", req.Kind, attempt, err)
	}
	return nil
}
