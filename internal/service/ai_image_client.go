package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type imageGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type imageGenerationResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateImage 调用 images/generations 接口，返回图片的临时地址。
func (c *AIClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "ai.generate_image")
	defer span.End()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: empty image prompt", ErrProviderFailure)
	}

	endpoint, err := c.resolve(ctx)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if endpoint.imageModel == "" {
		return "", fmt.Errorf("%w: %s", ErrImageUnsupported, endpoint.label)
	}
	span.SetAttributes(
		attribute.String("ai.provider", endpoint.provider),
		attribute.String("ai.model", endpoint.imageModel),
	)

	logAIExchange("IMAGE", "request", prompt)

	payload := imageGenerationRequest{
		Model:          endpoint.imageModel,
		Prompt:         prompt,
		Size:           c.imageSize,
		ResponseFormat: "url",
	}

	respBody, status, err := c.postJSON(ctx, endpoint, "/images/generations", payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var result imageGenerationResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: 解析 %s 图片响应失败: %v", ErrProviderFailure, endpoint.label, err)
	}
	if status >= http.StatusBadRequest {
		err := providerError(endpoint.label, status, result.Error.Message, respBody)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if len(result.Data) == 0 || strings.TrimSpace(result.Data[0].URL) == "" {
		return "", fmt.Errorf("%w: %s 图片接口未返回地址", ErrProviderFailure, endpoint.label)
	}

	url := strings.TrimSpace(result.Data[0].URL)
	logAIExchange("IMAGE", "response", url)
	span.AddEvent("image.generated", trace.WithAttributes(attribute.Int("image.url_len", len(url))))
	return url, nil
}
