package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/moodfox/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultOpenAITextModel   = "gpt-4o-mini"
	defaultOpenAIImageModel  = "dall-e-3"
	defaultDeepSeekTextModel = "deepseek-chat"
	defaultDoubaoTextModel   = "doubao-seed-1-6-flash-250828"
	defaultDoubaoImageModel  = "doubao-seedream-4-5-251128"
)

// TextRequest 描述一次文本生成请求。Kind 用于日志与链路标记。
type TextRequest struct {
	Kind         string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// TextGenerator 返回模型输出的原始文本。
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// ImageGenerator 根据提示词生成图片并返回远程地址。
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type aiEndpoint struct {
	provider   string
	label      string
	base       string
	apiKey     string
	textModel  string
	imageModel string
}

// AIClient 对接 OpenAI 兼容接口，同时实现 TextGenerator 与 ImageGenerator。
type AIClient struct {
	settings  *SystemSettingService
	http      httpDoer
	imageSize string
	tracer    trace.Tracer
}

// NewAIClient 构造 AI 客户端，timeout 作用于单次 HTTP 请求。
func NewAIClient(settings *SystemSettingService, timeout time.Duration) *AIClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AIClient{
		settings:  settings,
		http:      &http.Client{Timeout: timeout},
		imageSize: "1024x1024",
		tracer:    telemetry.Tracer("ai"),
	}
}

// SetHTTPClient 替换底层 HTTP 客户端，主要面向测试场景。
func (c *AIClient) SetHTTPClient(client httpDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: 120 * time.Second}
		return
	}
	c.http = client
}

// SetImageSize 设置生成图片的尺寸。
func (c *AIClient) SetImageSize(size string) {
	if size = strings.TrimSpace(size); size != "" {
		c.imageSize = size
	}
}

func (c *AIClient) resolve(ctx context.Context) (aiEndpoint, error) {
	settings, err := c.settings.GetSettings(ctx)
	if err != nil {
		return aiEndpoint{}, err
	}

	provider := normalizeAIProvider(settings.AIProvider)
	if provider == "" {
		provider = AIProviderOpenAI
	}

	endpoint := aiEndpoint{
		provider: provider,
		label:    aiProviderLabels[provider],
		base:     c.settings.BaseURL(provider),
		apiKey:   settings.APIKey(provider),
	}

	switch provider {
	case AIProviderDeepSeek:
		endpoint.textModel = defaultDeepSeekTextModel
	case AIProviderDoubao:
		endpoint.textModel = defaultDoubaoTextModel
		endpoint.imageModel = defaultDoubaoImageModel
	default:
		endpoint.textModel = defaultOpenAITextModel
		endpoint.imageModel = defaultOpenAIImageModel
	}
	if model := strings.TrimSpace(settings.TextModel); model != "" {
		endpoint.textModel = model
	}
	if model := strings.TrimSpace(settings.ImageModel); model != "" && provider != AIProviderDeepSeek {
		endpoint.imageModel = model
	}

	if endpoint.apiKey == "" {
		return endpoint, ErrAIAPIKeyMissing
	}
	return endpoint, nil
}

// GenerateText 调用 chat/completions 接口。
func (c *AIClient) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	ctx, span := c.tracer.Start(ctx, "ai.generate_text", trace.WithAttributes(
		attribute.String("ai.kind", req.Kind),
	))
	defer span.End()

	endpoint, err := c.resolve(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(
		attribute.String("ai.provider", endpoint.provider),
		attribute.String("ai.model", endpoint.textModel),
	)

	content, completion, err := c.callChat(ctx, endpoint, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(
		attribute.Int("ai.prompt_tokens", completion.Usage.PromptTokens),
		attribute.Int("ai.completion_tokens", completion.Usage.CompletionTokens),
	)
	return content, nil
}

func (c *AIClient) callChat(ctx context.Context, endpoint aiEndpoint, req TextRequest) (string, chatCompletionResponse, error) {
	var completion chatCompletionResponse

	maxTokens := req.MaxTokens
	if maxTokens < 0 {
		maxTokens = 0
	}

	messages := make([]chatMessage, 0, 2)
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	payload := chatCompletionRequest{
		Model:       endpoint.textModel,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	respBody, status, err := c.postJSON(ctx, endpoint, "/chat/completions", payload)
	if err != nil {
		return "", completion, err
	}

	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", completion, fmt.Errorf("%w: 解析 %s 响应失败: %v", ErrProviderFailure, endpoint.label, err)
	}

	if status >= http.StatusBadRequest {
		return "", completion, providerError(endpoint.label, status, completion.Error.Message, respBody)
	}

	if len(completion.Choices) == 0 {
		return "", completion, fmt.Errorf("%w: %s 接口未返回结果", ErrProviderFailure, endpoint.label)
	}

	return strings.TrimSpace(completion.Choices[0].Message.Content), completion, nil
}

func (c *AIClient) postJSON(ctx context.Context, endpoint aiEndpoint, path string, payload any) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("构造请求失败: %w", err)
	}

	url := strings.TrimRight(endpoint.base, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("创建 %s 请求失败: %w", endpoint.label, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+endpoint.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "moodfox-ai/1.0")

	client := c.http
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: 请求 %s 接口失败: %v", ErrProviderFailure, endpoint.label, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: 读取 %s 响应失败: %v", ErrProviderFailure, endpoint.label, err)
	}
	return respBody, resp.StatusCode, nil
}

func providerError(label string, status int, message string, body []byte) error {
	errMsg := strings.TrimSpace(message)
	if errMsg == "" {
		errMsg = strings.TrimSpace(string(body))
	}
	if errMsg == "" {
		errMsg = http.StatusText(status)
	}
	return fmt.Errorf("%w: %s 接口返回错误：%s", ErrProviderFailure, label, errMsg)
}
