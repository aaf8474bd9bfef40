package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestAIClient(t *testing.T, settings SystemSettings, handler func(*http.Request) (*http.Response, error)) *AIClient {
	t.Helper()
	svc := NewSystemSettingService(openServiceTestDB(t), settings)
	svc.SetBaseURL(AIProviderOpenAI, "https://openai.test/v1")
	svc.SetBaseURL(AIProviderDeepSeek, "https://deepseek.test/v1")
	svc.SetBaseURL(AIProviderDoubao, "https://ark.test/api/v3")

	client := NewAIClient(svc, time.Minute)
	client.SetHTTPClient(fakeHTTPClient{handler: handler})
	return client
}

func TestAIClientUsesConfiguredTimeout(t *testing.T) {
	client := NewAIClient(nil, 0)
	httpClient, ok := client.http.(*http.Client)
	if !ok {
		t.Fatalf("expected *http.Client, got %T", client.http)
	}
	if httpClient.Timeout != 120*time.Second {
		t.Fatalf("expected default timeout 120s, got %v", httpClient.Timeout)
	}

	client = NewAIClient(nil, 30*time.Second)
	if got := client.http.(*http.Client).Timeout; got != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", got)
	}
}

func TestAIClientGenerateText(t *testing.T) {
	var captured chatCompletionRequest
	client := newTestAIClient(t, SystemSettings{AIProvider: AIProviderDeepSeek, DeepSeekAPIKey: "ds-key"}, func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "https://deepseek.test/v1/chat/completions", req.URL.String())
		require.Equal(t, "Bearer ds-key", req.Header.Get("Authorization"))
		body, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		return jsonResponse(http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"  你好  "}}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`), nil
	})

	content, err := client.GenerateText(context.Background(), TextRequest{
		Kind:         "TEST",
		SystemPrompt: "system",
		UserPrompt:   "user",
		MaxTokens:    64,
		Temperature:  0.5,
	})
	require.NoError(t, err)
	require.Equal(t, "你好", content)
	require.Equal(t, defaultDeepSeekTextModel, captured.Model)
	require.Len(t, captured.Messages, 2)
	require.Equal(t, "system", captured.Messages[0].Role)
	require.Equal(t, 64, captured.MaxTokens)
}

func TestAIClientGenerateTextErrors(t *testing.T) {
	client := newTestAIClient(t, SystemSettings{OpenAIAPIKey: "sk"}, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`), nil
	})
	_, err := client.GenerateText(context.Background(), TextRequest{UserPrompt: "hi"})
	require.True(t, errors.Is(err, ErrProviderFailure))
	require.Contains(t, err.Error(), "rate limited")

	missing := newTestAIClient(t, SystemSettings{}, func(*http.Request) (*http.Response, error) {
		t.Fatal("request should not be sent without api key")
		return nil, nil
	})
	_, err = missing.GenerateText(context.Background(), TextRequest{UserPrompt: "hi"})
	require.True(t, errors.Is(err, ErrAIAPIKeyMissing))

	empty := newTestAIClient(t, SystemSettings{OpenAIAPIKey: "sk"}, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"choices":[]}`), nil
	})
	_, err = empty.GenerateText(context.Background(), TextRequest{UserPrompt: "hi"})
	require.True(t, errors.Is(err, ErrProviderFailure))
}

func TestAIClientGenerateImage(t *testing.T) {
	client := newTestAIClient(t, SystemSettings{AIProvider: AIProviderDoubao, DoubaoAPIKey: "ark", ImageModel: "seedream-custom"}, func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "https://ark.test/api/v3/images/generations", req.URL.String())
		var payload imageGenerationRequest
		body, _ := io.ReadAll(req.Body)
		require.NoError(t, json.NewDecoder(bytes.NewReader(body)).Decode(&payload))
		require.Equal(t, "seedream-custom", payload.Model)
		require.Equal(t, "url", payload.ResponseFormat)
		require.Equal(t, "512x512", payload.Size)
		return jsonResponse(http.StatusOK, `{"data":[{"url":"https://cdn.test/fox.png"}]}`), nil
	})
	client.SetImageSize("512x512")

	url, err := client.GenerateImage(context.Background(), "小狐狸")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.test/fox.png", url)
}

func TestAIClientImageUnsupportedForDeepSeek(t *testing.T) {
	client := newTestAIClient(t, SystemSettings{AIProvider: AIProviderDeepSeek, DeepSeekAPIKey: "ds", ImageModel: "dall-e-3"}, func(*http.Request) (*http.Response, error) {
		t.Fatal("deepseek image request should not be sent")
		return nil, nil
	})

	_, err := client.GenerateImage(context.Background(), "小狐狸")
	require.True(t, errors.Is(err, ErrImageUnsupported))
}
