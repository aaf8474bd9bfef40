package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/moodfox/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// AIProviderOpenAI 表示使用 OpenAI 能力。
	AIProviderOpenAI = "openai"
	// AIProviderDeepSeek 表示使用 DeepSeek 能力，仅支持文本。
	AIProviderDeepSeek = "deepseek"
	// AIProviderDoubao 表示使用火山方舟豆包模型，支持文本与图片。
	AIProviderDoubao = "doubao"
)

var supportedAIProviders = []string{AIProviderOpenAI, AIProviderDeepSeek, AIProviderDoubao}

var defaultAIBaseURLs = map[string]string{
	AIProviderOpenAI:   "https://api.openai.com/v1",
	AIProviderDeepSeek: "https://api.deepseek.com/v1",
	AIProviderDoubao:   "https://ark.cn-beijing.volces.com/api/v3",
}

var aiProviderLabels = map[string]string{
	AIProviderOpenAI:   "OpenAI",
	AIProviderDeepSeek: "DeepSeek",
	AIProviderDoubao:   "Doubao",
}

// SystemSettings 描述可在运行期调整的 AI 接入配置。
type SystemSettings struct {
	AIProvider     string `json:"ai_provider"`
	OpenAIAPIKey   string `json:"openai_api_key"`
	DeepSeekAPIKey string `json:"deepseek_api_key"`
	DoubaoAPIKey   string `json:"doubao_api_key"`
	TextModel      string `json:"text_model"`
	ImageModel     string `json:"image_model"`
}

// APIKey 返回指定平台的 API Key。
func (s SystemSettings) APIKey(provider string) string {
	switch provider {
	case AIProviderDeepSeek:
		return strings.TrimSpace(s.DeepSeekAPIKey)
	case AIProviderDoubao:
		return strings.TrimSpace(s.DoubaoAPIKey)
	default:
		return strings.TrimSpace(s.OpenAIAPIKey)
	}
}

// Masked 返回隐藏 API Key 的副本，用于接口输出。
func (s SystemSettings) Masked() SystemSettings {
	s.OpenAIAPIKey = maskSecret(s.OpenAIAPIKey)
	s.DeepSeekAPIKey = maskSecret(s.DeepSeekAPIKey)
	s.DoubaoAPIKey = maskSecret(s.DoubaoAPIKey)
	return s
}

func maskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	runes := []rune(secret)
	if len(runes) <= 6 {
		return "******"
	}
	return string(runes[:3]) + "******" + string(runes[len(runes)-3:])
}

// ErrAIAPIKeyMissing 表示未提供必需的 AI 平台 API Key。
var ErrAIAPIKeyMissing = errors.New("api key is required")

// SystemSettingsInput 用于更新系统设置。
type SystemSettingsInput struct {
	AIProvider     string `json:"ai_provider"`
	OpenAIAPIKey   string `json:"openai_api_key"`
	DeepSeekAPIKey string `json:"deepseek_api_key"`
	DoubaoAPIKey   string `json:"doubao_api_key"`
	TextModel      string `json:"text_model"`
	ImageModel     string `json:"image_model"`
}

// SystemSettingService 提供系统设置的读取与更新能力。
// 数据库中的非空值覆盖环境变量提供的默认值。
type SystemSettingService struct {
	db         *gorm.DB
	defaults   SystemSettings
	httpClient httpDoer
	baseURLs   map[string]string
}

// NewSystemSettingService 构造 SystemSettingService。
func NewSystemSettingService(gdb *gorm.DB, defaults SystemSettings) *SystemSettingService {
	if provider := normalizeAIProvider(defaults.AIProvider); provider != "" {
		defaults.AIProvider = provider
	} else {
		defaults.AIProvider = AIProviderOpenAI
	}

	baseURLs := make(map[string]string, len(defaultAIBaseURLs))
	for k, v := range defaultAIBaseURLs {
		baseURLs[k] = v
	}

	return &SystemSettingService{
		db:         gdb,
		defaults:   defaults,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURLs:   baseURLs,
	}
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var settingKeys = []string{
	db.SettingKeyAIProvider,
	db.SettingKeyOpenAIAPIKey,
	db.SettingKeyDeepSeekAPIKey,
	db.SettingKeyDoubaoAPIKey,
	db.SettingKeyTextModel,
	db.SettingKeyImageModel,
}

// GetSettings 读取系统设置，如未设置将返回默认值。
func (s *SystemSettingService) GetSettings(ctx context.Context) (SystemSettings, error) {
	result := s.defaults

	var records []db.SystemSetting
	if err := s.db.WithContext(ctx).Where("key IN ?", settingKeys).Find(&records).Error; err != nil {
		return result, fmt.Errorf("load system settings: %w", err)
	}

	for _, record := range records {
		value := strings.TrimSpace(record.Value)
		if value == "" {
			continue
		}
		switch record.Key {
		case db.SettingKeyAIProvider:
			if provider := normalizeAIProvider(value); provider != "" {
				result.AIProvider = provider
			}
		case db.SettingKeyOpenAIAPIKey:
			result.OpenAIAPIKey = value
		case db.SettingKeyDeepSeekAPIKey:
			result.DeepSeekAPIKey = value
		case db.SettingKeyDoubaoAPIKey:
			result.DoubaoAPIKey = value
		case db.SettingKeyTextModel:
			result.TextModel = value
		case db.SettingKeyImageModel:
			result.ImageModel = value
		}
	}

	return result, nil
}

// UpdateSettings 保存系统设置。留空的 API Key 视为保留原值。
func (s *SystemSettingService) UpdateSettings(ctx context.Context, input SystemSettingsInput) (SystemSettings, error) {
	provider := normalizeAIProvider(input.AIProvider)
	if provider == "" {
		provider = s.defaults.AIProvider
	}

	values := map[string]string{
		db.SettingKeyAIProvider: provider,
		db.SettingKeyTextModel:  strings.TrimSpace(input.TextModel),
		db.SettingKeyImageModel: strings.TrimSpace(input.ImageModel),
	}
	if key := strings.TrimSpace(input.OpenAIAPIKey); key != "" {
		values[db.SettingKeyOpenAIAPIKey] = key
	}
	if key := strings.TrimSpace(input.DeepSeekAPIKey); key != "" {
		values[db.SettingKeyDeepSeekAPIKey] = key
	}
	if key := strings.TrimSpace(input.DoubaoAPIKey); key != "" {
		values[db.SettingKeyDoubaoAPIKey] = key
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range settingKeys {
			value, ok := values[key]
			if !ok {
				continue
			}
			if err := upsertSetting(tx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SystemSettings{}, fmt.Errorf("update system settings: %w", err)
	}

	return s.GetSettings(ctx)
}

func upsertSetting(tx *gorm.DB, key, value string) error {
	setting := db.SystemSetting{Key: key, Value: value}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      value,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&setting).Error; err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

// SetHTTPClient 替换用于访问第三方服务的 HTTP 客户端，主要面向测试场景。
func (s *SystemSettingService) SetHTTPClient(client httpDoer) {
	if client == nil {
		s.httpClient = &http.Client{Timeout: 10 * time.Second}
		return
	}
	s.httpClient = client
}

// SetBaseURL 覆盖指定平台的基础地址，便于测试或自定义代理。
func (s *SystemSettingService) SetBaseURL(provider, base string) {
	if provider = normalizeAIProvider(provider); provider == "" {
		return
	}
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if trimmed == "" {
		trimmed = defaultAIBaseURLs[provider]
	}
	s.baseURLs[provider] = trimmed
}

// BaseURL 返回指定平台当前生效的基础地址。
func (s *SystemSettingService) BaseURL(provider string) string {
	if base := strings.TrimSpace(s.baseURLs[provider]); base != "" {
		return base
	}
	return defaultAIBaseURLs[AIProviderOpenAI]
}

// TestAIConnection 调用指定 AI 平台的模型接口验证 API Key 的有效性。
func (s *SystemSettingService) TestAIConnection(ctx context.Context, provider, apiKey string) error {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return ErrAIAPIKeyMissing
	}

	prov := normalizeAIProvider(provider)
	if prov == "" {
		prov = AIProviderOpenAI
	}
	label := aiProviderLabels[prov]

	client := s.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	endpoint := strings.TrimRight(s.BaseURL(prov), "/") + "/models"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", strings.ToLower(label), err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", "moodfox-admin/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s 接口失败: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("%s 返回错误：%s (%s)", label, resp.Status, msg)
		}
		return fmt.Errorf("%s 返回错误：%s", label, resp.Status)
	}

	return nil
}

func normalizeAIProvider(provider string) string {
	trimmed := strings.ToLower(strings.TrimSpace(provider))
	for _, candidate := range supportedAIProviders {
		if trimmed == candidate {
			return candidate
		}
	}
	return ""
}
