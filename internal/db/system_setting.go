package db

import "gorm.io/gorm"

// SystemSetting 存储可配置的系统级键值对。
type SystemSetting struct {
	gorm.Model
	Key   string `gorm:"size:100;uniqueIndex;not null"`
	Value string `gorm:"type:text"`
}

// TableName 自定义表名以保持命名一致。
func (SystemSetting) TableName() string {
	return "system_settings"
}

const (
	// SettingKeyAIProvider 表示当前使用的 AI 平台。
	SettingKeyAIProvider = "ai_provider"
	// SettingKeyOpenAIAPIKey 表示 OpenAI API Key。
	SettingKeyOpenAIAPIKey = "openai_api_key"
	// SettingKeyDeepSeekAPIKey 表示 DeepSeek API Key。
	SettingKeyDeepSeekAPIKey = "deepseek_api_key"
	// SettingKeyDoubaoAPIKey 表示火山方舟（豆包）API Key。
	SettingKeyDoubaoAPIKey = "doubao_api_key"
	// SettingKeyTextModel 覆盖默认文本模型。
	SettingKeyTextModel = "ai_text_model"
	// SettingKeyImageModel 覆盖默认图片模型。
	SettingKeyImageModel = "ai_image_model"
)
