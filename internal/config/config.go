package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr    string `env:"LISTEN_ADDR"`
	Port          string `env:"PORT" envDefault:"8080"`
	DatabasePath  string `env:"DATABASE_PATH" envDefault:"moodfox.db"`
	SessionSecret string `env:"SESSION_SECRET" envDefault:"moodfox-dev-secret"`
	GinMode       string `env:"GIN_MODE" envDefault:"release"`
	UploadDir     string `env:"UPLOAD_DIR" envDefault:"data/postcards"`
	UploadURLPath string `env:"UPLOAD_URL_PATH" envDefault:"/image/postcards"`

	DemoUserName string `env:"DEMO_USER_NAME"`
	DemoPassword string `env:"DEMO_PASSWORD"`

	AI      AIConfig     `envPrefix:"AI_"`
	Workers WorkerConfig `envPrefix:"WORKER_"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"moodfox"`
}

// AIConfig 描述 AI 平台的默认接入参数，系统设置中的值优先。
type AIConfig struct {
	Provider     string        `env:"PROVIDER" envDefault:"openai"`
	APIKey       string        `env:"API_KEY"`
	BaseURL      string        `env:"BASE_URL"`
	TextModel    string        `env:"TEXT_MODEL"`
	ImageModel   string        `env:"IMAGE_MODEL"`
	ImageSize    string        `env:"IMAGE_SIZE" envDefault:"1024x1024"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"120s"`
	RetryCount   int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryBackoff time.Duration `env:"RETRY_BACKOFF" envDefault:"1s"`
	// 关闭后 AI 失败时不再使用本地模板兜底
	TemplateFallback bool `env:"TEMPLATE_FALLBACK" envDefault:"true"`
	GenerateImages   bool `env:"GENERATE_IMAGES" envDefault:"true"`
}

// WorkerConfig 控制后台生成任务的并发与队列长度。
type WorkerConfig struct {
	PostcardWorkers  int `env:"POSTCARD" envDefault:"2"`
	ChallengeWorkers int `env:"CHALLENGE" envDefault:"2"`
	QueueSize        int `env:"QUEUE_SIZE" envDefault:"64"`
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.Port = strings.TrimSpace(c.Port)
	if c.Port == "" {
		c.Port = "8080"
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = fmt.Sprintf(":%s", c.Port)
	}
	c.UploadURLPath = "/" + strings.Trim(strings.TrimSpace(c.UploadURLPath), "/")
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))

	if c.AI.RetryCount < 1 {
		c.AI.RetryCount = 1
	}
	if c.AI.RetryBackoff < 0 {
		c.AI.RetryBackoff = 0
	}
	if c.Workers.PostcardWorkers < 1 {
		c.Workers.PostcardWorkers = 1
	}
	if c.Workers.ChallengeWorkers < 1 {
		c.Workers.ChallengeWorkers = 1
	}
	if c.Workers.QueueSize < 1 {
		c.Workers.QueueSize = 1
	}
}
