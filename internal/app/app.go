// Package app 负责组装数据库、后台任务池、业务服务与 HTTP 路由。
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/moodfox/internal/config"
	"github.com/moodfox/internal/db"
	"github.com/moodfox/internal/handler"
	"github.com/moodfox/internal/router"
	"github.com/moodfox/internal/service"
	"github.com/moodfox/internal/worker"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// App 持有一次运行所需的全部组件。
type App struct {
	DB       *gorm.DB
	Router   *gin.Engine
	Services handler.Services

	pools []*worker.Pool
}

// New 根据配置打开数据库并组装服务。
func New(cfg config.AppConfig) (*App, error) {
	gdb, err := db.Open(cfg.DatabasePath, logger.Warn)
	if err != nil {
		return nil, err
	}
	return Build(cfg, gdb)
}

// Build 在已打开的数据库上组装服务，测试可直接传入临时库。
func Build(cfg config.AppConfig, gdb *gorm.DB) (*App, error) {
	if created, err := db.EnsureUser(gdb, cfg.DemoUserName, cfg.DemoPassword); err != nil {
		return nil, fmt.Errorf("ensure demo user: %w", err)
	} else if created {
		log.Printf("已创建演示账号 %s", cfg.DemoUserName)
	}

	system := service.NewSystemSettingService(gdb, settingsDefaults(cfg.AI))
	if cfg.AI.BaseURL != "" {
		system.SetBaseURL(cfg.AI.Provider, cfg.AI.BaseURL)
	}

	ai := service.NewAIClient(system, cfg.AI.Timeout)
	ai.SetImageSize(cfg.AI.ImageSize)

	opts := service.GenerationOptions{
		RetryAttempts:    cfg.AI.RetryCount,
		RetryBackoff:     cfg.AI.RetryBackoff,
		TemplateFallback: cfg.AI.TemplateFallback,
		GenerateImages:   cfg.AI.GenerateImages,
	}

	// 单个任务最多包含文本重试与一次图片生成
	taskTimeout := time.Duration(cfg.AI.RetryCount+1)*cfg.AI.Timeout + time.Minute
	postcardPool := worker.New("postcard", worker.Options{
		Workers:     cfg.Workers.PostcardWorkers,
		QueueSize:   cfg.Workers.QueueSize,
		TaskTimeout: taskTimeout,
	})
	challengePool := worker.New("challenge", worker.Options{
		Workers:     cfg.Workers.ChallengeWorkers,
		QueueSize:   cfg.Workers.QueueSize,
		TaskTimeout: taskTimeout,
	})

	catalog := service.DefaultMonsterCatalog()
	ledger := service.NewLedgerService(gdb)
	store := service.NewImageStore(cfg.UploadDir, cfg.UploadURLPath)

	postcards := service.NewPostcardService(gdb, service.NewPostcardAuthor(ai, catalog, opts), ai, store, postcardPool, opts)
	adventures := service.NewAdventureService(gdb, ledger, service.NewChallengeAuthor(ai, catalog, opts), catalog, challengePool)
	adventures.SetPostcardRequester(postcards)

	services := handler.Services{
		Diaries:    service.NewDiaryService(gdb, adventures, postcards, store),
		Analysis:   service.NewAnalysisService(gdb, ledger, ai, opts),
		Adventures: adventures,
		Postcards:  postcards,
		Ledger:     ledger,
		System:     system,
	}

	api := handler.NewAPI(gdb, services)
	return &App{
		DB:       gdb,
		Router:   router.SetupRouter(api, cfg.SessionSecret, cfg.UploadDir, cfg.UploadURLPath),
		Services: services,
		pools:    []*worker.Pool{postcardPool, challengePool},
	}, nil
}

func settingsDefaults(ai config.AIConfig) service.SystemSettings {
	defaults := service.SystemSettings{
		AIProvider: ai.Provider,
		TextModel:  ai.TextModel,
		ImageModel: ai.ImageModel,
	}
	switch ai.Provider {
	case service.AIProviderDeepSeek:
		defaults.DeepSeekAPIKey = ai.APIKey
	case service.AIProviderDoubao:
		defaults.DoubaoAPIKey = ai.APIKey
	default:
		defaults.OpenAIAPIKey = ai.APIKey
	}
	return defaults
}

// Shutdown 等待后台任务结束并关闭数据库。
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	for _, pool := range a.pools {
		if err := pool.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s pool: %w", pool.Name(), err))
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
