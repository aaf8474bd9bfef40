package handler

import (
	"github.com/moodfox/internal/service"
	"gorm.io/gorm"
)

// Services 汇总 HTTP 层依赖的业务服务。
type Services struct {
	Diaries    *service.DiaryService
	Analysis   *service.AnalysisService
	Adventures *service.AdventureService
	Postcards  *service.PostcardService
	Ledger     *service.LedgerService
	System     *service.SystemSettingService
}

// API 汇总 HTTP 处理器共享的依赖。
type API struct {
	db         *gorm.DB
	diaries    *service.DiaryService
	analysis   *service.AnalysisService
	adventures *service.AdventureService
	postcards  *service.PostcardService
	ledger     *service.LedgerService
	system     *service.SystemSettingService
}

// NewAPI 使用共享的服务构造处理器集合。
func NewAPI(db *gorm.DB, services Services) *API {
	return &API{
		db:         db,
		diaries:    services.Diaries,
		analysis:   services.Analysis,
		adventures: services.Adventures,
		postcards:  services.Postcards,
		ledger:     services.Ledger,
		system:     services.System,
	}
}

// DB 返回底层的 gorm 连接。
func (a *API) DB() *gorm.DB {
	return a.db
}
