package service

import (
	"context"
	"fmt"
	"time"

	"github.com/moodfox/internal/worker"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Scheduler 抽象后台任务池，*worker.Pool 即为其实现。
type Scheduler interface {
	Submit(name string, fn worker.TaskFunc) error
}

// GenerationOptions 控制 AI 生成的重试与降级行为。
type GenerationOptions struct {
	RetryAttempts    int
	RetryBackoff     time.Duration
	TemplateFallback bool
	GenerateImages   bool
}

func (o GenerationOptions) retry() retryPolicy {
	attempts := o.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	interval := o.RetryBackoff
	if interval < 0 {
		interval = 0
	}
	return retryPolicy{attempts: attempts, interval: interval}
}

// scopedDB 为后台任务打开独立的会话，不与请求共享语句状态。
func scopedDB(gdb *gorm.DB, ctx context.Context) *gorm.DB {
	return gdb.Session(&gorm.Session{NewDB: true, Context: ctx})
}

type placeholderResult struct {
	ID      uint
	Created bool
}

// placeholderGroup 合并同一 (用户, 日记) 上并发的占位记录创建。
// 调度要么在 fn 内部由创建方完成，要么在外部通过状态 CAS 领取，任务只会投递一次。
type placeholderGroup struct {
	kind  string
	group singleflight.Group
}

func (g *placeholderGroup) do(userID, diaryID uint, fn func() (placeholderResult, error)) (placeholderResult, error) {
	key := fmt.Sprintf("%s:%d:%d", g.kind, userID, diaryID)
	v, err, _ := g.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return placeholderResult{}, err
	}
	return v.(placeholderResult), nil
}
