package service

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/moodfox/internal/db"
	"github.com/moodfox/internal/worker"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeHTTPClient struct {
	handler func(*http.Request) (*http.Response, error)
}

func (f fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if f.handler == nil {
		return nil, errors.New("no handler configured")
	}
	return f.handler(req)
}

// fakeText 按调用序号返回预设内容。
type fakeText struct {
	calls   atomic.Int32
	respond func(call int, req TextRequest) (string, error)
}

func (f *fakeText) GenerateText(_ context.Context, req TextRequest) (string, error) {
	n := int(f.calls.Add(1))
	return f.respond(n, req)
}

func textReturning(content string) *fakeText {
	return &fakeText{respond: func(int, TextRequest) (string, error) { return content, nil }}
}

func textFailing() *fakeText {
	return &fakeText{respond: func(int, TextRequest) (string, error) {
		return "", errors.New("upstream unavailable")
	}}
}

type fakeImages struct {
	calls atomic.Int32
	url   string
	err   error
}

func (f *fakeImages) GenerateImage(context.Context, string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type queuedTask struct {
	name string
	fn   worker.TaskFunc
}

// recordingScheduler 只记录任务，由测试显式执行。
type recordingScheduler struct {
	mu    sync.Mutex
	tasks []queuedTask
	err   error
}

func (s *recordingScheduler) Submit(name string, fn worker.TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.tasks = append(s.tasks, queuedTask{name: name, fn: fn})
	return nil
}

func (s *recordingScheduler) pending(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, task := range s.tasks {
		if task.name == name {
			count++
		}
	}
	return count
}

// runAll 执行队列中的全部任务，包括执行过程中新提交的任务。
func (s *recordingScheduler) runAll(t *testing.T) {
	t.Helper()
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return
		}
		next := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()

		if err := next.fn(context.Background()); err != nil {
			t.Logf("task %s returned error: %v", next.name, err)
		}
	}
}

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "moodfox.db"), logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func seedUser(t *testing.T, gdb *gorm.DB, username string) uint {
	t.Helper()
	user := db.User{Username: username, Password: "x"}
	require.NoError(t, gdb.Create(&user).Error)
	return user.ID
}

func seedDiary(t *testing.T, gdb *gorm.DB, userID uint, tags []string, intensity int) *db.Diary {
	t.Helper()
	diary, err := buildDiary(DiaryInput{
		UserID:    userID,
		Content:   "今天开会被批评了，一直在想是不是自己不够好。",
		Tags:      tags,
		Intensity: intensity,
	})
	require.NoError(t, err)
	require.NoError(t, gdb.Create(diary).Error)
	return diary
}

func noRetry(fallback bool) GenerationOptions {
	return GenerationOptions{RetryAttempts: 1, TemplateFallback: fallback, GenerateImages: true}
}

// failCreatesOn 让指定表上的插入（包括 upsert）返回错误，返回值用于撤销。
func failCreatesOn(t *testing.T, gdb *gorm.DB, table string) func() {
	t.Helper()
	name := "moodfox_test:fail_" + table
	require.NoError(t, gdb.Callback().Create().Before("gorm:create").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == table {
			tx.AddError(errors.New("boom"))
		}
	}))
	return func() {
		require.NoError(t, gdb.Callback().Create().Remove(name))
	}
}
