package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是一个全局的数据库连接实例，供命令行工具使用
var DB *gorm.DB

const defaultDatabasePath = "moodfox.db"

// Init 初始化全局数据库连接并执行自动迁移。
// databasePath 为空时将回退到默认值 moodfox.db。
func Init(databasePath string) error {
	gdb, err := Open(databasePath, logger.Warn)
	if err != nil {
		return err
	}
	DB = gdb
	return nil
}

// Open 打开 SQLite 数据库并完成迁移。
// SQLite 只允许单写者，这里把连接池限制为 1，事务天然串行。
func Open(databasePath string, level logger.LogLevel) (*gorm.DB, error) {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		path = defaultDatabasePath
	}

	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(sqlite.Open(withPragmas(path)), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// Migrate 自动迁移模式，为核心模型创建表
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&User{},
		&GameState{},
		&Diary{},
		&DiaryAnalysis{},
		&AdventureSession{},
		&Postcard{},
		&UserItem{},
		&SystemSetting{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func withPragmas(path string) string {
	if strings.Contains(path, ":memory:") || strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL"
}

func ensureParentDir(path string) error {
	if strings.HasPrefix(path, "file:") || strings.Contains(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
