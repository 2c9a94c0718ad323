package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 运行记录库的全局连接，由Setup初始化
var DB *gorm.DB

// Config 运行记录库配置
type Config struct {
	Type          string        // 目前只支持sqlite
	DSN           string        // SQLite文件路径或:memory:
	BusyTimeout   time.Duration // 写锁等待时间
	MaxLifetime   time.Duration // 连接最大生命周期
	SlowThreshold time.Duration // 慢查询阈值
}

// DefaultConfig 默认把运行记录写到data/analyzer.db
func DefaultConfig() *Config {
	return &Config{
		Type:          "sqlite",
		DSN:           "data/analyzer.db",
		BusyTimeout:   5 * time.Second,
		MaxLifetime:   time.Hour,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// Setup 打开数据库并设置全局连接
func Setup(cfg *Config, log *logrus.Logger) error {
	db, err := Open(cfg, log)
	if err != nil {
		return err
	}
	DB = db
	log.WithField("dsn", cfg.DSN).Info("Run history database ready")
	return nil
}

// Open 打开连接并迁移AnalysisRun表
// serve模式下请求并发写入，连接池限制为单连接，由SQLite的busy_timeout排队
func Open(cfg *Config, log *logrus.Logger) (*gorm.DB, error) {
	if cfg.Type != "" && cfg.Type != "sqlite" {
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err := ensureDir(cfg.DSN); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(cfg)), &gorm.Config{
		Logger: newGormLogger(log, cfg.SlowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DSN, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if cfg.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate run history: %w", err)
	}
	return db, nil
}

// MustDB 返回全局连接，未调用Setup时panic
func MustDB() *gorm.DB {
	if DB == nil {
		panic("database: Setup has not been called")
	}
	return DB
}

// Close 关闭全局连接，未初始化时什么也不做
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	DB = nil
	return sqlDB.Close()
}

// AutoMigrate 迁移运行记录表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.AnalysisRun{})
}

// sqliteDSN 在文件路径后追加busy_timeout参数
func sqliteDSN(cfg *Config) string {
	if cfg.BusyTimeout <= 0 || strings.Contains(cfg.DSN, "?") {
		return cfg.DSN
	}
	return fmt.Sprintf("%s?_busy_timeout=%d", cfg.DSN, cfg.BusyTimeout.Milliseconds())
}

func ensureDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create database directory %s: %w", dir, err)
	}
	return nil
}

// newGormLogger 把GORM日志转到logrus，debug级别下打印全部SQL
func newGormLogger(log *logrus.Logger, slow time.Duration) logger.Interface {
	level := logger.Warn
	if log.IsLevelEnabled(logrus.DebugLevel) {
		level = logger.Info
	}
	return logger.New(gormWriter{log}, logger.Config{
		SlowThreshold:             slow,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

type gormWriter struct {
	log *logrus.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.WithField("component", "gorm").Warnf(format, args...)
}
