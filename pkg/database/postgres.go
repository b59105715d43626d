package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"purin_order/pkg/logger"
)

// Options 连接池参数
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogSQL          bool
	SlowThreshold   time.Duration
}

// InitDB 初始化数据库连接
// dsn: 数据库连接字符串
// models: 需要自动建表/迁移的结构体指针
func InitDB(dsn string, opts Options, log *zap.Logger, models ...interface{}) (*gorm.DB, error) {
	// LogSQL 打开时打印所有 SQL（debug 级别）
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.NewGorm(log, opts.LogSQL, opts.SlowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := Configure(db, opts); err != nil {
		return nil, err
	}
	logger.OrNop(log).Info("数据库连接成功")

	if err := Migrate(db, models...); err != nil {
		return nil, err
	}
	return db, nil
}

// Configure 设置连接池
func Configure(db *gorm.DB, opts Options) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return nil
}

// Migrate 自动建表
func Migrate(db *gorm.DB, models ...interface{}) error {
	if len(models) == 0 {
		return nil
	}
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
