package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"certEngine/internal/config"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// gormLogger 忽略 record not found：模板缺失走默认模板，属于正常路径。
func gormLogger() logger.Interface {
	return logger.New(log.New(os.Stdout, "", log.LstdFlags), logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// InitDatabase 使用配置初始化 PostgreSQL 连接，并返回 GORM 数据库实例。
// 数据库容器可能晚于服务启动，Ping 失败时按固定间隔重试。
func InitDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = sqlDB.PingContext(ctx)
		cancel()
		if err == nil {
			return db, nil
		}
		if attempt == connectAttempts {
			return nil, fmt.Errorf("ping database after %d attempts: %w", attempt, err)
		}
		time.Sleep(connectBackoff)
	}
}

// Migrate creates or updates the tables this service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Event{}, &Attendee{}, &CertificateTemplate{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
