// Package infra は外部サービスとの接続を提供する。
package infra

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// DBConfig はコネクションプールの設定。
type DBConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultDBConfig は既定のコネクションプール設定を返す。
func DefaultDBConfig() DBConfig {
	return DBConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// dialector はDSNからドライバを選ぶ。
// sqlite:// または file: で始まるものと :memory: はSQLite、それ以外はMySQLとして扱う。
func dialector(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return sqlite.Open(dsn)
	default:
		return mysql.Open(strings.TrimPrefix(dsn, "mysql://"))
	}
}

// NewDB はgormによるデータベース接続を初期化する。
// plugins にはフィールド暗号化プラグインなどを渡す。
func NewDB(dsn string, cfg DBConfig, plugins ...gorm.Plugin) (*gorm.DB, error) {
	db, err := gorm.Open(dialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("registering tracing plugin: %w", err)
	}
	if err := UsePlugins(db, plugins...); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 接続プール設定
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// UsePlugins はgormプラグインを順に登録する。
func UsePlugins(db *gorm.DB, plugins ...gorm.Plugin) error {
	for _, p := range plugins {
		if err := db.Use(p); err != nil {
			return fmt.Errorf("registering %s plugin: %w", p.Name(), err)
		}
	}
	return nil
}
