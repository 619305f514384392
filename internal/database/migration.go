package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// migrateLogger 适配golang-migrate的日志接口
type migrateLogger struct {
	log *logrus.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Infof(format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return l.log.GetLevel() >= logrus.DebugLevel
}

// MigrationManager SQL迁移管理器
type MigrationManager struct {
	m   *migrate.Migrate
	log *logrus.Logger
}

// NewMigrationManager 创建迁移管理器
func NewMigrationManager(databaseURL, sourcePath string) (*MigrationManager, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	m, err := migrate.New(fmt.Sprintf("file://%s", sourcePath), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init migrations: %w", err)
	}
	m.Log = &migrateLogger{log: log}

	return &MigrationManager{m: m, log: log}, nil
}

// Up 执行所有未应用的迁移
func (mm *MigrationManager) Up() error {
	if err := mm.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	mm.log.Info("migrations up to date")
	return nil
}

// Down 回滚一次迁移
func (mm *MigrationManager) Down() error {
	if err := mm.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Version 返回当前迁移版本
func (mm *MigrationManager) Version() (uint, bool, error) {
	v, dirty, err := mm.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close 释放迁移资源
func (mm *MigrationManager) Close() {
	srcErr, dbErr := mm.m.Close()
	if srcErr != nil {
		mm.log.WithError(srcErr).Warn("failed to close migration source")
	}
	if dbErr != nil {
		mm.log.WithError(dbErr).Warn("failed to close migration database")
	}
}
