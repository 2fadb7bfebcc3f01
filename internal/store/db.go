package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ballotbase/api/internal/config"
	"github.com/ballotbase/api/internal/model"
)

// Database wraps the gorm handle with pipeline-specific queries.
type Database struct {
	Orm *gorm.DB
}

func New(cfg *config.PostgresConfig) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	orm, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &Database{Orm: orm}, nil
}

func (db *Database) Initialize() error {
	err := db.Orm.AutoMigrate(
		&model.BatchJob{},
		&model.BatchGroup{},
		&model.Election{},
		&model.Candidate{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
