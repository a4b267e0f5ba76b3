// Package journal records every prediction in a SQL database. It is an
// optional inference observer backed by gorm with SQLite or MySQL.
package journal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/inference"
	"github.com/ycry/ycry-go/internal/logger"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// DefaultSlowQueryThreshold is the duration above which queries are logged as slow.
const DefaultSlowQueryThreshold = 200 * time.Millisecond

// Entry is one journaled prediction.
type Entry struct {
	ID            uint               `gorm:"primaryKey"`
	RequestID     string             `gorm:"size:36;uniqueIndex"`
	Filename      string             `gorm:"size:255"`
	Label         string             `gorm:"size:64;index"`
	Confidence    float64
	Advice        string             `gorm:"size:64"`
	Probabilities map[string]float64 `gorm:"serializer:json"`
	LabelSet      string             `gorm:"size:32"`
	DurationMs    int64
	CreatedAt     time.Time `gorm:"index"`
}

// TableName sets the table name for Entry.
func (Entry) TableName() string { return "predictions" }

// Journal stores predictions. It implements inference.Observer.
type Journal struct {
	db     *gorm.DB
	driver string
	log    logger.Logger
}

// Open connects to the database and migrates the schema. For SQLite the dsn
// is a file path whose directory is created when missing.
func Open(driver, dsn string) (*Journal, error) {
	log := GetLogger().With(logger.String("driver", driver))

	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case DriverSQLite, "":
		driver = DriverSQLite
		if dir := filepath.Dir(dsn); dsn != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, dbError(err, "create_directory", driver)
			}
		}
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, errors.Newf("unsupported journal driver %q", driver).
			Component("journal").
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(log, DefaultSlowQueryThreshold, gormlogger.Warn),
	})
	if err != nil {
		return nil, dbError(err, "open", driver)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return nil, dbError(err, "migrate", driver)
	}

	log.Info("Prediction journal opened")
	return &Journal{db: db, driver: driver, log: log}, nil
}

func dbError(err error, operation, driver string) error {
	return errors.New(err).
		Component("journal").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Context("driver", driver).
		Build()
}

// Name implements inference.Observer.
func (j *Journal) Name() string { return "journal" }

// OnPrediction stores ev.
func (j *Journal) OnPrediction(ctx context.Context, ev inference.Event) error {
	entry := Entry{
		RequestID:     ev.RequestID,
		Filename:      ev.Filename,
		Label:         ev.Label,
		Confidence:    ev.Confidence,
		Advice:        ev.Advice,
		Probabilities: ev.Probabilities,
		LabelSet:      ev.LabelSet,
		DurationMs:    ev.DurationMs,
		CreatedAt:     ev.Time,
	}
	if err := j.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return dbError(err, "insert", j.driver)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	var entries []Entry
	err := j.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, dbError(err, "query_recent", j.driver)
	}
	return entries, nil
}

// LabelCount is the number of predictions per label.
type LabelCount struct {
	Label string
	Count int64
}

// CountByLabel returns prediction counts per label, ordered by label.
func (j *Journal) CountByLabel(ctx context.Context) ([]LabelCount, error) {
	var counts []LabelCount
	err := j.db.WithContext(ctx).
		Model(&Entry{}).
		Select("label, count(*) as count").
		Group("label").
		Order("label").
		Scan(&counts).Error
	if err != nil {
		return nil, dbError(err, "count_by_label", j.driver)
	}
	return counts, nil
}

// Close releases the database connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return dbError(err, "close", j.driver)
	}
	return sqlDB.Close()
}

// GetLogger returns the journal package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("journal")
}
