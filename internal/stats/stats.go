package stats

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pdfpress/internal/batch"
)

// BatchRun is one persisted batch outcome.
type BatchRun struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	BatchID         string    `gorm:"index" json:"batch_id"`
	Level           string    `json:"level"`
	Files           int       `json:"files"`
	Succeeded       int       `json:"succeeded"`
	Failed          int       `json:"failed"`
	OriginalBytes   int64     `json:"original_bytes"`
	CompressedBytes int64     `json:"compressed_bytes"`
	SavedBytes      int64     `json:"saved_bytes"`
	PrimaryCount    int       `json:"primary_count"`
	FallbackCount   int       `json:"fallback_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// Totals aggregates every recorded run.
type Totals struct {
	Runs            int64   `json:"runs"`
	Files           int64   `json:"files"`
	Succeeded       int64   `json:"succeeded"`
	Failed          int64   `json:"failed"`
	OriginalBytes   int64   `json:"original_bytes"`
	CompressedBytes int64   `json:"compressed_bytes"`
	SavedBytes      int64   `json:"saved_bytes"`
	SavingsPercent  float64 `json:"savings_percent"`
}

// Store keeps run history in a SQLite database.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at dbPath and migrates the schema.
func Open(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening stats database: %w", err)
	}
	if err := db.AutoMigrate(&BatchRun{}); err != nil {
		return nil, fmt.Errorf("migrating stats schema: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordRun persists the outcome of one batch.
func (s *Store) RecordRun(report *batch.Report) error {
	run := BatchRun{
		BatchID:         report.BatchID,
		Level:           string(report.Level),
		Files:           len(report.Results),
		Succeeded:       report.Succeeded + report.NoImprovement,
		Failed:          report.Failed,
		OriginalBytes:   report.TotalOriginalBytes,
		CompressedBytes: report.TotalCompressedBytes,
		SavedBytes:      report.SavedBytes(),
		PrimaryCount:    report.PrimaryCount,
		FallbackCount:   report.FallbackCount,
	}
	return s.db.Create(&run).Error
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(limit int) ([]BatchRun, error) {
	var runs []BatchRun
	err := s.db.Order("created_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// Totals sums every recorded run.
func (s *Store) Totals() (*Totals, error) {
	var t Totals
	row := s.db.Model(&BatchRun{}).Select(
		"COUNT(*)",
		"COALESCE(SUM(files), 0)",
		"COALESCE(SUM(succeeded), 0)",
		"COALESCE(SUM(failed), 0)",
		"COALESCE(SUM(original_bytes), 0)",
		"COALESCE(SUM(compressed_bytes), 0)",
		"COALESCE(SUM(saved_bytes), 0)",
	).Row()
	if err := row.Scan(&t.Runs, &t.Files, &t.Succeeded, &t.Failed,
		&t.OriginalBytes, &t.CompressedBytes, &t.SavedBytes); err != nil {
		return nil, fmt.Errorf("aggregating stats: %w", err)
	}
	if t.OriginalBytes > 0 && t.SavedBytes > 0 {
		t.SavingsPercent = float64(t.SavedBytes) / float64(t.OriginalBytes) * 100
	}
	return &t, nil
}
