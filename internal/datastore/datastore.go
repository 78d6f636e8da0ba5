// Package datastore persists capture events in SQLite through GORM. The
// schema is append-oriented; captures are written once and read back for
// stats rehydration and history views.
package datastore

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/zdex/zdex-go/internal/capture"
	"github.com/zdex/zdex-go/internal/errors"
)

// CaptureRecord is the GORM model for one capture event.
type CaptureRecord struct {
	ID             uint      `gorm:"primaryKey"`
	CaptureID      string    `gorm:"uniqueIndex;size:36"`
	SpeciesID      string    `gorm:"index;size:36"`
	PredictedName  string    `gorm:"size:100"`
	ScientificName string    `gorm:"size:100"`
	GroundTruth    string    `gorm:"size:100"`
	Confidence     float64
	Score          float64
	Location       string `gorm:"size:100"`
	Auto           bool
	ImagePath      string    `gorm:"size:255"`
	CapturedAt     time.Time `gorm:"index"`
}

// SQLiteStore implements capture.Store backed by a SQLite file.
type SQLiteStore struct {
	db *gorm.DB
}

var _ capture.Store = (*SQLiteStore)(nil)

// Open opens (creating if needed) the SQLite database at path and runs
// migrations. Pass ":memory:" for an in-memory database.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.New(fmt.Errorf("creating database directory: %w", err)).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return nil, errors.New(fmt.Errorf("opening sqlite database: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	if err := db.AutoMigrate(&CaptureRecord{}); err != nil {
		return nil, errors.New(fmt.Errorf("migrating capture schema: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	return &SQLiteStore{db: db}, nil
}

// createGormLogger keeps GORM quiet except for slow queries and errors.
func createGormLogger() gormlogger.Interface {
	return gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      gormlogger.Warn,
		},
	)
}

// Append saves one capture event.
func (s *SQLiteStore) Append(event *capture.Event) error {
	record := toRecord(event)
	if err := s.db.Create(&record).Error; err != nil {
		return errors.New(fmt.Errorf("inserting capture: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("capture_id", event.ID).
			Build()
	}
	return nil
}

// LoadAll returns every stored capture, oldest first.
func (s *SQLiteStore) LoadAll() ([]capture.Event, error) {
	var records []CaptureRecord
	if err := s.db.Order("captured_at ASC").Find(&records).Error; err != nil {
		return nil, errors.New(fmt.Errorf("loading captures: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	events := make([]capture.Event, 0, len(records))
	for i := range records {
		events = append(events, toEvent(&records[i]))
	}
	return events, nil
}

// Latest returns the most recent capture, or nil when the store is empty.
func (s *SQLiteStore) Latest() (*capture.Event, error) {
	var record CaptureRecord
	err := s.db.Order("captured_at DESC").First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.New(fmt.Errorf("loading latest capture: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	event := toEvent(&record)
	return &event, nil
}

// CountBySpecies returns total stored captures per species id.
func (s *SQLiteStore) CountBySpecies() (map[string]int, error) {
	type row struct {
		SpeciesID string
		Total     int
	}
	var rows []row
	err := s.db.Model(&CaptureRecord{}).
		Select("species_id, count(*) as total").
		Group("species_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.New(fmt.Errorf("counting captures: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.SpeciesID] = r.Total
	}
	return counts, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(event *capture.Event) CaptureRecord {
	return CaptureRecord{
		CaptureID:      event.ID,
		SpeciesID:      event.SpeciesID,
		PredictedName:  event.PredictedName,
		ScientificName: event.ScientificName,
		GroundTruth:    event.GroundTruth,
		Confidence:     event.Confidence,
		Score:          event.Score,
		Location:       event.Location,
		Auto:           event.Auto,
		ImagePath:      event.ImagePath,
		CapturedAt:     event.Timestamp,
	}
}

func toEvent(record *CaptureRecord) capture.Event {
	return capture.Event{
		ID:             record.CaptureID,
		SpeciesID:      record.SpeciesID,
		PredictedName:  record.PredictedName,
		ScientificName: record.ScientificName,
		GroundTruth:    record.GroundTruth,
		Confidence:     record.Confidence,
		Score:          record.Score,
		Location:       record.Location,
		Auto:           record.Auto,
		ImagePath:      record.ImagePath,
		Timestamp:      record.CapturedAt,
	}
}
