// Package db persists conversion history and the watcher's file index in
// SQLite.
package db

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ah-its-andy/docconv/internal/domain"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Store wraps the database connection.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// SQLite only supports one writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := gdb.AutoMigrate(&FileIndex{}, &BatchRecord{}, &ResultRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: gdb}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertIndex records md5 for path. changed is true when the path is new or
// its content differs from the last recorded hash; the status then resets to
// pending.
func (s *Store) UpsertIndex(path, md5 string) (rec FileIndex, changed bool, err error) {
	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("file_path = ?", path).Limit(1).Find(&rec)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			rec = FileIndex{FilePath: path, FileMD5: md5, Status: IndexPending}
			changed = true
			return tx.Create(&rec).Error
		}
		if rec.FileMD5 == md5 {
			return nil
		}
		changed = true
		rec.FileMD5 = md5
		rec.Status = IndexPending
		return tx.Save(&rec).Error
	})
	return rec, changed, err
}

// SetIndexStatus updates the status of an indexed path.
func (s *Store) SetIndexStatus(path, status string) error {
	res := s.db.Model(&FileIndex{}).Where("file_path = ?", path).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("index %s: %w", path, ErrNotFound)
	}
	return nil
}

// GetIndex returns the index entry for path.
func (s *Store) GetIndex(path string) (*FileIndex, error) {
	var rec FileIndex
	res := s.db.Where("file_path = ?", path).Limit(1).Find(&rec)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("index %s: %w", path, ErrNotFound)
	}
	return &rec, nil
}

// SaveBatch stores a batch summary and replaces its results. Saving the same
// batch again (e.g. a snapshot followed by the final summary) overwrites the
// earlier rows.
func (s *Store) SaveBatch(origin string, sum domain.BatchSummary) error {
	if sum.ID == "" {
		return errors.New("batch id is required")
	}
	rec := BatchRecord{
		ID:        sum.ID,
		Origin:    origin,
		Total:     sum.Total,
		Succeeded: sum.Succeeded,
		Failed:    sum.Failed,
		TimedOut:  sum.TimedOut,
		Pending:   sum.Pending,
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"total", "succeeded", "failed", "timed_out", "pending", "updated_at"}),
		}).Omit("Results").Create(&rec).Error
		if err != nil {
			return err
		}
		if err := tx.Where("batch_id = ?", sum.ID).Delete(&ResultRecord{}).Error; err != nil {
			return err
		}
		if len(sum.Results) == 0 {
			return nil
		}
		rows := make([]ResultRecord, len(sum.Results))
		for i, r := range sum.Results {
			rows[i] = newResultRecord(sum.ID, r)
		}
		return tx.CreateInBatches(rows, 100).Error
	})
}

// ListBatches returns batches newest first, without their results.
func (s *Store) ListBatches(limit, offset int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []BatchRecord
	err := s.db.Order("created_at DESC, rowid DESC").Limit(limit).Offset(offset).Find(&out).Error
	return out, err
}

// GetBatch returns a batch with its results in submission order.
func (s *Store) GetBatch(id string) (*BatchRecord, error) {
	var rec BatchRecord
	res := s.db.Preload("Results", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC")
	}).Where("id = ?", id).Limit(1).Find(&rec)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	return &rec, nil
}

// Summary converts a loaded batch back into a domain summary.
func (b *BatchRecord) Summary() domain.BatchSummary {
	results := make([]domain.Result, len(b.Results))
	for i, r := range b.Results {
		results[i] = r.Result()
	}
	return domain.BatchSummary{
		ID:        b.ID,
		Total:     b.Total,
		Succeeded: b.Succeeded,
		Failed:    b.Failed,
		TimedOut:  b.TimedOut,
		Pending:   b.Pending,
		Results:   results,
	}
}

// GetResult returns a single stored result.
func (s *Store) GetResult(id uint) (*ResultRecord, error) {
	var rec ResultRecord
	res := s.db.Limit(1).Find(&rec, id)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("result %d: %w", id, ErrNotFound)
	}
	return &rec, nil
}

// ListResults returns results newest first, optionally filtered by status.
func (s *Store) ListResults(status string, limit, offset int) ([]ResultRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.Model(&ResultRecord{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []ResultRecord
	err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&out).Error
	return out, err
}

// Stats counts stored batches, results per status and indexed files.
func (s *Store) Stats() (*Stats, error) {
	st := &Stats{}
	if err := s.db.Model(&BatchRecord{}).Count(&st.Batches).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&FileIndex{}).Count(&st.IndexedFiles).Error; err != nil {
		return nil, err
	}
	var rows []struct {
		Status string
		N      int64
	}
	err := s.db.Model(&ResultRecord{}).Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		st.Results += r.N
		switch domain.Status(r.Status) {
		case domain.StatusSuccess:
			st.Succeeded += r.N
		case domain.StatusTimedOut:
			st.TimedOut += r.N
		case domain.StatusPending, domain.StatusRunning:
			st.Pending += r.N
		default:
			st.Failed += r.N
		}
	}
	return st, nil
}
