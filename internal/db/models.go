package db

import (
	"time"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/format"
)

// Index statuses.
const (
	IndexPending = "pending"
	IndexQueued  = "queued"
	IndexDone    = "done"
	IndexFailed  = "failed"
)

// FileIndex remembers the last content hash seen for a watched file.
type FileIndex struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FilePath  string    `gorm:"uniqueIndex;not null" json:"file_path"`
	FileMD5   string    `gorm:"index;not null" json:"file_md5"`
	Status    string    `gorm:"index" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BatchRecord is a finished (or in-flight) batch.
type BatchRecord struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	Origin    string         `gorm:"index" json:"origin"` // cli, api, watcher
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	TimedOut  int            `json:"timed_out"`
	Pending   int            `json:"pending"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Results   []ResultRecord `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE" json:"results,omitempty"`
}

// ResultRecord is one job outcome within a batch.
type ResultRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	BatchID        string    `gorm:"index;size:36;not null" json:"batch_id"`
	Position       int       `json:"position"`
	SourcePath     string    `gorm:"index" json:"source_path"`
	TargetFormat   string    `json:"target_format"`
	Quality        string    `json:"quality"`
	OutputDir      string    `json:"output_dir"`
	OCR            bool      `json:"ocr"`
	PreserveLayout bool      `json:"preserve_layout"`
	Status         string    `gorm:"index" json:"status"`
	OutputPath     string    `json:"output_path,omitempty"`
	Engine         string    `json:"engine,omitempty"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	ErrorMessage   string    `json:"error,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	ConsoleOutput  string    `json:"console_output,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Stats aggregates every stored result.
type Stats struct {
	Batches      int64 `json:"batches"`
	Results      int64 `json:"results"`
	Succeeded    int64 `json:"succeeded"`
	Failed       int64 `json:"failed"`
	TimedOut     int64 `json:"timed_out"`
	Pending      int64 `json:"pending"`
	IndexedFiles int64 `json:"indexed_files"`
}

func newResultRecord(batchID string, r domain.Result) ResultRecord {
	return ResultRecord{
		BatchID:        batchID,
		Position:       r.Index,
		SourcePath:     r.Job.SourcePath,
		TargetFormat:   string(r.Job.TargetFormat),
		Quality:        string(r.Job.Quality),
		OutputDir:      r.Job.OutputDir,
		OCR:            r.Job.OCR,
		PreserveLayout: r.Job.PreserveLayout,
		Status:         string(r.Status),
		OutputPath:     r.OutputPath,
		Engine:         r.Engine,
		ErrorKind:      string(r.Kind),
		ErrorMessage:   r.Error,
		DurationMs:     r.Elapsed.Milliseconds(),
		ConsoleOutput:  r.Log,
	}
}

// Job rebuilds the job that produced the record.
func (r ResultRecord) Job() domain.Job {
	return domain.Job{
		SourcePath:     r.SourcePath,
		TargetFormat:   format.Format(r.TargetFormat),
		Quality:        domain.Quality(r.Quality),
		OutputDir:      r.OutputDir,
		OCR:            r.OCR,
		PreserveLayout: r.PreserveLayout,
	}
}

// Result converts the record back to a domain result.
func (r ResultRecord) Result() domain.Result {
	return domain.Result{
		Index:      r.Position,
		Job:        r.Job(),
		Status:     domain.Status(r.Status),
		OutputPath: r.OutputPath,
		Error:      r.ErrorMessage,
		Kind:       domain.ErrorKind(r.ErrorKind),
		Engine:     r.Engine,
		Elapsed:    time.Duration(r.DurationMs) * time.Millisecond,
		Log:        r.ConsoleOutput,
	}
}
