package analysis

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned by RunRepository lookups for unknown ids.
var ErrRunNotFound = errors.New("analysis run not found")

// RankedCount is one row of a top-N frequency list.
type RankedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Statistics summarizes the documents currently held by the store.
type Statistics struct {
	TotalDocuments     int            `json:"total_documents"`
	TotalPatients      int            `json:"total_patients"`
	AverageAge         float64        `json:"average_age"`
	GenderDistribution map[string]int `json:"gender_distribution"`
	TopDiagnoses       []RankedCount  `json:"top_diagnoses"`
	TopMedications     []RankedCount  `json:"top_medications"`
	ProcessingTimeMS   int64          `json:"processing_time_ms"`
}

// FileInput is one named document of a batch.
type FileInput struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// FileFailure records a document a batch could not parse.
type FileFailure struct {
	FileName string `json:"file_name"`
	Error    string `json:"error"`
}

// BatchReport is the full outcome of a batch parse.
type BatchReport struct {
	RunID      uuid.UUID     `json:"run_id"`
	Statistics Statistics    `json:"statistics"`
	Parsed     int           `json:"parsed"`
	Failures   []FileFailure `json:"failures"`
	Duration   time.Duration `json:"-"`
}

// Run is a recorded batch execution.
type Run struct {
	ID          uuid.UUID  `json:"id"`
	Source      string     `json:"source"`
	StartedAt   time.Time  `json:"started_at"`
	DurationMS  int64      `json:"duration_ms"`
	FilesTotal  int        `json:"files_total"`
	FilesParsed int        `json:"files_parsed"`
	FilesFailed int        `json:"files_failed"`
	Statistics  Statistics `json:"statistics"`
}
