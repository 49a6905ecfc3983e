package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/cdastats/internal/platform/ccda"
	"github.com/ehr/cdastats/internal/platform/fhir"
)

// Run history source labels.
const (
	SourceAPI = "api"
	SourceCLI = "cli"
)

// Service owns the document store and exposes the parse and statistics
// operations.
type Service struct {
	parser  *ccda.Parser
	store   *Store
	runs    RunRepository
	workers int
	logger  zerolog.Logger
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithWorkers bounds the batch worker pool; 0 means one per CPU.
func WithWorkers(n int) ServiceOption {
	return func(s *Service) { s.workers = n }
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a service with an empty store. runs may be nil, in
// which case batches are not recorded.
func NewService(parser *ccda.Parser, runs RunRepository, opts ...ServiceOption) *Service {
	s := &Service{
		parser: parser,
		store:  NewStore(),
		runs:   runs,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "analysis-service").Logger()
	return s
}

// ParseOne parses a single document and appends it to the store. On
// failure the *ccda.XMLStructureError is returned and the store is left
// untouched. A context that is done by the time parsing finishes also
// leaves the store untouched and returns ctx.Err().
func (s *Service) ParseOne(ctx context.Context, name string, xmlData []byte) error {
	doc, err := s.parser.Parse(name, xmlData)
	if err != nil {
		s.logger.Warn().Str("file", name).Err(err).Msg("document rejected")
		return err
	}
	if err := ctx.Err(); err != nil {
		s.logger.Warn().Str("file", name).Err(err).Msg("document discarded")
		return err
	}
	s.store.Append(doc)
	s.logger.Debug().
		Str("file", name).
		Int("diagnoses", len(doc.Diagnoses)).
		Int("medications", len(doc.Medications)).
		Msg("document parsed")
	return nil
}

// ParseBatch parses files and replaces the store with the documents that
// parsed. Per-file failures are skipped; the only error is a cancelled
// context.
func (s *Service) ParseBatch(ctx context.Context, files []FileInput) (*Statistics, error) {
	report, err := s.RunBatch(ctx, SourceAPI, files, nil)
	if err != nil {
		return nil, err
	}
	return &report.Statistics, nil
}

// RunBatch is ParseBatch with a source label for the run history, a
// progress callback and the full report.
func (s *Service) RunBatch(ctx context.Context, source string, files []FileInput, progress ProgressFunc) (*BatchReport, error) {
	started := s.now()

	results, err := newBatchParser(s.parser, s.workers, progress).parseAll(ctx, files)
	if err != nil {
		s.logger.Warn().Err(err).Int("files", len(files)).Msg("batch cancelled")
		return nil, err
	}

	docs := make([]*ccda.Document, 0, len(results))
	failures := []FileFailure{}
	for i, r := range results {
		if r.err != nil {
			s.logger.Warn().Str("file", files[i].Name).Err(r.err).Msg("skipping document")
			failures = append(failures, FileFailure{FileName: files[i].Name, Error: r.err.Error()})
			continue
		}
		docs = append(docs, r.doc)
	}

	if err := ctx.Err(); err != nil {
		s.logger.Warn().Err(err).Int("files", len(files)).Msg("batch cancelled")
		return nil, err
	}

	s.store.Replace(docs)

	stats := ComputeStatistics(docs)
	elapsed := s.now().Sub(started)
	stats.ProcessingTimeMS = elapsed.Milliseconds()

	report := &BatchReport{
		Statistics: stats,
		Parsed:     len(docs),
		Failures:   failures,
		Duration:   elapsed,
	}

	if s.runs != nil {
		run := &Run{
			ID:          uuid.New(),
			Source:      source,
			StartedAt:   started.UTC(),
			DurationMS:  stats.ProcessingTimeMS,
			FilesTotal:  len(files),
			FilesParsed: len(docs),
			FilesFailed: len(failures),
			Statistics:  stats,
		}
		if err := s.runs.Create(ctx, run); err != nil {
			s.logger.Error().Err(err).Msg("failed to record analysis run")
		} else {
			report.RunID = run.ID
		}
	}

	s.logger.Info().
		Str("source", source).
		Int("files", len(files)).
		Int("parsed", len(docs)).
		Int("failed", len(failures)).
		Dur("duration", elapsed).
		Msg("batch processed")

	return report, nil
}

// Statistics computes statistics for the current store contents.
// ProcessingTimeMS is the time the computation took.
func (s *Service) Statistics(ctx context.Context) *Statistics {
	started := s.now()
	stats := ComputeStatistics(s.store.Snapshot())
	stats.ProcessingTimeMS = s.now().Sub(started).Milliseconds()
	return &stats
}

// Documents returns copies of the stored documents in insertion order.
func (s *Service) Documents(ctx context.Context) []*ccda.Document {
	snap := s.store.Snapshot()
	out := make([]*ccda.Document, len(snap))
	for i, doc := range snap {
		out[i] = doc.Clone()
	}
	return out
}

// Clear empties the store.
func (s *Service) Clear(ctx context.Context) {
	s.store.Clear()
	s.logger.Info().Msg("document store cleared")
}

// Export projects every stored document onto a FHIR collection Bundle.
func (s *Service) Export(ctx context.Context) (*fhir.Bundle, error) {
	var resources []map[string]interface{}
	for i, doc := range s.store.Snapshot() {
		resources = append(resources, doc.ToFHIR(fmt.Sprintf("doc-%d", i+1))...)
	}
	bundle, err := fhir.NewCollectionBundle(uuid.New().String(), resources)
	if err != nil {
		return nil, fmt.Errorf("build export bundle: %w", err)
	}
	return bundle, nil
}

// ListRuns returns recorded batch runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]*Run, int, error) {
	if s.runs == nil {
		return []*Run{}, 0, nil
	}
	return s.runs.List(ctx, limit, offset)
}

// GetRun returns one recorded run.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	if s.runs == nil {
		return nil, ErrRunNotFound
	}
	return s.runs.GetByID(ctx, id)
}
