package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type runRepoPG struct{ conn queryable }

// NewRunRepoPG stores the run history in the analysis_runs table.
func NewRunRepoPG(pool *pgxpool.Pool) RunRepository {
	return &runRepoPG{conn: pool}
}

const runCols = `id, source, started_at, duration_ms, files_total, files_parsed, files_failed, statistics`

func (r *runRepoPG) scanRow(row pgx.Row) (*Run, error) {
	var run Run
	var stats []byte
	err := row.Scan(&run.ID, &run.Source, &run.StartedAt, &run.DurationMS,
		&run.FilesTotal, &run.FilesParsed, &run.FilesFailed, &stats)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stats, &run.Statistics); err != nil {
		return nil, fmt.Errorf("decode run statistics: %w", err)
	}
	return &run, nil
}

func (r *runRepoPG) Create(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	stats, err := json.Marshal(run.Statistics)
	if err != nil {
		return fmt.Errorf("encode run statistics: %w", err)
	}
	_, err = r.conn.Exec(ctx, `
		INSERT INTO analysis_runs (`+runCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		run.ID, run.Source, run.StartedAt, run.DurationMS,
		run.FilesTotal, run.FilesParsed, run.FilesFailed, stats)
	if err != nil {
		return fmt.Errorf("insert analysis run: %w", err)
	}
	return nil
}

func (r *runRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	run, err := r.scanRow(r.conn.QueryRow(ctx, `SELECT `+runCols+` FROM analysis_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

func (r *runRepoPG) List(ctx context.Context, limit, offset int) ([]*Run, int, error) {
	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM analysis_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn.Query(ctx, `SELECT `+runCols+` FROM analysis_runs ORDER BY started_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*Run{}
	for rows.Next() {
		run, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, run)
	}
	return items, total, rows.Err()
}
