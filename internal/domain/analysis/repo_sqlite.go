package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ehr/cdastats/internal/platform/db"
	"github.com/ehr/cdastats/migrations"
)

// OpenSQLite opens the local history file and applies its schema.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// sqlite serializes writers anyway
	conn.SetMaxOpenConns(1)

	migs, err := db.LoadMigrations(migrations.SQLite())
	if err != nil {
		conn.Close()
		return nil, err
	}
	for _, m := range migs {
		if _, err := conn.ExecContext(ctx, m.SQL); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply sqlite migration %s: %w", m.Name, err)
		}
	}
	return conn, nil
}

type runRepoSQLite struct{ db *sql.DB }

// NewRunRepoSQLite stores the run history in a local sqlite database opened
// with OpenSQLite.
func NewRunRepoSQLite(conn *sql.DB) RunRepository {
	return &runRepoSQLite{db: conn}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *runRepoSQLite) scanRow(row rowScanner) (*Run, error) {
	var (
		run       Run
		id, stats string
		startedAt time.Time
	)
	err := row.Scan(&id, &run.Source, &startedAt, &run.DurationMS,
		&run.FilesTotal, &run.FilesParsed, &run.FilesFailed, &stats)
	if err != nil {
		return nil, err
	}
	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("decode run id: %w", err)
	}
	run.StartedAt = startedAt.UTC()
	if err := json.Unmarshal([]byte(stats), &run.Statistics); err != nil {
		return nil, fmt.Errorf("decode run statistics: %w", err)
	}
	return &run, nil
}

func (r *runRepoSQLite) Create(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	stats, err := json.Marshal(run.Statistics)
	if err != nil {
		return fmt.Errorf("encode run statistics: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (`+runCols+`)
		VALUES (?,?,?,?,?,?,?,?)`,
		run.ID.String(), run.Source, run.StartedAt.UTC(), run.DurationMS,
		run.FilesTotal, run.FilesParsed, run.FilesFailed, string(stats))
	if err != nil {
		return fmt.Errorf("insert analysis run: %w", err)
	}
	return nil
}

func (r *runRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	run, err := r.scanRow(r.db.QueryRowContext(ctx, `SELECT `+runCols+` FROM analysis_runs WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

func (r *runRepoSQLite) List(ctx context.Context, limit, offset int) ([]*Run, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analysis_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+runCols+` FROM analysis_runs ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
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
