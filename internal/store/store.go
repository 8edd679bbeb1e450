// Package store persists runs, per-sample indices and convergence traces in
// SQLite or Postgres through database/sql.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/GoSim-25-26J-441/adequacy-core/internal/convergence"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("run not found")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultSQLitePath = "adequacy.db"
)

var sqlOpen = sql.Open

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		samples INTEGER NOT NULL,
		sim_hours INTEGER NOT NULL,
		model TEXT NOT NULL,
		workers INTEGER NOT NULL,
		seed BIGINT NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		lolp DOUBLE PRECISION,
		lolh DOUBLE PRECISION,
		eue DOUBLE PRECISION,
		epns DOUBLE PRECISION,
		lolf DOUBLE PRECISION,
		mdt DOUBLE PRECISION,
		lole DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS sample_indices (
		run_id TEXT NOT NULL,
		sample INTEGER NOT NULL,
		lolp DOUBLE PRECISION NOT NULL,
		lolh DOUBLE PRECISION NOT NULL,
		eue DOUBLE PRECISION NOT NULL,
		epns DOUBLE PRECISION NOT NULL,
		lolf DOUBLE PRECISION NOT NULL,
		mdt DOUBLE PRECISION NOT NULL,
		lole DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, sample)
	)`,
	`CREATE TABLE IF NOT EXISTS convergence (
		run_id TEXT NOT NULL,
		samples INTEGER NOT NULL,
		mean DOUBLE PRECISION NOT NULL,
		cov DOUBLE PRECISION,
		PRIMARY KEY (run_id, samples)
	)`,
}

// Store is a SQL-backed run repository
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured database and applies the schema. An empty
// driver means SQLite; an empty SQLite DSN uses adequacy.db in the working directory.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	driver, dsn := cfg.Driver, cfg.DSN
	if driver == "" {
		driver = DriverSQLite
	}

	var sqlDriver string
	switch driver {
	case DriverSQLite:
		sqlDriver = "sqlite"
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create dirs: %w", err)
			}
		}
	case DriverPostgres:
		sqlDriver = "pgx"
		if dsn == "" {
			return nil, fmt.Errorf("%w: postgres store requires a dsn", config.ErrInvalid)
		}
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", config.ErrInvalid, driver)
	}

	db, err := sqlOpen(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// A single connection serializes writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the store driver name
func (s *Store) Driver() string { return s.driver }

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// q rewrites $N placeholders for SQLite, which numbers them ?N.
func (s *Store) q(query string) string {
	if s.driver == DriverSQLite {
		return placeholder.ReplaceAllString(query, "?$1")
	}
	return query
}

func nullFloat(v float64, ok bool) sql.NullFloat64 {
	if !ok || math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// SaveRun inserts or updates a run row
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	ix := models.Indices{}
	has := run.Indices != nil
	if has {
		ix = *run.Indices
	}
	start := formatTime(run.StartTime)
	if !start.Valid {
		start = formatTime(time.Now())
	}

	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO runs
		(id, status, samples, sim_hours, model, workers, seed, started_at, ended_at, duration_ms, error,
		 lolp, lolh, eue, epns, lolf, mdt, lole)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status, samples = excluded.samples, sim_hours = excluded.sim_hours,
			model = excluded.model, workers = excluded.workers, seed = excluded.seed,
			started_at = excluded.started_at, ended_at = excluded.ended_at,
			duration_ms = excluded.duration_ms, error = excluded.error,
			lolp = excluded.lolp, lolh = excluded.lolh, eue = excluded.eue, epns = excluded.epns,
			lolf = excluded.lolf, mdt = excluded.mdt, lole = excluded.lole`),
		run.ID, string(run.Status), run.Samples, run.SimHours, run.Model, run.Workers, run.Seed,
		start, formatTime(run.EndTime), run.Duration.Milliseconds(), run.Error,
		nullFloat(ix.LOLP, has), nullFloat(ix.LOLH, has), nullFloat(ix.EUE, has), nullFloat(ix.EPNS, has),
		nullFloat(ix.LOLF, has), nullFloat(ix.MDT, has), nullFloat(ix.LOLE, has),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// SaveSamples replaces the per-sample indices of a run
func (s *Store) SaveSamples(ctx context.Context, runID string, samples []models.Indices) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM sample_indices WHERE run_id = $1`), runID); err != nil {
		return fmt.Errorf("clear samples: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, s.q(`INSERT INTO sample_indices
		(run_id, sample, lolp, lolh, eue, epns, lolf, mdt, lole)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`))
	if err != nil {
		return fmt.Errorf("prepare samples: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, ix := range samples {
		if _, err := stmt.ExecContext(ctx, runID, i, ix.LOLP, ix.LOLH, ix.EUE, ix.EPNS, ix.LOLF, ix.MDT, ix.LOLE); err != nil {
			return fmt.Errorf("insert sample %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit samples: %w", err)
	}
	return nil
}

// SaveConvergence replaces the convergence trace of a run. Undefined CoV
// values are stored as NULL.
func (s *Store) SaveConvergence(ctx context.Context, runID string, trace []convergence.Point) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM convergence WHERE run_id = $1`), runID); err != nil {
		return fmt.Errorf("clear convergence: %w", err)
	}
	for _, p := range trace {
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO convergence (run_id, samples, mean, cov) VALUES ($1, $2, $3, $4)`),
			runID, p.Samples, p.Mean, nullFloat(p.CoV, true)); err != nil {
			return fmt.Errorf("insert convergence point %d: %w", p.Samples, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit convergence: %w", err)
	}
	return nil
}

const runColumns = `id, status, samples, sim_hours, model, workers, seed, started_at, ended_at, duration_ms, error,
	lolp, lolh, eue, epns, lolf, mdt, lole`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run        models.Run
		status     string
		start      string
		end        sql.NullString
		durationMs int64
		v          [7]sql.NullFloat64
	)
	if err := row.Scan(&run.ID, &status, &run.Samples, &run.SimHours, &run.Model, &run.Workers, &run.Seed,
		&start, &end, &durationMs, &run.Error,
		&v[0], &v[1], &v[2], &v[3], &v[4], &v[5], &v[6]); err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	run.Duration = time.Duration(durationMs) * time.Millisecond
	if t, err := time.Parse(time.RFC3339Nano, start); err == nil {
		run.StartTime = t
	}
	if end.Valid {
		if t, err := time.Parse(time.RFC3339Nano, end.String); err == nil {
			run.EndTime = t
		}
	}
	if v[0].Valid {
		vec := make([]float64, len(v))
		for i := range v {
			vec[i] = v[i].Float64
		}
		ix := models.IndicesFromVector(vec)
		run.Indices = &ix
	}
	return &run, nil
}

// GetRun loads a run by id
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+runColumns+` FROM runs WHERE id = $1`), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, most recently started first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT $1`), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SampleIndices loads the per-sample indices of a run in sample order
func (s *Store) SampleIndices(ctx context.Context, runID string) ([]models.Indices, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT lolp, lolh, eue, epns, lolf, mdt, lole
		FROM sample_indices WHERE run_id = $1 ORDER BY sample`), runID)
	if err != nil {
		return nil, fmt.Errorf("select samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Indices
	for rows.Next() {
		var ix models.Indices
		if err := rows.Scan(&ix.LOLP, &ix.LOLH, &ix.EUE, &ix.EPNS, &ix.LOLF, &ix.MDT, &ix.LOLE); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, ix)
	}
	return out, rows.Err()
}

// Convergence loads the convergence trace of a run
func (s *Store) Convergence(ctx context.Context, runID string) ([]convergence.Point, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT samples, mean, cov FROM convergence WHERE run_id = $1 ORDER BY samples`), runID)
	if err != nil {
		return nil, fmt.Errorf("select convergence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []convergence.Point
	for rows.Next() {
		var p convergence.Point
		var cov sql.NullFloat64
		if err := rows.Scan(&p.Samples, &p.Mean, &cov); err != nil {
			return nil, fmt.Errorf("scan convergence: %w", err)
		}
		p.CoV = math.NaN()
		if cov.Valid {
			p.CoV = cov.Float64
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
