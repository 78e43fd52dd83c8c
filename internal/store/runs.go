package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// Status is the outcome of a compile run.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Run is one recorded compile of a graph description.
type Run struct {
	ID       string
	Seq      int64
	Graph    string
	Source   string
	Target   string
	PlanHash string
	Nodes    int
	Groups   int
	Rewrites int
	Status   Status
	Error    string

	// Diagnostics is only populated by GetRun.
	Diagnostics []Diagnostic
}

// Diagnostic is one batched compile diagnostic attached to a failed run.
// Group is -1 when the diagnostic is not tied to a recursion group.
type Diagnostic struct {
	Code    string
	Group   int
	Message string
}

// ListOptions filters ListRuns.
type ListOptions struct {
	// Graph restricts the listing to one graph name. Empty lists all.
	Graph string
	// Limit keeps only the most recent Limit runs. Zero means no limit.
	Limit int
}

func (r *Run) validate() error {
	if r.Graph == "" {
		return errors.New("graph is required")
	}
	if r.Target == "" {
		return errors.New("target is required")
	}
	switch r.Status {
	case StatusOK, StatusFailed:
	default:
		return fmt.Errorf("invalid status %q", r.Status)
	}
	return nil
}

// WriteRun appends a run to the log. An empty run.ID is filled from the
// store's ID generator, and run.Seq is set to the next logical sequence
// number. Writing an ID that already exists is a no-op; run.Seq then
// reports the stored sequence number.
func (s *Store) WriteRun(ctx context.Context, run *Run) error {
	if err := run.validate(); err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	if run.ID == "" {
		run.ID = s.newID.Generate()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return fmt.Errorf("write run: next seq: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, graph, source, target, plan_hash, node_count, group_count, rewrites, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		seq,
		run.Graph,
		run.Source,
		run.Target,
		run.PlanHash,
		run.Nodes,
		run.Groups,
		run.Rewrites,
		string(run.Status),
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	if n == 0 {
		if err := tx.QueryRowContext(ctx, `SELECT seq FROM runs WHERE id = ?`, run.ID).Scan(&run.Seq); err != nil {
			return fmt.Errorf("write run: existing seq: %w", err)
		}
		return tx.Commit()
	}

	for i, d := range run.Diagnostics {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_diagnostics (run_id, idx, code, grp, message)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, i, d.Code, d.Group, d.Message)
		if err != nil {
			return fmt.Errorf("write run diagnostic %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: commit: %w", err)
	}
	run.Seq = seq

	slog.Debug("run recorded",
		"id", run.ID,
		"seq", seq,
		"graph", run.Graph,
		"status", run.Status,
	)
	return nil
}

// GetRun returns a run with its diagnostics.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, graph, source, target, plan_hash, node_count, group_count, rewrites, status, error
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err != nil {
		return Run{}, err
	}

	diags, err := s.readDiagnostics(ctx, id)
	if err != nil {
		return Run{}, err
	}
	run.Diagnostics = diags
	return run, nil
}

// ListRuns returns runs ordered by seq ASC, id ASC COLLATE BINARY.
// With a Limit, the most recent runs are kept, still in ascending order.
//
// Returns an empty slice (not nil) if no runs match.
func (s *Store) ListRuns(ctx context.Context, opts ListOptions) ([]Run, error) {
	query := `
		SELECT id, seq, graph, source, target, plan_hash, node_count, group_count, rewrites, status, error
		FROM runs
		WHERE (? = '' OR graph = ?)
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`
	args := []any{opts.Graph, opts.Graph}
	if opts.Limit > 0 {
		query = `
			SELECT * FROM (
				SELECT id, seq, graph, source, target, plan_hash, node_count, group_count, rewrites, status, error
				FROM runs
				WHERE (? = '' OR graph = ?)
				ORDER BY seq DESC, id COLLATE BINARY DESC
				LIMIT ?
			)
			ORDER BY seq ASC, id COLLATE BINARY ASC
		`
		args = append(args, opts.Limit)
	}

	return s.queryRuns(ctx, query, args...)
}

// RunsByHash returns every run whose plan has the given content hash.
func (s *Store) RunsByHash(ctx context.Context, hash string) ([]Run, error) {
	return s.queryRuns(ctx, `
		SELECT id, seq, graph, source, target, plan_hash, node_count, group_count, rewrites, status, error
		FROM runs
		WHERE plan_hash = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, hash)
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func (s *Store) readDiagnostics(ctx context.Context, runID string) ([]Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, grp, message
		FROM run_diagnostics
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	diags := []Diagnostic{}
	for rows.Next() {
		var d Diagnostic
		if err := rows.Scan(&d.Code, &d.Group, &d.Message); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		diags = append(diags, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics: %w", err)
	}
	return diags, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run    Run
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Seq,
		&run.Graph,
		&run.Source,
		&run.Target,
		&run.PlanHash,
		&run.Nodes,
		&run.Groups,
		&run.Rewrites,
		&status,
		&run.Error,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, sql.ErrNoRows
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = Status(status)
	return run, nil
}
