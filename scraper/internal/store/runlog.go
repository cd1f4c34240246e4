// CLAUDE:SUMMARY Run log persistence: one row per run, opened at start and closed with its outcome.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/supplyscrape/dbopen"
	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
)

const runColumns = `id, site_id, state, strategy, found, staged, failed, message, started_at, finished_at`

// InsertRun records the start of a run.
func (s *Store) InsertRun(ctx context.Context, r *model.RunRecord) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = s.now().UTC()
	}
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO run_log (`+runColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.SiteID, string(r.State), r.Strategy, r.Found, r.Staged, r.Failed, r.Message,
		millis(r.StartedAt), nullMillis(r),
	)
	if err != nil {
		return fmt.Errorf("store: insert run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun stores the outcome of a run. FinishedAt defaults to now.
func (s *Store) FinishRun(ctx context.Context, r *model.RunRecord) error {
	if r.FinishedAt == nil {
		now := s.now().UTC()
		r.FinishedAt = &now
	}
	res, err := dbopen.Exec(ctx, s.DB, `
		UPDATE run_log
		SET state = ?, strategy = ?, found = ?, staged = ?, failed = ?, message = ?, finished_at = ?
		WHERE id = ?`,
		string(r.State), r.Strategy, r.Found, r.Staged, r.Failed, r.Message, millis(*r.FinishedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("store: finish run %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: finish run %s: not found", r.ID)
	}
	return nil
}

// SetRunState updates the state of an unfinished run. Finished runs and
// unknown IDs are left alone; the returned bool reports whether a row changed.
func (s *Store) SetRunState(ctx context.Context, id string, state model.RunState, msg string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB, `
		UPDATE run_log SET state = ?, message = ?
		WHERE id = ? AND finished_at IS NULL`,
		string(state), msg, id,
	)
	if err != nil {
		return false, fmt.Errorf("store: set run state %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetRun returns a run record by ID, or nil.
func (s *Store) GetRun(ctx context.Context, id string) (*model.RunRecord, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM run_log WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns recent runs, newest first. An empty siteID lists all
// sites. limit <= 0 means 50.
func (s *Store) ListRuns(ctx context.Context, siteID string, limit int) ([]*model.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM run_log`
	var args []any
	if siteID != "" {
		query += ` WHERE site_id = ?`
		args = append(args, siteID)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limitOr(limit, 50))

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []*model.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRun(row scanner) (*model.RunRecord, error) {
	r := &model.RunRecord{}
	var state string
	var started int64
	var finished sql.NullInt64
	if err := row.Scan(
		&r.ID, &r.SiteID, &state, &r.Strategy, &r.Found, &r.Staged, &r.Failed, &r.Message,
		&started, &finished,
	); err != nil {
		return nil, err
	}
	r.State = model.RunState(state)
	r.StartedAt = fromMillis(started)
	if finished.Valid {
		t := fromMillis(finished.Int64)
		r.FinishedAt = &t
	}
	return r, nil
}

func nullMillis(r *model.RunRecord) any {
	if r.FinishedAt == nil {
		return nil
	}
	return millis(*r.FinishedAt)
}
