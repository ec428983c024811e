package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"parley/internal/domain"
)

// InsertMilestoneTx records a milestone for a pain point. The natural key
// (session_id, pain_point_id) makes retried synthesis idempotent: a conflict
// leaves the original row untouched and reports inserted=false.
func (r Repo) InsertMilestoneTx(ctx context.Context, tx *sql.Tx, sessionID string, m domain.Milestone) (bool, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return false, fmt.Errorf("marshal milestone: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO milestones(session_id,pain_point_id,payload_json,confidence,needs_review,shown_at)
VALUES (?,?,?,?,?,?) ON CONFLICT(session_id,pain_point_id) DO NOTHING`,
		sessionID, m.PainPointID, string(payload), m.Confidence, boolInt(m.NeedsManualReview), m.ShownAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetMilestone loads one milestone by its natural key.
func (r Repo) GetMilestone(ctx context.Context, sessionID, painPointID string) (domain.Milestone, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT payload_json, COALESCE(user_feedback,'') FROM milestones WHERE session_id=? AND pain_point_id=?`,
		sessionID, painPointID)
	return scanMilestone(row.Scan)
}

// GetMilestoneTx loads one milestone inside a transaction.
func (r Repo) GetMilestoneTx(ctx context.Context, tx *sql.Tx, sessionID, painPointID string) (domain.Milestone, error) {
	row := tx.QueryRowContext(ctx, `SELECT payload_json, COALESCE(user_feedback,'') FROM milestones WHERE session_id=? AND pain_point_id=?`,
		sessionID, painPointID)
	return scanMilestone(row.Scan)
}

func scanMilestone(scan func(dest ...any) error) (domain.Milestone, error) {
	var payload, feedback string
	err := scan(&payload, &feedback)
	if err == sql.ErrNoRows {
		return domain.Milestone{}, ErrNotFound
	}
	if err != nil {
		return domain.Milestone{}, err
	}
	var m domain.Milestone
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return domain.Milestone{}, fmt.Errorf("decode milestone: %w", err)
	}
	if feedback != "" {
		m.UserFeedback = feedback
	}
	return m, nil
}

// ListMilestones returns a session's milestones in recording order.
func (r Repo) ListMilestones(ctx context.Context, sessionID string) ([]domain.Milestone, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT payload_json, COALESCE(user_feedback,'') FROM milestones WHERE session_id=? ORDER BY shown_at ASC, pain_point_id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// SetMilestoneFeedbackTx stores the user's reaction to a shown milestone,
// inside the same transaction that records the audit event.
func (r Repo) SetMilestoneFeedbackTx(ctx context.Context, tx *sql.Tx, sessionID, painPointID, feedback string) error {
	res, err := tx.ExecContext(ctx, `UPDATE milestones SET user_feedback=? WHERE session_id=? AND pain_point_id=?`,
		nullable(feedback), sessionID, painPointID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
