package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"parley/internal/domain"
)

// InsertReportTx persists one confidence scoring run.
func (r Repo) InsertReportTx(ctx context.Context, tx *sql.Tx, rep domain.ConfidenceReport) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO confidence_reports(session_id,analyzer_version,payload_json,score,level,ready,created_at)
VALUES (?,?,?,?,?,?,?)`,
		rep.SessionID, rep.AnalyzerVersion, string(payload), rep.Readiness.Score, rep.Readiness.Level, boolInt(rep.Readiness.IsReadyForReport), rep.CreatedAt)
	return err
}

// LatestReport returns the most recent confidence report for a session.
func (r Repo) LatestReport(ctx context.Context, sessionID string) (domain.ConfidenceReport, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT payload_json FROM confidence_reports WHERE session_id=? ORDER BY id DESC LIMIT 1`, sessionID)
	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.ConfidenceReport{}, ErrNotFound
	}
	if err != nil {
		return domain.ConfidenceReport{}, err
	}
	var rep domain.ConfidenceReport
	if err := json.Unmarshal([]byte(payload), &rep); err != nil {
		return domain.ConfidenceReport{}, fmt.Errorf("decode report: %w", err)
	}
	return rep, nil
}

// ListReports returns a session's confidence reports, newest first.
func (r Repo) ListReports(ctx context.Context, sessionID string, limit int) ([]domain.ConfidenceReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT payload_json FROM confidence_reports WHERE session_id=? ORDER BY id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ConfidenceReport
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rep domain.ConfidenceReport
		if err := json.Unmarshal([]byte(payload), &rep); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}
