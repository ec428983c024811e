package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"parley/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrStaleWrite indicates the session was modified since it was read.
	ErrStaleWrite = errors.New("session modified concurrently; refetch and retry")
)

// InsertSession stores a new session at version 1.
func (r Repo) InsertSession(ctx context.Context, tx *sql.Tx, s domain.Session) error {
	profile, err := json.Marshal(s.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	state, err := json.Marshal(s.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO sessions(id,phase,profile_json,state_json,version,created_at,updated_at) VALUES (?,?,?,?,1,?,?)`,
		s.ID, string(s.State.Phase), string(profile), string(state), s.CreatedAt, s.UpdatedAt)
	return err
}

func scanSession(scan func(dest ...any) error) (domain.Session, error) {
	var s domain.Session
	var phase, profileJSON, stateJSON string
	err := scan(&s.ID, &phase, &profileJSON, &stateJSON, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(profileJSON), &s.Profile); err != nil {
		return s, fmt.Errorf("decode profile: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &s.State); err != nil {
		return s, fmt.Errorf("decode state: %w", err)
	}
	return s, nil
}

const sessionColumns = `id,phase,profile_json,state_json,version,created_at,updated_at`

// GetSession loads one session, including its workshop state.
func (r Repo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id)
	return scanSession(row.Scan)
}

// GetSessionTx loads one session inside a transaction.
func (r Repo) GetSessionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Session, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id)
	return scanSession(row.Scan)
}

// UpdateSessionState writes new workshop state guarded by the version read
// earlier. Zero rows affected means either a stale write or a missing row;
// the session is re-checked to tell the two apart.
func (r Repo) UpdateSessionState(ctx context.Context, tx *sql.Tx, id string, state domain.WorkshopState, expectedVersion int64, updatedAt string) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET phase=?, state_json=?, version=version+1, updated_at=? WHERE id=? AND version=?`,
		string(state.Phase), string(data), updatedAt, id, expectedVersion)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		row := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id=?`, id)
		if scanErr := row.Scan(&exists); scanErr == sql.ErrNoRows {
			return ErrNotFound
		}
		return ErrStaleWrite
	}
	return nil
}

// ListSessions returns sessions, optionally filtered by phase.
func (r Repo) ListSessions(ctx context.Context, phase string) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if phase != "" {
		query += ` WHERE phase=?`
		args = append(args, phase)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// DeleteSession removes a session and its dependent rows.
func (r Repo) DeleteSession(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountSessionsByPhase groups sessions by outer phase.
func (r Repo) CountSessionsByPhase(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT phase, count(*) FROM sessions GROUP BY phase`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var phase string
		var count int
		if err := rows.Scan(&phase, &count); err != nil {
			return nil, err
		}
		res[phase] = count
	}
	return res, nil
}

// LatestEvents returns events newest first with optional filters.
func (r Repo) LatestEvents(ctx context.Context, limit int, sessionID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if sessionID != "" {
		clauses = append(clauses, "session_id=?")
		args = append(args, sessionID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(session_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,ts,type,COALESCE(session_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`
	return r.queryEvents(ctx, query, cursor, limit)
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.SessionID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
