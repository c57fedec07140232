package ledger

import (
	"context"
	"fmt"
	"time"
)

// SessionRecord is the ledger's row for one LiveSession, created when the
// session starts and closed out once it ends.
type SessionRecord struct {
	ID          string
	ClientID    string
	PageURL     string
	StartedAt   time.Time
	EndedAt     *time.Time
	FinalStage  string
	BANTScore   int
	ClosingUsed string
}

// TurnRecord is one committed utterance/response pair's half, stored in
// commit order per session.
type TurnRecord struct {
	SessionID string
	Seq       int
	Role      string
	Text      string
	Stage     string
	CreatedAt time.Time
}

// BANTSnapshot is a point-in-time BANT score, stored after every
// commitUtterance so the operator console can chart qualification
// progress across a session.
type BANTSnapshot struct {
	SessionID  string
	Budget     int
	Authority  int
	Need       int
	Timeline   int
	Total      int
	RecordedAt time.Time
}

// CreateSession inserts the opening row for a new LiveSession. A disabled
// store is a silent no-op so sessions run fine without a ledger configured.
func (s *Store) CreateSession(ctx context.Context, rec SessionRecord) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, client_id, page_url, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.ClientID, rec.PageURL, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("ledger: create session: %w", err)
	}
	return nil
}

// CloseSession records the session's terminal state: the flow stage it
// ended in, its final BANT total, and the closing technique used, if any.
func (s *Store) CloseSession(ctx context.Context, sessionID string, endedAt time.Time, finalStage string, bantScore int, closingUsed string) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET ended_at = $2, final_stage = $3, bant_score = $4, closing_used = $5
		WHERE id = $1
	`, sessionID, endedAt, finalStage, bantScore, closingUsed)
	if err != nil {
		return fmt.Errorf("ledger: close session: %w", err)
	}
	return nil
}

// StoreTurn appends one turn to the session's transcript.
func (s *Store) StoreTurn(ctx context.Context, t TurnRecord) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO turns (session_id, seq, role, text, stage, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.SessionID, t.Seq, t.Role, t.Text, t.Stage, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("ledger: store turn: %w", err)
	}
	return nil
}

// StoreBANTSnapshot records one BANT scoring pass.
func (s *Store) StoreBANTSnapshot(ctx context.Context, snap BANTSnapshot) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bant_snapshots (session_id, budget, authority, need, timeline, total, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, snap.SessionID, snap.Budget, snap.Authority, snap.Need, snap.Timeline, snap.Total, snap.RecordedAt)
	if err != nil {
		return fmt.Errorf("ledger: store bant snapshot: %w", err)
	}
	return nil
}

// ListTurns returns a session's transcript in commit order, used by the
// operator console's session-history view.
func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	if !s.Enabled() {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, seq, role, text, stage, created_at
		FROM turns
		WHERE session_id = $1
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list turns: %w", err)
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var t TurnRecord
		if err := rows.Scan(&t.SessionID, &t.Seq, &t.Role, &t.Text, &t.Stage, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan turn: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: list turns: %w", err)
	}
	return out, nil
}

// GetSession fetches one session's row, used to resume or inspect state.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("ledger: not configured")
	}
	var rec SessionRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, client_id, page_url, started_at, ended_at, final_stage, bant_score, closing_used
		FROM sessions
		WHERE id = $1
	`, sessionID).Scan(&rec.ID, &rec.ClientID, &rec.PageURL, &rec.StartedAt, &rec.EndedAt, &rec.FinalStage, &rec.BANTScore, &rec.ClosingUsed)
	if err != nil {
		return nil, fmt.Errorf("ledger: get session: %w", err)
	}
	return &rec, nil
}
