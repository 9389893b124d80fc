package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spigell/worky/internal/conversation"
)

// GetSession returns the stored dialogue pointer or nil when the user has none.
func (s *SQLiteStore) GetSession(ctx context.Context, userID string) (*conversation.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, flow, step, retries, state, updated_at FROM sessions WHERE user_id = ?`, userID)

	var (
		sess    conversation.Session
		flow    string
		state   sql.NullString
		updated int64
	)
	err := row.Scan(&sess.UserID, &flow, &sess.Step, &sess.Retries, &state, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.Flow = conversation.FlowID(flow)
	if state.Valid && state.String != "" {
		sess.State = []byte(state.String)
	}
	sess.UpdatedAt = fromUnix(updated)

	return &sess, nil
}

// SaveSession inserts or replaces the user's session.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *conversation.Session) error {
	var state sql.NullString
	if len(sess.State) > 0 {
		state = sql.NullString{String: string(sess.State), Valid: true}
	}

	updated := sess.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, flow, step, retries, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			flow = excluded.flow,
			step = excluded.step,
			retries = excluded.retries,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		sess.UserID, string(sess.Flow), sess.Step, sess.Retries, state, unix(updated),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// DeleteSession removes the user's session. Deleting a missing session is not an error.
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// MarkProcessed records an inbound event id. It returns false for ids seen before.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_events (id, processed_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		eventID, unix(s.now()))
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}
	return n == 1, nil
}

// PruneEvents forgets processed event ids older than the cutoff.
func (s *SQLiteStore) PruneEvents(ctx context.Context, before int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM processed_events WHERE processed_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}
