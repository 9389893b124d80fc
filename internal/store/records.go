package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// AppendCVAnalysis appends an analysis to the user's history and bumps the
// analyzed counter. Appending the same id twice keeps the first record.
func (s *SQLiteStore) AppendCVAnalysis(ctx context.Context, a *CVAnalysis) error {
	if a.ID == "" {
		return errors.New("analysis id is required")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO cv_analyses (id, phone, record_json, created_at) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			a.ID, a.UserID, string(payload), unix(a.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert analysis: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE users SET total_cv_analyzed = total_cv_analyzed + 1, updated_at = ? WHERE phone = ?`,
			unix(s.now()), a.UserID)
		if err != nil {
			return fmt.Errorf("update analyzed counter: %w", err)
		}
		return nil
	})
}

// ListCVAnalyses returns the user's analyses, oldest first.
func (s *SQLiteStore) ListCVAnalyses(ctx context.Context, phone string) ([]*CVAnalysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_json FROM cv_analyses WHERE phone = ? ORDER BY created_at, rowid`, phone)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var out []*CVAnalysis
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		var a CVAnalysis
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// AppendInterview appends a completed interview to the user's history.
// Appending the same id twice keeps the first record.
func (s *SQLiteStore) AppendInterview(ctx context.Context, iv *Interview) error {
	if iv.ID == "" {
		return errors.New("interview id is required")
	}
	if iv.CompletedAt.IsZero() {
		iv.CompletedAt = s.now()
	}

	payload, err := json.Marshal(iv)
	if err != nil {
		return fmt.Errorf("marshal interview: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO interviews (id, phone, record_json, completed_at) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			iv.ID, iv.UserID, string(payload), unix(iv.CompletedAt))
		if err != nil {
			return fmt.Errorf("insert interview: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE users SET last_interview_at = ?, updated_at = ? WHERE phone = ?`,
			unix(iv.CompletedAt), unix(s.now()), iv.UserID)
		if err != nil {
			return fmt.Errorf("update interview activity: %w", err)
		}
		return nil
	})
}

// ListInterviews returns the user's interviews, oldest first.
func (s *SQLiteStore) ListInterviews(ctx context.Context, phone string) ([]*Interview, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_json FROM interviews WHERE phone = ? ORDER BY completed_at, rowid`, phone)
	if err != nil {
		return nil, fmt.Errorf("query interviews: %w", err)
	}
	defer rows.Close()

	var out []*Interview
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		var iv Interview
		if err := json.Unmarshal([]byte(payload), &iv); err != nil {
			return nil, fmt.Errorf("decode interview: %w", err)
		}
		out = append(out, &iv)
	}
	return out, rows.Err()
}

// SaveTransaction inserts or updates a transaction by id.
func (s *SQLiteStore) SaveTransaction(ctx context.Context, t *Transaction) error {
	if t.ID == "" {
		return errors.New("transaction id is required")
	}
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = TransactionPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, phone, plan_id, amount, credits, proof_url, status, detail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			proof_url = excluded.proof_url,
			status = excluded.status,
			detail = excluded.detail,
			updated_at = excluded.updated_at`,
		t.ID, t.UserID, t.PlanID, t.Amount, t.Credits, t.ProofURL, string(t.Status), t.Detail,
		unix(t.CreatedAt), unix(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert transaction: %w", err)
	}
	return nil
}

// GetTransaction returns a transaction by id.
func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, phone, plan_id, amount, credits, proof_url, status, detail, created_at, updated_at
		FROM transactions WHERE id = ?`, id)

	var (
		t                Transaction
		status           string
		created, updated int64
	)
	err := row.Scan(&t.ID, &t.UserID, &t.PlanID, &t.Amount, &t.Credits, &t.ProofURL, &status, &t.Detail, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	t.Status = TransactionStatus(status)
	t.CreatedAt = fromUnix(created)
	t.UpdatedAt = fromUnix(updated)
	return &t, nil
}
