package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// GetUser retrieves a user by phone number.
func (s *SQLiteStore) GetUser(ctx context.Context, phone string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT phone, name, email, credits, total_cv_analyzed, terms_accepted,
		       last_interview_at, created_at, updated_at
		FROM users WHERE phone = ?`, phone)

	var (
		u                  User
		terms              int
		lastInterview      sql.NullInt64
		created, updatedAt int64
	)
	err := row.Scan(&u.Phone, &u.Name, &u.Email, &u.Credits, &u.TotalCVAnalyzed, &terms,
		&lastInterview, &created, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	u.TermsAccepted = terms == 1
	if lastInterview.Valid {
		t := fromUnix(lastInterview.Int64)
		u.LastInterviewAt = &t
	}
	u.CreatedAt = fromUnix(created)
	u.UpdatedAt = fromUnix(updatedAt)

	return &u, nil
}

// SaveUser creates the user or updates its profile fields. Credits are only
// taken from u on creation; afterwards they change through the ledger.
func (s *SQLiteStore) SaveUser(ctx context.Context, u *User) error {
	now := s.now()
	terms := 0
	if u.TermsAccepted {
		terms = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (phone, name, email, credits, terms_accepted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			terms_accepted = excluded.terms_accepted,
			updated_at = excluded.updated_at`,
		u.Phone, u.Name, u.Email, max(u.Credits, 0), terms, unix(now), unix(now),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// TermsAccepted reports whether the user exists and accepted the terms.
func (s *SQLiteStore) TermsAccepted(ctx context.Context, phone string) (bool, error) {
	var terms int
	err := s.db.QueryRowContext(ctx, `SELECT terms_accepted FROM users WHERE phone = ?`, phone).Scan(&terms)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query terms: %w", err)
	}
	return terms == 1, nil
}

// Balance returns the user's credits. Unknown users have none.
func (s *SQLiteStore) Balance(ctx context.Context, phone string) (int, error) {
	var credits int
	err := s.db.QueryRowContext(ctx, `SELECT credits FROM users WHERE phone = ?`, phone).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return credits, nil
}

// Credit adds n credits. A key that was already applied makes the call a no-op.
func (s *SQLiteStore) Credit(ctx context.Context, phone string, n int, key string) error {
	if n <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", n)
	}
	if key == "" {
		key = uuid.NewString()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		applied, err := s.recordLedger(ctx, tx, key, phone, n)
		if err != nil || !applied {
			return err
		}

		now := unix(s.now())
		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (phone, credits, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(phone) DO UPDATE SET credits = credits + excluded.credits, updated_at = excluded.updated_at`,
			phone, n, now, now)
		if err != nil {
			return fmt.Errorf("add credits: %w", err)
		}
		return nil
	})
}

// Debit takes one credit. It returns false without changes when the balance
// is zero. A key that was already applied reports true without charging again.
func (s *SQLiteStore) Debit(ctx context.Context, phone string, key string) (bool, error) {
	if key == "" {
		key = uuid.NewString()
	}

	debited := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		applied, err := s.recordLedger(ctx, tx, key, phone, -1)
		if err != nil {
			return err
		}
		if !applied {
			debited = true
			return nil
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE users SET credits = credits - 1, updated_at = ? WHERE phone = ? AND credits > 0`,
			unix(s.now()), phone)
		if err != nil {
			return fmt.Errorf("debit credit: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("debit credit: %w", err)
		}
		if n == 0 {
			return errInsufficient
		}

		debited = true
		return nil
	})
	if errors.Is(err, errInsufficient) {
		return false, nil
	}
	return debited, err
}

var errInsufficient = errors.New("insufficient credits")

// recordLedger inserts a ledger entry and reports whether the key is new.
func (s *SQLiteStore) recordLedger(ctx context.Context, tx *sql.Tx, key, phone string, delta int) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO ledger (entry_key, phone, delta, created_at) VALUES (?, ?, ?, ?) ON CONFLICT(entry_key) DO NOTHING`,
		key, phone, delta, unix(s.now()))
	if err != nil {
		return false, fmt.Errorf("record ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record ledger entry: %w", err)
	}
	return n == 1, nil
}
