package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/worky/internal/store"
	"go.uber.org/zap"
)

// Store is the persistence the ledger needs.
type Store interface {
	Balance(ctx context.Context, phone string) (int, error)
	Credit(ctx context.Context, phone string, n int, key string) error
	Debit(ctx context.Context, phone string, key string) (bool, error)
	SaveTransaction(ctx context.Context, tx *store.Transaction) error
}

// Ledger gates and charges billable actions.
type Ledger struct {
	store   Store
	enforce bool
	logger  *zap.Logger
	now     func() time.Time
}

// NewLedger returns a ledger. With enforce false every action is free.
func NewLedger(s Store, enforce bool, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: s, enforce: enforce, logger: logger, now: time.Now}
}

func (l *Ledger) Enforced() bool { return l.enforce }

func (l *Ledger) Balance(ctx context.Context, phone string) (int, error) {
	return l.store.Balance(ctx, phone)
}

// CanSpend reports whether the user may start a billable action.
func (l *Ledger) CanSpend(ctx context.Context, phone string) (bool, error) {
	if !l.enforce {
		return true, nil
	}
	balance, err := l.store.Balance(ctx, phone)
	if err != nil {
		return false, err
	}
	return balance > 0, nil
}

// Charge debits one credit for the action identified by key. Charging the same
// key twice debits once. It returns false when the balance is empty.
func (l *Ledger) Charge(ctx context.Context, phone, key string) (bool, error) {
	if !l.enforce {
		return true, nil
	}
	ok, err := l.store.Debit(ctx, phone, "debit:"+key)
	if err != nil {
		return false, fmt.Errorf("debit: %w", err)
	}
	l.logger.Info("credit charged",
		zap.String("user", phone),
		zap.String("key", key),
		zap.Bool("charged", ok),
	)
	return ok, nil
}

// Purchase is a verified plan payment.
type Purchase struct {
	// Key identifies the proof submission, usually the inbound event id.
	Key      string
	Plan     Plan
	ProofURL string
	Detail   string
}

// Redeem records a verified purchase and credits the plan. Redeeming the same
// key twice credits once. It returns the new balance.
func (l *Ledger) Redeem(ctx context.Context, phone string, p Purchase) (int, error) {
	if p.Key == "" {
		return 0, errors.New("purchase key is required")
	}
	tx := l.transaction(phone, p, store.TransactionVerified)
	if err := l.store.SaveTransaction(ctx, tx); err != nil {
		return 0, fmt.Errorf("save transaction: %w", err)
	}
	if err := l.store.Credit(ctx, phone, p.Plan.Credits, "purchase:"+p.Key); err != nil {
		return 0, fmt.Errorf("credit: %w", err)
	}

	l.logger.Info("plan redeemed",
		zap.String("user", phone),
		zap.String("plan", p.Plan.ID),
		zap.Int("credits", p.Plan.Credits),
		zap.String("transaction", tx.ID),
	)
	return l.store.Balance(ctx, phone)
}

// Reject records a purchase attempt whose proof was not accepted.
func (l *Ledger) Reject(ctx context.Context, phone string, p Purchase) error {
	if err := l.store.SaveTransaction(ctx, l.transaction(phone, p, store.TransactionRejected)); err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	return nil
}

// Grant adds credits outside a purchase, e.g. on sign-up. key makes it idempotent.
func (l *Ledger) Grant(ctx context.Context, phone string, n int, key string) error {
	if n <= 0 {
		return nil
	}
	if key == "" {
		return errors.New("grant key is required")
	}
	return l.store.Credit(ctx, phone, n, "grant:"+key)
}

func (l *Ledger) transaction(phone string, p Purchase, status store.TransactionStatus) *store.Transaction {
	now := l.now().UTC()
	id := p.Key
	if id == "" {
		id = uuid.NewString()
	}
	return &store.Transaction{
		ID:        id,
		UserID:    phone,
		PlanID:    p.Plan.ID,
		Amount:    p.Plan.Price,
		Credits:   p.Plan.Credits,
		ProofURL:  p.ProofURL,
		Status:    status,
		Detail:    p.Detail,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
