package credits

import (
	"context"
	"testing"

	"github.com/spigell/worky/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLedger(t *testing.T, enforce bool) (*Ledger, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLite(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewLedger(s, enforce, zap.NewNop()), s
}

func TestChargeUntilEmpty(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, true)

	ok, err := l.Charge(ctx, "51999", "evt-0")
	require.NoError(t, err)
	assert.False(t, ok, "empty balance must not be charged")

	require.NoError(t, l.Grant(ctx, "51999", 3, "signup"))
	for i, key := range []string{"evt-1", "evt-2", "evt-3"} {
		ok, err := l.Charge(ctx, "51999", key)
		require.NoError(t, err)
		assert.True(t, ok, "charge %d", i+1)
	}

	ok, err = l.Charge(ctx, "51999", "evt-4")
	require.NoError(t, err)
	assert.False(t, ok)

	balance, err := l.Balance(ctx, "51999")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestChargeIsIdempotentPerKey(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, true)
	require.NoError(t, l.Grant(ctx, "51999", 2, "signup"))

	for range 3 {
		ok, err := l.Charge(ctx, "51999", "evt-1")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	balance, err := l.Balance(ctx, "51999")
	require.NoError(t, err)
	assert.Equal(t, 1, balance)
}

func TestCanSpend(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, true)

	ok, err := l.CanSpend(ctx, "51999")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Grant(ctx, "51999", 1, "signup"))
	ok, err = l.CanSpend(ctx, "51999")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNotEnforcedIsFree(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, false)

	ok, err := l.CanSpend(ctx, "51999")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Charge(ctx, "51999", "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedeemAndReject(t *testing.T) {
	ctx := context.Background()
	l, s := newLedger(t, true)
	plan := DefaultCatalog()[1]

	balance, err := l.Redeem(ctx, "51999", Purchase{Key: "wamid.1", Plan: plan, ProofURL: "https://proof"})
	require.NoError(t, err)
	assert.Equal(t, 3, balance)

	require.NoError(t, l.Reject(ctx, "51999", Purchase{Plan: plan, Detail: "amount_mismatch"}))

	user, err := s.GetUser(ctx, "51999")
	require.NoError(t, err)
	assert.Equal(t, 3, user.Credits)
}

func TestRedeemSameReceiptOnce(t *testing.T) {
	ctx := context.Background()
	l, s := newLedger(t, true)
	plan := DefaultCatalog()[1]
	purchase := Purchase{Key: "wamid.7", Plan: plan, ProofURL: "https://proof"}

	balance, err := l.Redeem(ctx, "51999", purchase)
	require.NoError(t, err)
	assert.Equal(t, plan.Credits, balance)

	balance, err = l.Redeem(ctx, "51999", purchase)
	require.NoError(t, err)
	assert.Equal(t, plan.Credits, balance, "a redelivered receipt must not credit again")

	tx, err := s.GetTransaction(ctx, "wamid.7")
	require.NoError(t, err)
	assert.Equal(t, store.TransactionVerified, tx.Status)
}

func TestRedeemRequiresKey(t *testing.T) {
	l, _ := newLedger(t, true)
	_, err := l.Redeem(context.Background(), "51999", Purchase{Plan: DefaultCatalog()[0]})
	assert.Error(t, err)
}
