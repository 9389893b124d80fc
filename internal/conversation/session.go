package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrSessionCorrupt is reported when a stored session points at a flow or
// step that does not exist in the current graph.
var ErrSessionCorrupt = errors.New("session-corrupt")

// Session is the durable dialogue pointer of one user.
type Session struct {
	UserID  string
	Flow    FlowID
	Step    int
	Retries int
	// State is the serialized flow-local state of Flow.
	State     json.RawMessage
	UpdatedAt time.Time
}

// SessionStore persists sessions keyed by user id.
type SessionStore interface {
	// GetSession returns nil without error when the user has no session.
	GetSession(ctx context.Context, userID string) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, userID string) error
}

// Members answers whether a user finished onboarding.
type Members interface {
	TermsAccepted(ctx context.Context, userID string) (bool, error)
}

// EventLog records inbound event ids to suppress redeliveries.
type EventLog interface {
	// MarkProcessed returns false when the id was already recorded.
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
}

// Locker serializes work for a key across goroutines or processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func encodeState(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
