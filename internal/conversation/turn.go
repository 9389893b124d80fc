package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Turn is the capability set handed to step prompts and handlers while one
// inbound event is processed.
type Turn struct {
	Event  Event
	Logger *zap.Logger

	session *Session
	step    *Step
	sender  Sender
}

// UserID returns the user the turn belongs to.
func (t *Turn) UserID() string {
	return t.session.UserID
}

// Flow returns the active flow id.
func (t *Turn) Flow() FlowID {
	return t.session.Flow
}

// StepIndex returns the active step index.
func (t *Turn) StepIndex() int {
	return t.session.Step
}

// Retries returns how many fallbacks happened on the current step.
func (t *Turn) Retries() int {
	return t.session.Retries
}

// Input returns the trimmed text of the inbound event.
func (t *Turn) Input() string {
	return t.Event.Text()
}

// Choice matches the inbound text against the current step's labels.
func (t *Turn) Choice() (string, bool) {
	if t.step == nil {
		return "", false
	}
	return t.step.Labels.Match(t.Event.Body)
}

// Send delivers messages in order. Delivery failures are logged and the first
// one is returned; the remaining messages are still attempted.
func (t *Turn) Send(ctx context.Context, msgs ...Message) error {
	var first error
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if err := t.sender.Send(ctx, t.session.UserID, msg); err != nil {
			t.Logger.Warn("sending message failed", zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Load decodes the flow state into v. Missing state leaves v untouched.
func (t *Turn) Load(v any) error {
	if len(t.session.State) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.session.State, v); err != nil {
		return fmt.Errorf("decode %s state: %w", t.session.Flow, err)
	}
	return nil
}

// Store replaces the flow state with v.
func (t *Turn) Store(v any) error {
	raw, err := encodeState(v)
	if err != nil {
		return fmt.Errorf("encode %s state: %w", t.session.Flow, err)
	}
	t.session.State = raw
	return nil
}

// State decodes the flow state of a turn into a fresh T.
func State[T any](t *Turn) (T, error) {
	var v T
	err := t.Load(&v)
	return v, err
}
