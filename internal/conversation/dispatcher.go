package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/worky/internal/logger"
	"go.uber.org/zap"
)

const defaultMaxTransitions = 32

// Options configures a Dispatcher.
type Options struct {
	Graph    *Graph
	Sessions SessionStore
	// Members is consulted before continuing non-onboarding flows. Nil
	// treats every user as onboarded.
	Members Members
	// Events suppresses redelivered events when set.
	Events EventLog
	// Locker serializes events of one user when set.
	Locker Locker
	Sender Sender
	Logger *zap.Logger
	// Apology is sent when processing fails in a way the flow did not handle.
	Apology Message
	// MaxTransitions bounds the steps entered while processing one event.
	MaxTransitions int
	Now            func() time.Time
}

// Dispatcher routes inbound events to flow steps and persists the result.
type Dispatcher struct {
	graph          *Graph
	sessions       SessionStore
	members        Members
	events         EventLog
	locker         Locker
	sender         Sender
	logger         *zap.Logger
	apology        Message
	maxTransitions int
	now            func() time.Time
}

func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Graph == nil {
		return nil, errors.New("flow graph is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("sender is required")
	}

	d := &Dispatcher{
		graph:          opts.Graph,
		sessions:       opts.Sessions,
		members:        opts.Members,
		events:         opts.Events,
		locker:         opts.Locker,
		sender:         opts.Sender,
		logger:         logger.WithFields(opts.Logger),
		apology:        opts.Apology,
		maxTransitions: opts.MaxTransitions,
		now:            opts.Now,
	}
	if d.maxTransitions <= 0 {
		d.maxTransitions = defaultMaxTransitions
	}
	if d.now == nil {
		d.now = time.Now
	}

	return d, nil
}

// Dispatch processes one inbound event.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (err error) {
	if ev.From == "" {
		return errors.New("event without sender")
	}

	log := logger.ForUser(d.logger, ev.From, ev.ID)

	if d.locker != nil {
		unlock, err := d.locker.Lock(ctx, ev.From)
		if err != nil {
			return fmt.Errorf("lock user %s: %w", ev.From, err)
		}
		defer unlock()
	}

	// Marked before handling: a crash mid-handler loses the event rather than
	// replaying side effects such as sent messages and charges.
	if ev.ID != "" && d.events != nil {
		first, err := d.events.MarkProcessed(ctx, ev.ID)
		if err != nil {
			log.Warn("recording event id failed", zap.Error(err))
		} else if !first {
			log.Debug("dropping redelivered event")
			return nil
		}
	}

	sess, err := d.sessions.GetSession(ctx, ev.From)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	t := &Turn{Event: ev, Logger: log, sender: d.sender}

	defer func() {
		if r := recover(); r != nil {
			err = d.abort(ctx, t, fmt.Errorf("handler panic: %v", r))
		}
	}()

	return d.route(ctx, t, sess)
}

func (d *Dispatcher) route(ctx context.Context, t *Turn, sess *Session) error {
	if id, ok := d.graph.Trigger(t.Event.Body); ok {
		t.Logger.Info("keyword trigger", zap.String(logger.FieldFlow, string(id)))
		return d.start(ctx, t, id)
	}

	if sess == nil {
		return d.start(ctx, t, d.graph.Welcome())
	}

	flow, step, ok := d.graph.step(sess.Flow, sess.Step)
	if !ok || step.Kind != Capture {
		t.Logger.Warn("restarting onboarding",
			zap.Error(fmt.Errorf("%w: flow %q step %d", ErrSessionCorrupt, sess.Flow, sess.Step)),
		)
		return d.start(ctx, t, d.graph.Welcome())
	}

	if !flow.Onboarding && d.members != nil {
		accepted, err := d.members.TermsAccepted(ctx, sess.UserID)
		if err != nil {
			return fmt.Errorf("check terms: %w", err)
		}
		if !accepted {
			t.Logger.Info("terms not accepted, redirecting to onboarding")
			return d.start(ctx, t, d.graph.Welcome())
		}
	}

	t.session = sess
	t.step = step
	t.Logger = t.Logger.With(zap.String(logger.FieldFlow, string(sess.Flow)), zap.Int(logger.FieldStep, sess.Step))

	return d.run(ctx, t, step.Handle(ctx, t))
}

func (d *Dispatcher) start(ctx context.Context, t *Turn, id FlowID) error {
	t.session = &Session{UserID: t.Event.From}
	t.step = nil
	return d.run(ctx, t, Goto(id, 0))
}

// run applies handler results until the session rests on a capture step or
// the flow ends.
func (d *Dispatcher) run(ctx context.Context, t *Turn, res Result) error {
	for hops := 0; hops < d.maxTransitions; hops++ {
		var (
			target FlowID
			index  int
		)

		switch res.outcome {
		case outcomeFallback:
			return d.fallback(ctx, t, res)
		case outcomeEnd:
			t.Send(ctx, res.messages...)
			return d.drop(ctx, t)
		case outcomeAdvance:
			target, index = t.session.Flow, t.session.Step+1
			if f, ok := d.graph.Flow(target); ok && index >= len(f.Steps) {
				return d.drop(ctx, t)
			}
		case outcomeGoto:
			target, index = res.flow, res.step
			if res.stepName != "" {
				f, ok := d.graph.Flow(target)
				if !ok {
					return d.abort(ctx, t, fmt.Errorf("%w: jump to unknown flow %q", ErrSessionCorrupt, target))
				}
				if index, ok = f.Index(res.stepName); !ok {
					return d.abort(ctx, t, fmt.Errorf("%w: flow %q has no step %q", ErrSessionCorrupt, target, res.stepName))
				}
			}
			if target != t.session.Flow {
				t.session.State = nil
			}
			if res.hasState {
				raw, err := encodeState(res.state)
				if err != nil {
					return d.abort(ctx, t, fmt.Errorf("encode state for %q: %w", target, err))
				}
				t.session.State = raw
			}
		}

		_, step, ok := d.graph.step(target, index)
		if !ok {
			return d.abort(ctx, t, fmt.Errorf("%w: jump to %q step %d", ErrSessionCorrupt, target, index))
		}

		t.session.Flow, t.session.Step, t.session.Retries = target, index, 0
		t.step = step

		if step.Prompt != nil {
			t.Send(ctx, step.Prompt(ctx, t)...)
		}

		switch step.Kind {
		case Capture:
			return d.save(ctx, t)
		case Terminal:
			return d.drop(ctx, t)
		}

		res = step.Handle(ctx, t)
	}

	return d.abort(ctx, t, fmt.Errorf("flow %q exceeded %d transitions for one event", t.session.Flow, d.maxTransitions))
}

func (d *Dispatcher) fallback(ctx context.Context, t *Turn, res Result) error {
	if t.step == nil || t.step.Kind != Capture {
		t.Logger.Warn("fallback outside a capture step ends the flow",
			zap.String(logger.FieldFlow, string(t.session.Flow)),
			zap.Int(logger.FieldStep, t.session.Step),
		)
		t.Send(ctx, res.messages...)
		return d.drop(ctx, t)
	}

	msgs := res.messages
	if len(msgs) == 0 && t.step.Prompt != nil {
		msgs = t.step.Prompt(ctx, t)
	}
	t.Send(ctx, msgs...)

	t.session.Retries++
	return d.save(ctx, t)
}

func (d *Dispatcher) save(ctx context.Context, t *Turn) error {
	t.session.UpdatedAt = d.now()
	if err := d.sessions.SaveSession(ctx, t.session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (d *Dispatcher) drop(ctx context.Context, t *Turn) error {
	if err := d.sessions.DeleteSession(ctx, t.session.UserID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (d *Dispatcher) abort(ctx context.Context, t *Turn, cause error) error {
	t.Logger.Error("conversation aborted", zap.Error(cause))

	if t.session == nil {
		t.session = &Session{UserID: t.Event.From}
	}
	if d.apology != nil {
		t.Send(ctx, d.apology)
	}
	if err := d.drop(ctx, t); err != nil {
		t.Logger.Warn("dropping session after abort failed", zap.Error(err))
	}

	return cause
}
