package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spigell/worky/internal/logger"
	"go.uber.org/zap"
)

var ErrInboxClosed = errors.New("inbox is closed")

// HandleFunc processes one event.
type HandleFunc func(ctx context.Context, ev Event) error

// Inbox is a work queue keyed by user id. Events of one user are handled
// one at a time in arrival order; different users proceed in parallel.
type Inbox struct {
	ctx     context.Context
	handle  HandleFunc
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	queues map[string][]Event
	closed bool
	wg     sync.WaitGroup
}

// NewInbox creates an inbox whose handlers run under ctx. A positive timeout
// bounds each event.
func NewInbox(ctx context.Context, handle HandleFunc, timeout time.Duration, log *zap.Logger) *Inbox {
	return &Inbox{
		ctx:     ctx,
		handle:  handle,
		timeout: timeout,
		logger:  logger.WithFields(log),
		queues:  make(map[string][]Event),
	}
}

// Submit enqueues an event without waiting for it to be processed.
func (in *Inbox) Submit(ev Event) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return ErrInboxClosed
	}

	queue, running := in.queues[ev.From]
	in.queues[ev.From] = append(queue, ev)
	if !running {
		in.wg.Add(1)
		go in.drain(ev.From)
	}

	return nil
}

func (in *Inbox) drain(user string) {
	defer in.wg.Done()

	for {
		in.mu.Lock()
		queue := in.queues[user]
		if len(queue) == 0 {
			delete(in.queues, user)
			in.mu.Unlock()
			return
		}
		ev := queue[0]
		in.queues[user] = queue[1:]
		in.mu.Unlock()

		in.process(ev)
	}
}

func (in *Inbox) process(ev Event) {
	ctx := in.ctx
	if in.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.timeout)
		defer cancel()
	}

	if err := in.handle(ctx, ev); err != nil {
		logger.ForUser(in.logger, ev.From, ev.ID).Error("processing event failed", zap.Error(err))
	}
}

// Close stops accepting events and waits for queued ones to finish.
func (in *Inbox) Close(ctx context.Context) error {
	in.mu.Lock()
	in.closed = true
	in.mu.Unlock()

	done := make(chan struct{})
	go func() {
		in.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
