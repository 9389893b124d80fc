package conversation

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestInboxPreservesPerUserOrder(t *testing.T) {
	var (
		mu     sync.Mutex
		seen   = map[string][]string{}
		active = map[string]int{}
	)

	handle := func(_ context.Context, ev Event) error {
		mu.Lock()
		active[ev.From]++
		if active[ev.From] > 1 {
			mu.Unlock()
			t.Errorf("concurrent handling for %s", ev.From)
			return nil
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		seen[ev.From] = append(seen[ev.From], ev.Body)
		active[ev.From]--
		mu.Unlock()
		return nil
	}

	inbox := NewInbox(context.Background(), handle, time.Second, nil)
	for _, body := range []string{"1", "2", "3", "4", "5"} {
		for _, from := range []string{"a", "b"} {
			if err := inbox.Submit(Event{From: from, Body: body}); err != nil {
				t.Fatalf("submit: %v", err)
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := inbox.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, from := range []string{"a", "b"} {
		got := seen[from]
		if len(got) != 5 {
			t.Fatalf("expected 5 events for %s, got %v", from, got)
		}
		for i, body := range got {
			if want := string(rune('1' + i)); body != want {
				t.Fatalf("out of order for %s: %v", from, got)
			}
		}
	}

	if err := inbox.Submit(Event{From: "a"}); err != ErrInboxClosed {
		t.Fatalf("expected ErrInboxClosed, got %v", err)
	}
}
