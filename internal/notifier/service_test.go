package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"focusbot/internal/eventbus"
	"focusbot/internal/transport"
	"focusbot/internal/ui"
	"focusbot/pkg/logx"
)

type fakeAdapter struct {
	mu        sync.Mutex
	sendFails int
	editErr   error
	sent      []string
	edits     int
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }
func (f *fakeAdapter) AnswerCallback(context.Context, string, string, bool) error {
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, chatID int64, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendFails > 0 {
		f.sendFails--
		return transport.MessageRef{}, errors.New("429 too many requests")
	}
	f.sent = append(f.sent, text)
	return transport.MessageRef{ChatID: chatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits++
	return f.editErr
}

func newTestService(ad *fakeAdapter, cfg Config) *Service {
	cfg.RatePerSec = 1000
	cfg.RetryBase = time.Millisecond
	cfg.RetryMaxDelay = 2 * time.Millisecond
	return New(cfg, ad, eventbus.New(), logx.Nop())
}

func TestSendRetries(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{sendFails: 2}
	s := newTestService(ad, Config{RetryMax: 2})
	ref, err := s.Send(context.Background(), 10, ui.Plain("hi"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ref.ChatID != 10 || ref.MessageID != 1 {
		t.Fatalf("ref = %+v", ref)
	}

	ad2 := &fakeAdapter{sendFails: 5}
	s2 := newTestService(ad2, Config{RetryMax: 1})
	if _, err := s2.Send(context.Background(), 10, ui.Plain("hi")); err == nil {
		t.Fatalf("expected error after retries exhausted")
	}
}

func TestEditFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	ad := &fakeAdapter{editErr: errors.New("message to edit not found")}
	s := New(Config{RatePerSec: 1000}, ad, bus, logx.Nop())
	if s.Edit(context.Background(), transport.MessageRef{ChatID: 1, MessageID: 2}, ui.Plain("x")) {
		t.Fatalf("Edit reported success")
	}
	if e := <-events; e.Type != eventbus.EditFailed {
		t.Fatalf("event = %+v", e)
	}
	if s.Edit(context.Background(), transport.MessageRef{}, ui.Plain("x")) {
		t.Fatalf("Edit with empty ref reported success")
	}
	if ad.edits != 1 {
		t.Fatalf("edits = %d, want 1", ad.edits)
	}
}

func TestNotifyDedup(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	s := newTestService(ad, Config{DedupWindow: time.Minute})
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	for range 3 {
		if err := s.Notify(ctx, 5, ui.Plain("reminder")); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	_ = s.Notify(ctx, 6, ui.Plain("reminder"))
	now = now.Add(2 * time.Minute)
	_ = s.Notify(ctx, 5, ui.Plain("reminder"))

	if len(ad.sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(ad.sent))
	}
}
