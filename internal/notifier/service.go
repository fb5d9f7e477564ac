package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"focusbot/internal/eventbus"
	"focusbot/internal/transport"
	"focusbot/internal/ui"
	"focusbot/pkg/logx"
)

var ErrNoAdapter = errors.New("notifier: no adapter")

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter transport.Adapter
	bus     *eventbus.Bus
	log     logx.Logger

	dmu   sync.Mutex
	dedup map[uint64]time.Time

	now func() time.Time
}

var _ Sink = (*Service)(nil)

func New(cfg Config, adapter transport.Adapter, bus *eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter: adapter,
		bus:     bus,
		log:     log,
		dedup:   map[uint64]time.Time{},
		now:     time.Now,
	}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}

	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

func (s *Service) snapshot() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

// Send delivers msg and returns a reference to the sent message.
func (s *Service) Send(ctx context.Context, chatID int64, msg ui.Message) (transport.MessageRef, error) {
	if s.adapter == nil {
		return transport.MessageRef{}, ErrNoAdapter
	}
	cfg, lim := s.snapshot()

	var lastErr error
	for attempt := 1; attempt <= 1+cfg.RetryMax; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return transport.MessageRef{}, err
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		ref, err := s.adapter.SendText(callCtx, chatID, msg.Text, msg.Options())
		cancel()
		if err == nil {
			return ref, nil
		}
		lastErr = err
		s.log.Debug("send failed", logx.Int64("chat_id", chatID), logx.Int("attempt", attempt), logx.Err(err))

		if attempt > cfg.RetryMax {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return transport.MessageRef{}, ctx.Err()
		case <-t.C:
		}
	}
	return transport.MessageRef{}, fmt.Errorf("notifier: send to %d: %w", chatID, lastErr)
}

// Notify is Send for push messages: the message reference is dropped and an
// identical message to the same chat inside the dedup window is skipped.
func (s *Service) Notify(ctx context.Context, chatID int64, msg ui.Message) error {
	cfg, _ := s.snapshot()
	if cfg.DedupWindow > 0 && !s.dedupAllow(dedupKey(chatID, msg.Text), cfg) {
		s.log.Debug("notification deduplicated", logx.Int64("chat_id", chatID))
		return nil
	}
	_, err := s.Send(ctx, chatID, msg)
	return err
}

func (s *Service) Edit(ctx context.Context, ref transport.MessageRef, msg ui.Message) bool {
	if s.adapter == nil || ref.IsZero() {
		return false
	}
	cfg, lim := s.snapshot()
	if err := lim.Wait(ctx); err != nil {
		return false
	}
	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	if err := s.adapter.EditText(callCtx, ref, msg.Text, msg.Options()); err != nil {
		s.log.Debug("edit failed",
			logx.Int64("chat_id", ref.ChatID), logx.Int("message_id", ref.MessageID), logx.Err(err))
		s.bus.Publish(eventbus.Event{Type: eventbus.EditFailed})
		return false
	}
	return true
}

// SendAlert delivers an operator alert as plain text.
func (s *Service) SendAlert(ctx context.Context, chatID int64, text string) error {
	_, err := s.Send(ctx, chatID, ui.Message{Text: ui.Esc(text)})
	return err
}

func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase << (attempt - 1)
	if d <= 0 || d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	// up to 20% jitter
	if j := int64(d) / 5; j > 0 {
		d += time.Duration(rand.Int64N(j + 1))
	}
	return d
}

func dedupKey(chatID int64, text string) uint64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d|", chatID)
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

func (s *Service) dedupAllow(key uint64, cfg Config) bool {
	now := s.now()
	s.dmu.Lock()
	defer s.dmu.Unlock()

	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	if len(s.dedup) >= cfg.DedupMaxEntries {
		var (
			oldest  uint64
			oldestT time.Time
			set     bool
		)
		for k, t := range s.dedup {
			if !set || t.Before(oldestT) {
				oldest, oldestT, set = k, t, true
			}
		}
		delete(s.dedup, oldest)
	}
	s.dedup[key] = now.Add(cfg.DedupWindow)
	return true
}
