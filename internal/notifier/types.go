// Package notifier delivers bot messages through the chat adapter with a
// shared token-bucket limit. Interactive replies retry with backoff, push
// notifications are additionally de-duplicated, and edits never fail the
// caller.
package notifier

import (
	"context"
	"time"

	"focusbot/internal/transport"
	"focusbot/internal/ui"
)

type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
	// DedupWindow suppresses identical push notifications to the same
	// chat. Zero disables it.
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Sink is the push side used by background loops.
type Sink interface {
	Notify(ctx context.Context, chatID int64, msg ui.Message) error
	// Edit replaces a message in place and reports whether it succeeded.
	Edit(ctx context.Context, ref transport.MessageRef, msg ui.Message) bool
}
