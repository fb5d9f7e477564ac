package timer

import (
	"encoding/json"
	"fmt"
	"time"

	"focusbot/internal/transport"
)

// Record is the live state of one running timer. Its presence in the Store
// is what makes a task active.
type Record struct {
	TaskID             int64
	UserID             int64
	StartedAt          time.Time
	AccumulatedSeconds int64
	// Target is the progress card the reconciler keeps edited.
	Target       *transport.MessageRef
	LastUpdateAt *time.Time
}

// Elapsed is whole seconds since StartedAt, floored. It is negative when
// StartedAt lies in the future.
func (r Record) Elapsed(now time.Time) int64 {
	d := now.Sub(r.StartedAt)
	secs := int64(d / time.Second)
	if d < 0 && d%time.Second != 0 {
		secs--
	}
	return secs
}

// Total is the accumulated time including the running segment, with a
// negative segment counted as zero.
func (r Record) Total(now time.Time) int64 {
	return r.AccumulatedSeconds + max(0, r.Elapsed(now))
}

func (r Record) clone() Record {
	if r.Target != nil {
		t := *r.Target
		r.Target = &t
	}
	if r.LastUpdateAt != nil {
		t := *r.LastUpdateAt
		r.LastUpdateAt = &t
	}
	return r
}

// wireRecord is the stored layout: timestamps are RFC 3339 strings.
type wireRecord struct {
	TaskID             int64  `json:"task_id"`
	UserID             int64  `json:"user_id"`
	StartedAt          string `json:"started_at"`
	AccumulatedSeconds int64  `json:"accumulated_seconds"`
	ChatID             *int64 `json:"chat_id,omitempty"`
	MessageID          *int   `json:"message_id,omitempty"`
	LastUpdateAt       string `json:"last_update_at,omitempty"`
}

func encodeRecord(r Record) ([]byte, error) {
	w := wireRecord{
		TaskID:             r.TaskID,
		UserID:             r.UserID,
		StartedAt:          r.StartedAt.UTC().Format(time.RFC3339Nano),
		AccumulatedSeconds: r.AccumulatedSeconds,
	}
	if r.Target != nil {
		chat, msg := r.Target.ChatID, r.Target.MessageID
		w.ChatID, w.MessageID = &chat, &msg
	}
	if r.LastUpdateAt != nil {
		w.LastUpdateAt = r.LastUpdateAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(w)
}

func decodeRecord(b []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return Record{}, fmt.Errorf("timer: decode record: %w", err)
	}
	started, err := time.Parse(time.RFC3339Nano, w.StartedAt)
	if err != nil {
		return Record{}, fmt.Errorf("timer: decode started_at: %w", err)
	}
	r := Record{
		TaskID:             w.TaskID,
		UserID:             w.UserID,
		StartedAt:          started,
		AccumulatedSeconds: w.AccumulatedSeconds,
	}
	if w.ChatID != nil && w.MessageID != nil {
		r.Target = &transport.MessageRef{ChatID: *w.ChatID, MessageID: *w.MessageID}
	}
	if w.LastUpdateAt != "" {
		t, err := time.Parse(time.RFC3339Nano, w.LastUpdateAt)
		if err != nil {
			return Record{}, fmt.Errorf("timer: decode last_update_at: %w", err)
		}
		r.LastUpdateAt = &t
	}
	return r, nil
}
