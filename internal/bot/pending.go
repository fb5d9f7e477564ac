package bot

import (
	"sync"
	"time"
)

// pendingTTL bounds how long a "minutes?" prompt waits for an answer.
const pendingTTL = 15 * time.Minute

type pendingExtend struct {
	taskID int64
	at     time.Time
}

// pendingSet remembers, per chat, the task awaiting an extension amount.
type pendingSet struct {
	mu sync.Mutex
	m  map[int64]pendingExtend
}

func newPendingSet() *pendingSet { return &pendingSet{m: map[int64]pendingExtend{}} }

func (p *pendingSet) set(chatID, taskID int64, now time.Time) {
	p.mu.Lock()
	p.m[chatID] = pendingExtend{taskID: taskID, at: now}
	p.mu.Unlock()
}

func (p *pendingSet) get(chatID int64, now time.Time) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pe, ok := p.m[chatID]
	if !ok {
		return 0, false
	}
	if now.Sub(pe.at) > pendingTTL {
		delete(p.m, chatID)
		return 0, false
	}
	return pe.taskID, true
}

func (p *pendingSet) clear(chatID int64) {
	p.mu.Lock()
	delete(p.m, chatID)
	p.mu.Unlock()
}
