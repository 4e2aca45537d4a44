package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// LocalLimiter is an in-process sliding log. Its limits hold per process
// only.
type LocalLimiter struct {
	mu       sync.Mutex
	logs     map[string][]slot // key → admissions, oldest first
	policies Policies
	now      func() time.Time
	seq      uint64

	stopGC    chan struct{}
	closeOnce sync.Once
}

type slot struct {
	at time.Time
	id uint64
}

// NewLocalLimiter creates a LocalLimiter and starts its cleanup goroutine.
func NewLocalLimiter(policies Policies) *LocalLimiter {
	l := &LocalLimiter{
		logs:     make(map[string][]slot),
		policies: policies,
		now:      time.Now,
		stopGC:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// SetClock replaces the time source. Tests only.
func (l *LocalLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Close stops the cleanup goroutine.
func (l *LocalLimiter) Close() {
	l.closeOnce.Do(func() { close(l.stopGC) })
}

func (l *LocalLimiter) Admit(_ context.Context, actor, action string) (Decision, error) {
	pol, err := l.policies.lookup(action)
	if err != nil {
		return Decision{}, err
	}
	k := key(actor, action)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	log := trim(l.logs[k], now.Add(-pol.Window))
	if len(log) >= pol.Limit {
		l.logs[k] = log
		return Decision{RetryAfter: log[0].at.Add(pol.Window).Sub(now)}, nil
	}
	l.seq++
	l.logs[k] = append(log, slot{at: now, id: l.seq})
	return Decision{Allowed: true, Ticket: strconv.FormatUint(l.seq, 10)}, nil
}

func (l *LocalLimiter) Release(_ context.Context, actor, action, ticket string) error {
	id, err := strconv.ParseUint(ticket, 10, 64)
	if err != nil {
		return nil
	}
	k := key(actor, action)

	l.mu.Lock()
	defer l.mu.Unlock()
	log := l.logs[k]
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].id == id {
			l.logs[k] = append(log[:i:i], log[i+1:]...)
			break
		}
	}
	return nil
}

// trim drops entries at or before cutoff.
func trim(log []slot, cutoff time.Time) []slot {
	i := 0
	for i < len(log) && !log[i].at.After(cutoff) {
		i++
	}
	return log[i:]
}

func (l *LocalLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopGC:
			return
		}
	}
}

// cleanup removes logs whose newest entry is older than the longest window.
func (l *LocalLimiter) cleanup() {
	var longest time.Duration
	for _, p := range l.policies {
		if p.Window > longest {
			longest = p.Window
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-longest)
	for k, log := range l.logs {
		if len(log) == 0 || !log[len(log)-1].at.After(cutoff) {
			delete(l.logs, k)
		}
	}
}
