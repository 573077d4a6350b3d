// Package ratelimit tracks per-account, per-provider publish budgets over
// rolling hourly and daily windows. Counters live in process memory: the
// dispatcher is the single writer and a key's check-and-increment is
// serialized under one mutex, so concurrent dispatches cannot double-admit
// against the same budget.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

type Decision struct {
	Admitted   bool
	Reason     string
	RetryAfter time.Duration
}

type window struct {
	start time.Time
	count int
}

type counter struct {
	mu   sync.Mutex
	hour window
	day  window
}

type Limiter struct {
	mu       sync.Mutex
	counters map[string]*counter

	hourCap int
	dayCap  int

	now func() time.Time
}

func New(hourCap, dayCap int) *Limiter {
	return &Limiter{
		counters: make(map[string]*counter),
		hourCap:  hourCap,
		dayCap:   dayCap,
		now:      time.Now,
	}
}

func (l *Limiter) key(accountID int64, providerName string) string {
	return fmt.Sprintf("%d:%s", accountID, providerName)
}

func (l *Limiter) counter(accountID int64, providerName string) *counter {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := l.key(accountID, providerName)
	c, ok := l.counters[k]
	if !ok {
		c = &counter{}
		l.counters[k] = c
	}
	return c
}

// TryAdmit admits a publish attempt when both windows are under their caps
// and increments both as one operation. Windows reset lazily once they
// elapse.
func (l *Limiter) TryAdmit(accountID int64, providerName string) Decision {
	c := l.counter(accountID, providerName)
	now := l.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	rollover(&c.hour, now, time.Hour)
	rollover(&c.day, now, 24*time.Hour)

	if l.hourCap > 0 && c.hour.count >= l.hourCap {
		return Decision{
			Reason:     fmt.Sprintf("hourly limit of %d reached", l.hourCap),
			RetryAfter: remaining(c.hour, now, time.Hour),
		}
	}
	if l.dayCap > 0 && c.day.count >= l.dayCap {
		return Decision{
			Reason:     fmt.Sprintf("daily limit of %d reached", l.dayCap),
			RetryAfter: remaining(c.day, now, 24*time.Hour),
		}
	}

	c.hour.count++
	c.day.count++
	return Decision{Admitted: true}
}

// Release hands back a slot charged by TryAdmit when the admitted publish
// never happened. If a window rolled over since the admission the slot is
// already gone and there is nothing to hand back.
func (l *Limiter) Release(accountID int64, providerName string) {
	c := l.counter(accountID, providerName)
	now := l.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	rollover(&c.hour, now, time.Hour)
	rollover(&c.day, now, 24*time.Hour)

	if c.hour.count > 0 {
		c.hour.count--
	}
	if c.day.count > 0 {
		c.day.count--
	}
}

func rollover(w *window, now time.Time, length time.Duration) {
	if w.start.IsZero() || now.Sub(w.start) >= length {
		w.start = now
		w.count = 0
	}
}

func remaining(w window, now time.Time, length time.Duration) time.Duration {
	left := w.start.Add(length).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
