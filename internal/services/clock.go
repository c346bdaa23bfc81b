package services

import (
	"sync"
	"time"
)

// MonotonicClock hands out strictly increasing UTC timestamps at microsecond
// resolution, the precision both stores keep. Two events observed in order
// never share or invert a createdAt.
type MonotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func NewMonotonicClock(now func() time.Time) *MonotonicClock {
	if now == nil {
		now = time.Now
	}
	return &MonotonicClock{now: now}
}

func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
