package audited

import (
	"sync"
	"time"
)

// Clock 时间源
type Clock func() time.Time

// monotonicClock 微秒精度且严格递增，同一模型连续写入的 updatedAt 不会相等
type monotonicClock struct {
	mu   sync.Mutex
	now  Clock
	last time.Time
}

func newMonotonicClock(now Clock) *monotonicClock {
	if now == nil {
		now = time.Now
	}
	return &monotonicClock{now: now}
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
