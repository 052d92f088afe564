package clock

import (
	"sync"
	"time"
)

// Manual 是测试用的 Clock，只有调用 Advance 时间才会前进
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
	waiters []manualWaiter
}

type manualWaiter struct {
	at time.Time
	ch chan time.Time
}

// NewManual 创建一个停在 start 的手动时钟
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{
		clock:  m,
		period: d,
		next:   m.now.Add(d),
		ch:     make(chan time.Time, 1),
	}
	m.tickers = append(m.tickers, t)
	return t
}

func (m *Manual) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- m.now
		return ch
	}
	m.waiters = append(m.waiters, manualWaiter{at: m.now.Add(d), ch: ch})
	return ch
}

// Advance 推进时间并触发所有到期的 ticker 和 After
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = m.now.Add(d)

	for _, t := range m.tickers {
		for !t.next.After(m.now) {
			select {
			case t.ch <- t.next:
			default:
			}
			t.next = t.next.Add(t.period)
		}
	}

	pending := m.waiters[:0]
	for _, w := range m.waiters {
		if w.at.After(m.now) {
			pending = append(pending, w)
			continue
		}
		w.ch <- m.now
	}
	m.waiters = pending
}

// LiveTickers 返回尚未 Stop 的 ticker 数量
func (m *Manual) LiveTickers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

// Waiters 返回还在等待的 After 调用数量
func (m *Manual) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

func (m *Manual) remove(t *manualTicker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, other := range m.tickers {
		if other == t {
			m.tickers = append(m.tickers[:i], m.tickers[i+1:]...)
			return
		}
	}
}

type manualTicker struct {
	clock  *Manual
	period time.Duration
	next   time.Time
	ch     chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.clock.remove(t) }
