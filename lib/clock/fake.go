// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial. Time moves only when
// Advance is called; timers and tickers fire during Advance in
// deadline order.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.waitersChanged = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. Safe for concurrent
// use: typically the code under test waits on After or a Ticker in one
// goroutine while the test calls BlockUntil and Advance in another.
type FakeClock struct {
	mu             sync.Mutex
	current        time.Time
	waiters        []*fakeWaiter
	waitersChanged *sync.Cond
}

// fakeWaiter is a pending After channel or Ticker. period is zero for
// one-shot waiters.
type fakeWaiter struct {
	deadline time.Time
	period   time.Duration
	ch       chan time.Time
	stopped  bool
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.current
		return ch
	}
	f.waiters = append(f.waiters, &fakeWaiter{deadline: f.current.Add(d), ch: ch})
	f.waitersChanged.Broadcast()
	return ch
}

func (f *FakeClock) Sleep(d time.Duration) { <-f.After(d) }

func (f *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	waiter := &fakeWaiter{deadline: f.current.Add(d), period: d, ch: make(chan time.Time, 1)}
	f.waiters = append(f.waiters, waiter)
	f.waitersChanged.Broadcast()

	return &Ticker{
		C: waiter.ch,
		stopFunc: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			waiter.stopped = true
		},
	}
}

// Advance moves the clock forward by d, firing every waiter whose
// deadline is reached, in deadline order. Ticker sends are dropped if
// the previous tick has not been consumed, matching time.Ticker.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.current.Add(d)
	for {
		next := f.earliestDue(target)
		if next == nil {
			break
		}
		f.current = next.deadline
		select {
		case next.ch <- f.current:
		default:
		}
		if next.period > 0 {
			next.deadline = next.deadline.Add(next.period)
		} else {
			f.remove(next)
		}
	}
	f.current = target
}

// BlockUntil waits until at least n waiters (pending After calls and
// live tickers) are registered. Tests use this to know the code under
// test has reached its wait point before calling Advance.
func (f *FakeClock) BlockUntil(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.liveWaiters() < n {
		f.waitersChanged.Wait()
	}
}

// earliestDue returns the unstopped waiter with the earliest deadline
// at or before limit, or nil. Callers hold f.mu.
func (f *FakeClock) earliestDue(limit time.Time) *fakeWaiter {
	var earliest *fakeWaiter
	for _, waiter := range f.waiters {
		if waiter.stopped || waiter.deadline.After(limit) {
			continue
		}
		if earliest == nil || waiter.deadline.Before(earliest.deadline) {
			earliest = waiter
		}
	}
	return earliest
}

func (f *FakeClock) remove(target *fakeWaiter) {
	for index, waiter := range f.waiters {
		if waiter == target {
			f.waiters = append(f.waiters[:index], f.waiters[index+1:]...)
			return
		}
	}
}

func (f *FakeClock) liveWaiters() int {
	count := 0
	for _, waiter := range f.waiters {
		if !waiter.stopped {
			count++
		}
	}
	return count
}
