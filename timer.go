package main

import (
	"container/heap"
	"math"
)

// TimerKey identifies a scheduled continuation by the entity that owns it
// and what it is for. Scheduling under a key that is already pending
// replaces the earlier continuation.
type TimerKey struct {
	Owner   string
	Purpose string
}

// Timers is a registry of deferred continuations and repeating countdowns.
// It has no goroutines of its own: Advance runs everything that came due on
// the caller's goroutine, which keeps a match single-threaded.
type Timers struct {
	now        float64
	firing     *task
	seq        uint64
	queue      taskQueue
	byKey      map[TimerKey]*task
	countdowns map[TimerKey]*countdown
	cdOrder    []*countdown
}

type task struct {
	key       TimerKey
	due       float64
	seq       uint64
	fn        func()
	cancelled bool
	index     int
}

type countdown struct {
	key       TimerKey
	remaining float64
	onTick    func(seconds int)
	onExpire  func()
	cancelled bool
}

// NewTimers creates an empty registry at time zero.
func NewTimers() *Timers {
	return &Timers{
		byKey:      make(map[TimerKey]*task),
		countdowns: make(map[TimerKey]*countdown),
	}
}

// Now returns the registry's elapsed time in seconds.
func (t *Timers) Now() float64 { return t.now }

// After runs fn once, delay seconds from now. Called from inside a
// continuation, "now" is the due time of that continuation rather than the
// end of the frame being advanced, so chained stages keep exact spacing.
func (t *Timers) After(key TimerKey, delay float64, fn func()) {
	t.cancelTask(key)
	if delay < 0 {
		delay = 0
	}
	base := t.now
	if t.firing != nil {
		base = t.firing.due
	}
	t.seq++
	tk := &task{key: key, due: base + delay, seq: t.seq, fn: fn}
	t.byKey[key] = tk
	heap.Push(&t.queue, tk)
}

// StartCountdown registers a repeating countdown of the given length. Every
// Advance reports floor(remaining), clamped at zero, to onTick; when it
// reaches zero the countdown unregisters itself and onExpire runs once.
func (t *Timers) StartCountdown(key TimerKey, seconds float64, onTick func(int), onExpire func()) {
	t.cancelCountdown(key)
	cd := &countdown{key: key, remaining: seconds, onTick: onTick, onExpire: onExpire}
	t.countdowns[key] = cd
	t.cdOrder = append(t.cdOrder, cd)
}

// Remaining reports how long the countdown under key has left.
func (t *Timers) Remaining(key TimerKey) (float64, bool) {
	cd, ok := t.countdowns[key]
	if !ok {
		return 0, false
	}
	return math.Max(0, cd.remaining), true
}

// Pending reports whether a continuation or countdown is registered under key.
func (t *Timers) Pending(key TimerKey) bool {
	if _, ok := t.byKey[key]; ok {
		return true
	}
	_, ok := t.countdowns[key]
	return ok
}

// Len returns the number of live continuations and countdowns.
func (t *Timers) Len() int {
	return len(t.byKey) + len(t.countdowns)
}

// Cancel drops whatever is registered under key.
func (t *Timers) Cancel(key TimerKey) bool {
	a := t.cancelTask(key)
	b := t.cancelCountdown(key)
	return a || b
}

// CancelOwner drops every continuation and countdown belonging to owner.
func (t *Timers) CancelOwner(owner string) int {
	n := 0
	for key := range t.byKey {
		if key.Owner == owner && t.cancelTask(key) {
			n++
		}
	}
	for key := range t.countdowns {
		if key.Owner == owner && t.cancelCountdown(key) {
			n++
		}
	}
	return n
}

// Clear cancels everything.
func (t *Timers) Clear() {
	for _, tk := range t.byKey {
		tk.cancelled = true
	}
	for _, cd := range t.countdowns {
		cd.cancelled = true
	}
	t.queue = t.queue[:0]
	t.byKey = make(map[TimerKey]*task)
	t.countdowns = make(map[TimerKey]*countdown)
	t.cdOrder = nil
}

// Advance moves time forward by dt seconds, ticking countdowns and running
// due continuations in due order. Work scheduled while advancing with a zero
// delay runs in the same call.
func (t *Timers) Advance(dt float64) {
	if dt < 0 {
		dt = 0
	}
	t.now += dt

	active := make([]*countdown, len(t.cdOrder))
	copy(active, t.cdOrder)
	for _, cd := range active {
		if cd.cancelled {
			continue
		}
		cd.remaining -= dt
		if cd.onTick != nil {
			cd.onTick(int(math.Max(0, math.Floor(cd.remaining))))
		}
		if cd.cancelled || cd.remaining > 0 {
			continue
		}
		cd.cancelled = true
		if t.countdowns[cd.key] == cd {
			delete(t.countdowns, cd.key)
		}
		if cd.onExpire != nil {
			cd.onExpire()
		}
	}
	t.compactCountdowns()

	for t.queue.Len() > 0 && t.queue[0].due <= t.now {
		tk := heap.Pop(&t.queue).(*task)
		if tk.cancelled {
			continue
		}
		if t.byKey[tk.key] == tk {
			delete(t.byKey, tk.key)
		}
		t.firing = tk
		tk.fn()
		t.firing = nil
	}
}

func (t *Timers) cancelTask(key TimerKey) bool {
	tk, ok := t.byKey[key]
	if !ok {
		return false
	}
	tk.cancelled = true
	delete(t.byKey, key)
	if tk.index >= 0 && tk.index < t.queue.Len() && t.queue[tk.index] == tk {
		heap.Remove(&t.queue, tk.index)
	}
	return true
}

func (t *Timers) cancelCountdown(key TimerKey) bool {
	cd, ok := t.countdowns[key]
	if !ok {
		return false
	}
	cd.cancelled = true
	delete(t.countdowns, key)
	return true
}

func (t *Timers) compactCountdowns() {
	live := t.cdOrder[:0]
	for _, cd := range t.cdOrder {
		if !cd.cancelled {
			live = append(live, cd)
		}
	}
	for i := len(live); i < len(t.cdOrder); i++ {
		t.cdOrder[i] = nil
	}
	t.cdOrder = live
}

// taskQueue orders continuations by due time, then by scheduling order.
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].due == q[j].due {
		return q[i].seq < q[j].seq
	}
	return q[i].due < q[j].due
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	tk := x.(*task)
	tk.index = len(*q)
	*q = append(*q, tk)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	tk := old[n-1]
	old[n-1] = nil
	tk.index = -1
	*q = old[:n-1]
	return tk
}
