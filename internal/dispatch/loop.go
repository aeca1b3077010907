package dispatch

import "sync"

// Loop executes posted functions one at a time, in post order, on a single
// goroutine. Transport notifications, now-playing publications and bounce
// observer callbacks are all delivered through one Loop, which is what
// serializes the state transitions a host can observe.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func NewLoop() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Post enqueues fn for execution. The queue is unbounded so a delivered
// callback may post further work without deadlocking, and no event is ever
// dropped. Posts after Close are discarded.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	l.mu.Unlock()
}

// Sync blocks until everything posted before it has executed. It returns
// immediately on a closed loop. Must not be called from a delivered
// callback.
func (l *Loop) Sync() {
	ch := make(chan struct{})
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, func() { close(ch) })
	l.cond.Signal()
	l.mu.Unlock()
	<-ch
}

// Close drains the remaining queue, stops the loop and waits for it to
// exit. Safe to call more than once. Must not be called from a delivered
// callback.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.cond.Signal()
	l.mu.Unlock()
	<-l.done
}

func (l *Loop) run() {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			close(l.done)
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
	}
}
