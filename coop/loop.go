// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package coop

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gammazero/deque"
	"go.uber.org/zap"
)

// Loop is a cooperative scheduler with a single logical worker. A Loop must be
// created with [New].
type Loop struct {
	logger       *zap.Logger
	debug        bool
	interceptors []Interceptor

	// Parent of the contexts of tasks spawned outside of [Loop.Run]'s root.
	// Canceled by Close.
	ctx  context.Context
	stop context.CancelFunc

	ready  deque.Deque[*Task]
	timers timerQueue
	live   map[*Task]struct{}
	nextID uint64

	// Tasks send on baton when they suspend or finish, handing control back
	// to the goroutine driving the loop.
	baton chan struct{}

	current atomic.Pointer[Task]
	running atomic.Bool
	closed  atomic.Bool
}

// New creates an idle loop with no tasks.
func New(opts ...Option) *Loop {
	l := &Loop{
		live:  make(map[*Task]struct{}),
		baton: make(chan struct{}),
	}
	l.ctx, l.stop = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

// Current returns the task that holds the baton, or nil if no task is
// executing.
func (l *Loop) Current() *Task {
	return l.current.Load()
}

// Closed reports whether [Loop.Close] has been called.
func (l *Loop) Closed() bool {
	return l.closed.Load()
}

// AddInterceptor appends an interceptor, see [WithInterceptor]. It affects
// only tasks spawned after it returns.
func (l *Loop) AddInterceptor(ic Interceptor) {
	if ic == nil {
		panic("interceptor must be non-nil")
	}
	l.interceptors = append(l.interceptors, ic)
}

// Len returns the number of tasks that have been spawned but not completed.
func (l *Loop) Len() int {
	return len(l.live)
}

// Spawn creates a task running fn and queues it behind every task that is
// already ready to run. It may be called from within a task, or from outside
// the loop while it is not running, in which case the task has no parent.
//
// Returns the first error returned by an interceptor, or [ErrClosed] if the
// loop has been closed and no interceptor objected first. A rejected task
// never runs, but its [Task.OnDone] callbacks are called before Spawn returns
// so that whatever earlier interceptors attached to it can be released.
func (l *Loop) Spawn(fn Func, opts ...SpawnOption) (*Task, error) {
	return l.spawn(fn, opts)
}

func (l *Loop) spawn(fn Func, opts []SpawnOption) (*Task, error) {
	if fn == nil {
		panic("task function must be non-nil")
	}
	var o spawnOptions
	for _, opt := range opts {
		opt(&o)
	}

	l.nextID++
	t := newTask(l, l.nextID, o.name, fn)
	if l.debug {
		// Skip spawn itself and the exported method that called it.
		t.site, t.hasSite = callerFrame(2 + o.callerSkip)
	}
	if o.prepare != nil {
		o.prepare(t)
	}
	for _, ic := range l.interceptors {
		if err := ic(t); err != nil {
			l.logger.Debug("task rejected by interceptor",
				zap.Stringer("task", t),
				zap.Error(err))
			l.discard(t, err)
			return nil, err
		}
	}
	if l.closed.Load() {
		l.discard(t, ErrClosed)
		return nil, ErrClosed
	}

	parent := o.ctx
	if parent == nil {
		parent = l.ctx
	}
	t.ctx, t.cancel = context.WithCancel(parent)
	l.live[t] = struct{}{}
	l.ready.PushBack(t)

	if ce := l.logger.Check(zap.DebugLevel, "spawned task"); ce != nil {
		fields := []zap.Field{zap.Stringer("task", t)}
		if cur := l.current.Load(); cur != nil {
			fields = append(fields, zap.Stringer("parent", cur))
		}
		if t.hasSite {
			fields = append(fields, zap.String("site", t.site.Function))
		}
		ce.Write(fields...)
	}
	return t, nil
}

// Run spawns a root task running fn with a context derived from ctx and
// drives the loop until that task completes, returning its result. Other
// tasks may still be pending when Run returns; see [Loop.Drain].
//
// Returns [ErrRunning] if the loop is already being driven, which includes
// calls from within a task, [ErrDeadlock] if the root task can never complete,
// or ctx's error if ctx is done while the loop is waiting for a timer.
func (l *Loop) Run(ctx context.Context, fn Func, opts ...SpawnOption) (any, error) {
	if !l.running.CompareAndSwap(false, true) {
		return nil, ErrRunning
	}
	defer l.running.Store(false)

	opts = append(opts, func(o *spawnOptions) {
		o.ctx = ctx
	})
	root, err := l.spawn(fn, opts)
	if err != nil {
		return nil, err
	}
	if err := l.runUntil(ctx, func() bool { return root.done }); err != nil {
		return nil, err
	}
	return root.result, root.err
}

// Drain drives the loop until every spawned task has completed.
func (l *Loop) Drain(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)
	return l.runUntil(ctx, func() bool { return len(l.live) == 0 })
}

// Close cancels every pending task, drives them to completion, and marks the
// loop closed so that no further tasks can be spawned. Closing a closed loop
// has no effect. Returns [ErrRunning] if the loop is being driven.
func (l *Loop) Close() error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	l.stop()
	for t := range l.live {
		t.Cancel()
	}
	err := l.runUntil(context.Background(), func() bool { return len(l.live) == 0 })
	if err != nil {
		l.logger.Warn("tasks still pending after close",
			zap.Int("count", len(l.live)),
			zap.Error(err))
	}
	return err
}

func (l *Loop) runUntil(ctx context.Context, cond func() bool) error {
	for !cond() {
		t, err := l.next(ctx)
		if err != nil {
			return err
		}
		l.step(t)
	}
	return nil
}

// step hands the baton to t and waits for it to come back.
func (l *Loop) step(t *Task) {
	l.current.Store(t)
	if !t.started {
		t.started = true
		go t.run()
	} else {
		t.resume <- struct{}{}
	}
	<-l.baton
	l.current.Store(nil)
	if t.finished {
		l.finish(t)
	}
}

func (l *Loop) finish(t *Task) {
	t.done = true
	delete(l.live, t)
	t.cancel()
	close(t.doneCh)

	for _, w := range t.waiters {
		// Waiters that were canceled meanwhile have already been requeued.
		if w.blockedOn == t {
			w.blockedOn = nil
			l.ready.PushBack(w)
		}
	}
	t.waiters = nil

	if errors.Is(t.err, ErrTaskPanic) {
		l.logger.Error("task panicked", zap.Stringer("task", t), zap.Error(t.err))
	} else if ce := l.logger.Check(zap.DebugLevel, "task done"); ce != nil {
		ce.Write(zap.Stringer("task", t), zap.Error(t.err))
	}

	callbacks := t.onDone
	t.onDone = nil
	for _, f := range callbacks {
		f()
	}
}

// discard completes a task that was never queued.
func (l *Loop) discard(t *Task, err error) {
	t.done = true
	t.err = err
	close(t.doneCh)

	callbacks := t.onDone
	t.onDone = nil
	if len(callbacks) == 0 {
		return
	}
	cur := l.current.Swap(nil)
	defer l.current.Store(cur)
	for _, f := range callbacks {
		f()
	}
}

func (l *Loop) mustCurrent() (*Task, error) {
	cur := l.current.Load()
	if cur == nil {
		return nil, ErrNotInTask
	}
	return cur, nil
}

// Yield suspends the current task and requeues it behind every task that is
// ready to run.
func (l *Loop) Yield() error {
	cur, err := l.mustCurrent()
	if err != nil {
		return err
	}
	l.ready.PushBack(cur)
	cur.suspend()
	return nil
}

// Await suspends the current task until t has completed and returns t's
// result. If the current task is canceled first, Await returns the current
// task's context error instead.
func (l *Loop) Await(t *Task) (any, error) {
	cur, err := l.mustCurrent()
	if err != nil {
		return nil, err
	}
	if t == cur {
		panic("task cannot await itself")
	}
	for !t.done {
		if err := cur.ctx.Err(); err != nil {
			return nil, err
		}
		cur.blockedOn = t
		t.waiters = append(t.waiters, cur)
		cur.suspend()
	}
	return t.result, t.err
}

// Gather awaits every task in order and returns their results. The error is
// the first non-nil error among them, or the current task's context error if
// it was canceled while waiting.
func (l *Loop) Gather(tasks ...*Task) ([]any, error) {
	cur, err := l.mustCurrent()
	if err != nil {
		return nil, err
	}
	results := make([]any, len(tasks))
	var firstErr error
	for i, t := range tasks {
		v, err := l.Await(t)
		if err != nil {
			if cerr := cur.ctx.Err(); cerr != nil {
				return results, cerr
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		results[i] = v
	}
	return results, firstErr
}

// Await is a typed wrapper around [Loop.Await]. A result of another type is
// reported as an error.
func Await[T any](l *Loop, t *Task) (T, error) {
	var zero T
	v, err := l.Await(t)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	tv, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("task %v returned %T, not %T", t, v, zero)
	}
	return tv, nil
}
