// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package coop

import (
	"context"
	"fmt"
	"runtime"
)

// Func is the body of a task. The context is canceled when the task is
// canceled or the loop is closed; since scheduling is cooperative, the body
// must observe it at its own suspension points.
type Func = func(ctx context.Context) (any, error)

// Task is a unit of work scheduled on a [Loop].
type Task struct {
	loop   *Loop
	id     uint64
	name   string
	fn     Func
	ctx    context.Context
	cancel context.CancelFunc
	attrs  map[any]any

	// The loop sends on resume to hand the baton back to a suspended task.
	resume chan struct{}
	doneCh chan struct{}

	started  bool
	finished bool // body has returned; set on the task's goroutine
	done     bool // completion has been processed; set on the loop's goroutine
	result   any
	err      error

	blockedOn *Task   // task this one is awaiting
	waiters   []*Task // tasks that may be awaiting this one
	sleeping  bool
	timerSeq  uint64 // identifies the live timer entry while sleeping
	onDone    []func()

	site    runtime.Frame
	hasSite bool
}

func newTask(l *Loop, id uint64, name string, fn Func) *Task {
	if name == "" {
		name = fmt.Sprintf("task-%d", id)
	}
	return &Task{
		loop:   l,
		id:     id,
		name:   name,
		fn:     fn,
		resume: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (t *Task) ID() uint64 {
	return t.id
}

func (t *Task) Name() string {
	return t.name
}

func (t *Task) String() string {
	return fmt.Sprintf("%s#%d", t.name, t.id)
}

// Context returns the context passed to the task's body.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Done returns a channel that is closed once the task has completed.
func (t *Task) Done() <-chan struct{} {
	return t.doneCh
}

// Result returns the value and error returned by the task's body, or
// [ErrNotDone] if the task has not completed.
func (t *Task) Result() (any, error) {
	if !t.done {
		return nil, ErrNotDone
	}
	return t.result, t.err
}

// Attr returns the attribute stored under key, or nil.
func (t *Task) Attr(key any) any {
	return t.attrs[key]
}

// SetAttr stores an attribute on the task. Attributes are an opaque side
// channel for collaborators such as interceptors; the loop never reads them.
func (t *Task) SetAttr(key, value any) {
	if t.attrs == nil {
		t.attrs = make(map[any]any)
	}
	t.attrs[key] = value
}

// OnDone arranges for f to be called on the loop's goroutine, with no current
// task, once t has completed. If t has already completed, f is called
// immediately.
func (t *Task) OnDone(f func()) {
	if t.done {
		f()
		return
	}
	t.onDone = append(t.onDone, f)
}

// SpawnSite returns the frame that spawned the task. It is only recorded when
// the loop was created with [WithDebug].
func (t *Task) SpawnSite() (runtime.Frame, bool) {
	return t.site, t.hasSite
}

// Cancel cancels the task's context and, if the task is suspended in
// [Loop.Await] or [Loop.Sleep], wakes it so that it can observe the
// cancellation. It returns false if the task had already completed.
func (t *Task) Cancel() bool {
	if t.done {
		return false
	}
	t.cancel()
	l := t.loop
	switch {
	case t.blockedOn != nil:
		t.blockedOn = nil
		l.ready.PushBack(t)
	case t.sleeping:
		// The timer entry goes stale and is discarded when it surfaces.
		t.sleeping = false
		l.ready.PushBack(t)
	}
	return true
}

// run is the top-level function of the task's goroutine.
func (t *Task) run() {
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
		t.finished = true
		t.loop.baton <- struct{}{}
	}()

	// Don't run the body if the task was canceled before it got the baton.
	if err := t.ctx.Err(); err != nil {
		t.err = err
		return
	}
	t.result, t.err = t.fn(t.ctx)
}

// suspend hands the baton back to the loop and waits to get it back.
func (t *Task) suspend() {
	t.loop.baton <- struct{}{}
	<-t.resume
}

func callerFrame(skip int) (runtime.Frame, bool) {
	// Several PCs so that CallersFrames can expand inlined calls correctly.
	var pcs [8]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	if n == 0 {
		return runtime.Frame{}, false
	}
	frame, _ := runtime.CallersFrames(pcs[:n]).Next()
	return frame, true
}
