// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package coop

import (
	"cmp"
	"context"
	"time"

	"github.com/addrummond/heap"
	"github.com/petenewcomb/taskctx-go/internal/timerp"
)

type timerEntry struct {
	when time.Time
	seq  uint64
	task *Task
}

func (e *timerEntry) Cmp(other *timerEntry) int {
	if c := e.when.Compare(other.when); c != 0 {
		return c
	}
	return cmp.Compare(e.seq, other.seq)
}

// stale reports whether the sleep this entry was created for has already
// ended some other way.
func (e *timerEntry) stale() bool {
	return !e.task.sleeping || e.task.timerSeq != e.seq
}

// timerQueue orders sleeping tasks by wake-up time, ties broken by the order
// in which they went to sleep. Entries are never removed early; canceled
// sleeps leave stale entries that are skipped when they reach the front.
type timerQueue struct {
	h   heap.Heap[timerEntry, heap.Min]
	seq uint64
}

func (q *timerQueue) push(t *Task, when time.Time) {
	q.seq++
	t.sleeping = true
	t.timerSeq = q.seq
	heap.PushOrderable(&q.h, timerEntry{when: when, seq: q.seq, task: t})
}

// peek returns the earliest live entry, discarding stale ones on the way.
func (q *timerQueue) peek() (timerEntry, bool) {
	for {
		e, ok := heap.Peek(&q.h)
		if !ok || !e.stale() {
			return e, ok
		}
		_, _ = heap.PopOrderable(&q.h)
	}
}

// Sleep suspends the current task for at least d. Other tasks run meanwhile.
// Returns the current task's context error if it is canceled before d
// elapses, or if it had already been canceled.
func (l *Loop) Sleep(d time.Duration) error {
	cur, err := l.mustCurrent()
	if err != nil {
		return err
	}
	if err := cur.ctx.Err(); err != nil {
		return err
	}
	l.timers.push(cur, time.Now().Add(d))
	cur.suspend()
	return cur.ctx.Err()
}

// fireTimers moves every task whose wake-up time has passed to the ready
// queue.
func (l *Loop) fireTimers(now time.Time) {
	for {
		e, ok := l.timers.peek()
		if !ok || e.when.After(now) {
			return
		}
		_, _ = heap.PopOrderable(&l.timers.h)
		e.task.sleeping = false
		l.ready.PushBack(e.task)
	}
}

// next returns the next task to run, waiting for the earliest timer if no
// task is ready.
func (l *Loop) next(ctx context.Context) (*Task, error) {
	for {
		l.fireTimers(time.Now())
		if l.ready.Len() > 0 {
			return l.ready.PopFront(), nil
		}
		e, ok := l.timers.peek()
		if !ok {
			return nil, ErrDeadlock
		}

		timer := timerp.Get()
		timer.Reset(time.Until(e.when))
		select {
		case <-timer.C:
			timerp.Put(timer)
		case <-ctx.Done():
			timer.Stop()
			timerp.Put(timer)
			return nil, ctx.Err()
		}
	}
}
