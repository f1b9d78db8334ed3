// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package coopctx installs taskctx on a coop loop. Once installed, every task
// spawned on the loop receives a context store derived from the store of the
// task that spawned it, and the returned accessor reads and writes the store
// of whichever task is executing.
package coopctx

import (
	"context"

	"github.com/petenewcomb/taskctx-go"
	"github.com/petenewcomb/taskctx-go/coop"
)

type scheduler struct {
	loop *coop.Loop
}

func (s scheduler) Current() (taskctx.Unit, bool) {
	t := s.loop.Current()
	if t == nil {
		return nil, false
	}
	return t, true
}

func (s scheduler) Closed() bool {
	return s.loop.Closed()
}

// Scheduler adapts loop to the [taskctx.Scheduler] interface.
func Scheduler(loop *coop.Loop) taskctx.Scheduler {
	return scheduler{loop: loop}
}

// Interceptor returns a coop interceptor that runs hook on every new task.
func Interceptor(hook *taskctx.Hook) coop.Interceptor {
	return func(t *coop.Task) error {
		return hook.Intercept(t)
	}
}

// Install registers a [taskctx.Hook] configured by opts as an interceptor of
// loop and returns an accessor for the stores of its tasks. It should be
// called before any task is spawned; tasks spawned earlier have no store.
func Install(loop *coop.Loop, opts ...taskctx.Option) *taskctx.Accessor {
	sched := Scheduler(loop)
	loop.AddInterceptor(Interceptor(taskctx.NewHook(sched, opts...)))
	return taskctx.NewAccessor(sched, opts...)
}

// Spawn is like [coop.Loop.Spawn] but derives the new task's store using p
// instead of the hook's configured policy.
func Spawn(loop *coop.Loop, p taskctx.Policy, fn coop.Func, opts ...coop.SpawnOption) (*coop.Task, error) {
	opts = append(opts,
		coop.WithCallerSkip(1),
		coop.WithPrepare(func(t *coop.Task) {
			taskctx.OverridePolicy(t, p)
		}),
	)
	return loop.Spawn(fn, opts...)
}

// Go spawns fn on loop and returns a function that awaits its typed result
// from within another task.
func Go[T any](loop *coop.Loop, fn func(ctx context.Context) (T, error), opts ...coop.SpawnOption) (func() (T, error), error) {
	t, err := loop.Spawn(func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, append(opts, coop.WithCallerSkip(1))...)
	if err != nil {
		return nil, err
	}
	return func() (T, error) {
		return coop.Await[T](loop, t)
	}, nil
}
