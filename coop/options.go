// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package coop

import (
	"context"

	"go.uber.org/zap"
)

// An Interceptor is called for every new task after it has been created and
// before it is queued to run. Returning an error abandons the task; the error
// is returned from the call that tried to spawn it.
type Interceptor func(t *Task) error

// An Option configures a [Loop].
type Option func(*Loop)

// WithLogger sets the logger that receives task lifecycle messages at debug
// level and task panics at error level.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithDebug enables recording of each task's spawn site, see
// [Task.SpawnSite].
func WithDebug(debug bool) Option {
	return func(l *Loop) {
		l.debug = debug
	}
}

// WithInterceptor appends an interceptor. Interceptors run in the order they
// were added, on the goroutine that spawns the task, while the spawning task
// (if any) is still the loop's current task.
func WithInterceptor(ic Interceptor) Option {
	if ic == nil {
		panic("interceptor must be non-nil")
	}
	return func(l *Loop) {
		l.interceptors = append(l.interceptors, ic)
	}
}

// A SpawnOption configures a single call to [Loop.Spawn] or [Loop.Run].
type SpawnOption func(*spawnOptions)

type spawnOptions struct {
	name       string
	callerSkip int
	prepare    func(*Task)
	ctx        context.Context
}

// WithName names the task in log messages and in [Task.String].
func WithName(name string) SpawnOption {
	return func(o *spawnOptions) {
		o.name = name
	}
}

// WithCallerSkip adds n frames to the number skipped when recording the spawn
// site in debug mode. Helpers that wrap [Loop.Spawn] pass the number of their
// own frames so that the recorded site is their caller's.
func WithCallerSkip(n int) SpawnOption {
	return func(o *spawnOptions) {
		o.callerSkip += n
	}
}

// WithPrepare arranges for f to be called on the new task before any
// interceptor sees it. Multiple prepare functions run in the order given.
func WithPrepare(f func(*Task)) SpawnOption {
	return func(o *spawnOptions) {
		if prev := o.prepare; prev != nil {
			o.prepare = func(t *Task) {
				prev(t)
				f(t)
			}
		} else {
			o.prepare = f
		}
	}
}
