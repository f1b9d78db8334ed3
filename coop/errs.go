// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package coop

import "github.com/petenewcomb/taskctx-go/internal/cerr"

const (
	ErrClosed    = cerr.Error("loop closed")
	ErrRunning   = cerr.Error("loop already running")
	ErrNotInTask = cerr.Error("not called from within a task")
	ErrDeadlock  = cerr.Error("all tasks are blocked")
	ErrTaskPanic = cerr.Error("task panicked")
	ErrNotDone   = cerr.Error("task not done")
)
