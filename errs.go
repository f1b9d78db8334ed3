// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package taskctx

type constError string

func (e constError) Error() string {
	return string(e)
}

// ErrNoActiveUnit is returned by every [Accessor] method called while no unit
// of work is executing.
const ErrNoActiveUnit = constError("no active unit of work")

// ErrSchedulerClosed is returned by [Hook.Intercept] when the scheduler has
// been shut down. No store is attached to the rejected unit.
const ErrSchedulerClosed = constError("scheduler closed")
