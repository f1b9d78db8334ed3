// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package timerp pools the timers a coop loop uses while it waits for the
// earliest sleeping task to become due.
package timerp

import (
	"sync"
	"time"
)

// This implementation relies on [Go 1.23+ behavior]: a timer taken from the
// pool may have fired without being drained, and Reset discards that stale
// value.
//
// [Go 1.23+ behavior]: https://pkg.go.dev/time#NewTimer

var pool = sync.Pool{
	New: func() any {
		return time.NewTimer(time.Hour)
	},
}

// Get returns a timer in an unspecified state. Callers must Reset it.
func Get() *time.Timer {
	return pool.Get().(*time.Timer)
}

// Put returns t to the pool. t must not be used afterwards.
func Put(t *time.Timer) {
	pool.Put(t)
}
