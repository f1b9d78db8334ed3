// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package coop provides a minimal cooperative scheduler with a single logical
// worker. Each [Task] body runs on its own goroutine, but a [Loop] hands a
// single baton between them so that exactly one task body executes at any
// instant. Tasks give up the baton only at explicit suspension points:
// [Loop.Yield], [Loop.Sleep], [Loop.Await] and [Loop.Gather].
//
// Because every hand-off is a channel operation, state touched only from
// within tasks needs no further synchronization. In exchange, the methods of a
// Loop and its Tasks must be called either from within a task of that loop or
// from the goroutine that drives the loop while it is not running.
//
// New tasks pass through the loop's interceptors before they are queued, which
// is how the taskctx package attaches a context store to each of them.
package coop
