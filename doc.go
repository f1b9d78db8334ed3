// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package taskctx provides request-scoped values for units of work running on
// a cooperative, single-threaded scheduler. A value set at the start of a
// logical operation, such as a request id, remains visible to every unit of
// work spawned from it without being threaded through function parameters,
// while sibling operations remain isolated from each other's writes.
//
// Each unit of work carries exactly one [Store]. The store is attached by a
// [Hook] that the scheduler invokes whenever it creates a new unit, before the
// unit runs any user code. The hook asks the scheduler which unit is currently
// executing and passes that unit's store to a [Factory], which decides what
// the new unit receives according to a [Policy]:
//
//   - [PolicyShare] hands the child the very same store, so writes by either
//     side are visible to the other for as long as both are alive.
//   - [PolicyCopy] hands the child a deep snapshot taken at spawn time, so
//     later writes in either direction are invisible to the other.
//   - [PolicyLayer] hands the child a new layer chained onto the parent's
//     store. Reads fall through to ancestors, writes stay in the child.
//
// Application code reads and writes the current unit's store through an
// [Accessor], which resolves "current" by asking the scheduler. Calling the
// accessor outside of any unit of work is a usage error reported as
// [ErrNoActiveUnit].
//
// The scheduler itself is a collaborator described by the [Scheduler] and
// [Unit] interfaces. See the coop package for a minimal cooperative scheduler
// and the coopctx package for the glue that installs the hook on it.
package taskctx
