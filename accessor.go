// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package taskctx

import (
	"context"

	"go.uber.org/zap"
)

type absentType struct{}

func (absentType) String() string {
	return "<absent>"
}

// Absent is returned by [Accessor.Get] for keys that have no value. It is
// distinct from a stored nil.
var Absent any = absentType{}

// Accessor reads and writes the store of whichever unit of work is executing
// at the time of the call. Every method returns [ErrNoActiveUnit] when called
// outside of a unit of work.
//
// A unit that was created without passing through a [Hook] has no store.
// Reads from such a unit behave as if the store were empty, and the first
// write attaches a new empty [FlatStore] to it.
type Accessor struct {
	sched  Scheduler
	logger *zap.Logger
	inst   *instruments
}

// NewAccessor returns an accessor resolving the current unit through sched.
// Only the logger and meter provider options have any effect.
func NewAccessor(sched Scheduler, opts ...Option) *Accessor {
	if sched == nil {
		panic("scheduler must be non-nil")
	}
	c := newConfig(opts)
	return &Accessor{
		sched:  sched,
		logger: c.logger,
		inst:   newInstruments(c.meterProvider, c.logger),
	}
}

func (a *Accessor) current() (Unit, error) {
	u, ok := a.sched.Current()
	if !ok || u == nil {
		return nil, ErrNoActiveUnit
	}
	return u, nil
}

// Lookup returns the value stored under key in the current unit's store and
// whether it was present.
func (a *Accessor) Lookup(key string) (any, bool, error) {
	u, err := a.current()
	if err != nil {
		return nil, false, err
	}
	s := StoreOf(u)
	if s == nil {
		return nil, false, nil
	}
	v, ok := s.Lookup(key)
	return v, ok, nil
}

// Get returns the value stored under key, or [Absent] if there is none.
func (a *Accessor) Get(key string) (any, error) {
	return a.GetOr(key, Absent)
}

// GetOr returns the value stored under key, or def if there is none.
func (a *Accessor) GetOr(key string, def any) (any, error) {
	v, ok, err := a.Lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// Set stores value under key in the current unit's store.
func (a *Accessor) Set(key string, value any) error {
	u, err := a.current()
	if err != nil {
		return err
	}
	s := StoreOf(u)
	if s == nil {
		s = NewFlatStore()
		attach(u, s)
		a.inst.healed.Add(context.Background(), 1)
		a.logger.Debug("attached context store on first write to uninstrumented unit",
			zap.String("key", key))
	}
	s.Set(key, value)
	return nil
}

// Clear removes every value visible to the current unit. Under [PolicyLayer]
// this hides, but does not modify, the values held by ancestor layers; see
// [LayeredStore.Clear].
func (a *Accessor) Clear() error {
	u, err := a.current()
	if err != nil {
		return err
	}
	if s := StoreOf(u); s != nil {
		s.Clear()
	}
	return nil
}

// Snapshot returns a copy of every key and value visible to the current unit.
// The map is empty, not nil, for a unit without a store.
func (a *Accessor) Snapshot() (map[string]any, error) {
	u, err := a.current()
	if err != nil {
		return nil, err
	}
	s := StoreOf(u)
	if s == nil {
		return map[string]any{}, nil
	}
	return s.Snapshot(), nil
}
