// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package taskctx

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// A Unit is a scheduler's handle for one unit of work. The package only ever
// reads and writes attributes under its own unexported keys, so other users of
// the attribute channel are unaffected.
type Unit interface {
	Attr(key any) any
	SetAttr(key, value any)
}

// A Finisher is a [Unit] that can report its completion. Stores attached to a
// Finisher release their references when it completes; stores attached to
// other units are simply left to the garbage collector.
type Finisher interface {
	Unit

	// OnDone arranges for f to be called once the unit has completed. If it
	// has already completed, f is called immediately.
	OnDone(f func())
}

// A Scheduler is the collaborator that owns units of work.
type Scheduler interface {
	// Current returns the unit of work executing at the instant of the call,
	// if any.
	Current() (Unit, bool)

	// Closed reports whether the scheduler has been shut down.
	Closed() bool
}

type storeAttrKey struct{}
type policyAttrKey struct{}

// StoreOf returns the store attached to u, or nil if none has been attached.
func StoreOf(u Unit) Store {
	s, _ := u.Attr(storeAttrKey{}).(Store)
	return s
}

func attach(u Unit, s Store) {
	if StoreOf(u) != nil {
		panic("unit already has a context store")
	}
	u.SetAttr(storeAttrKey{}, s)
	if r, ok := s.(releaser); ok {
		if f, ok := u.(Finisher); ok {
			f.OnDone(func() {
				r.Release()
			})
		}
	}
}

// OverridePolicy records on u a policy that takes precedence over the hook's
// configured one when u is intercepted. It must be called before the
// scheduler runs the hook on u, and panics if p is not a valid policy.
func OverridePolicy(u Unit, p Policy) {
	if !p.Valid() {
		panic("invalid policy")
	}
	u.SetAttr(policyAttrKey{}, p)
}

func overrideOf(u Unit) (Policy, bool) {
	p, ok := u.Attr(policyAttrKey{}).(Policy)
	return p, ok
}

// Hook attaches a store to every unit of work created by a scheduler. It must
// be registered with the scheduler so that [Hook.Intercept] runs exactly once
// for each new unit, synchronously, before that unit runs any user code.
type Hook struct {
	sched   Scheduler
	policy  Policy
	factory Factory
	logger  *zap.Logger
	inst    *instruments
}

// NewHook returns a hook that derives stores from the units executing on
// sched. The policy defaults to [PolicyShare]; see [WithPolicy] and
// [WithFactory].
func NewHook(sched Scheduler, opts ...Option) *Hook {
	if sched == nil {
		panic("scheduler must be non-nil")
	}
	c := newConfig(opts)
	return &Hook{
		sched:   sched,
		policy:  c.policy,
		factory: c.factory,
		logger:  c.logger,
		inst:    newInstruments(c.meterProvider, c.logger),
	}
}

// Policy returns the policy applied to units without a per-spawn override.
func (h *Hook) Policy() Policy {
	return h.policy
}

// Intercept attaches a store to u, which must be a unit that the scheduler has
// just created and not yet started. The store is derived from the store of
// the currently executing unit, if there is one, by the per-spawn policy
// recorded with [OverridePolicy] or else by the hook's factory.
//
// Returns [ErrSchedulerClosed] without attaching anything if the scheduler
// has been shut down.
func (h *Hook) Intercept(u Unit) error {
	if h.sched.Closed() {
		return ErrSchedulerClosed
	}

	var parent Store
	if cur, ok := h.sched.Current(); ok {
		parent = StoreOf(cur)
	}

	policy, factory := h.policy, h.factory
	if p, ok := overrideOf(u); ok {
		policy, factory = p, factoryFor(p, h.logger)
	}

	s := factory.NewStore(parent)
	attach(u, s)

	h.inst.created.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("policy", policy.String())))
	if ce := h.logger.Check(zap.DebugLevel, "attached context store"); ce != nil {
		ce.Write(
			zap.Stringer("policy", policy),
			zap.Bool("inherited", parent != nil),
			zap.Int("keys", s.Len()))
	}
	return nil
}
