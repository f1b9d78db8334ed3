// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package taskctx

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// An Option configures a [Hook] or an [Accessor].
type Option func(*config)

type config struct {
	policy        Policy
	factory       Factory
	logger        *zap.Logger
	meterProvider metric.MeterProvider
}

func newConfig(opts []Option) *config {
	c := &config{
		policy: PolicyShare,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.meterProvider == nil {
		c.meterProvider = otel.GetMeterProvider()
	}
	if c.factory == nil {
		c.factory = factoryFor(c.policy, c.logger)
	}
	return c
}

// WithPolicy selects the inheritance policy applied by a [Hook]. The default
// is [PolicyShare]. It panics if p is not a valid policy.
func WithPolicy(p Policy) Option {
	if !p.Valid() {
		panic("invalid policy")
	}
	return func(c *config) {
		c.policy = p
	}
}

// WithFactory replaces the factory a [Hook] applies when a unit carries no
// per-spawn policy override. It takes precedence over [WithPolicy].
func WithFactory(f Factory) Option {
	if f == nil {
		panic("factory must be non-nil")
	}
	return func(c *config) {
		c.factory = f
	}
}

// WithLogger sets the logger used for debug-level lifecycle messages. The
// default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMeterProvider sets the source of the store counters. The default is
// the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}
