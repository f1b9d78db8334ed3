// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package taskctx

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/petenewcomb/taskctx-go"

type instruments struct {
	// Stores attached by the hook, by policy.
	created metric.Int64Counter
	// Stores attached lazily by Accessor.Set.
	healed  metric.Int64Counter
}

func newInstruments(mp metric.MeterProvider, logger *zap.Logger) *instruments {
	meter := mp.Meter(instrumentationName)
	in := &instruments{}

	var err error
	in.created, err = meter.Int64Counter("taskctx.stores.created",
		metric.WithDescription("Stores attached to new units of work"))
	if err != nil {
		logger.Warn("creating counter", zap.String("name", "taskctx.stores.created"), zap.Error(err))
		in.created = noop.Int64Counter{}
	}
	in.healed, err = meter.Int64Counter("taskctx.stores.healed",
		metric.WithDescription("Stores attached on first write to units spawned without one"))
	if err != nil {
		logger.Warn("creating counter", zap.String("name", "taskctx.stores.healed"), zap.Error(err))
		in.healed = noop.Int64Counter{}
	}
	return in
}
