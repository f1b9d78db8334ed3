// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package otctx carries OpenTelemetry span contexts in taskctx stores. A span
// started with [Start] becomes the parent of spans started later in the same
// unit of work and, through store inheritance, in the units it spawns.
//
// Under [taskctx.PolicyShare] a child's span started while its parent's span
// is open replaces the shared current span for the parent as well, so Layer
// or Copy is usually the better fit for tracing.
package otctx

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/petenewcomb/taskctx-go"
)

// SpanKey is the store key under which the current span context is kept.
const SpanKey = "otel.span"

// spanRef implements taskctx.Cloner so that PolicyCopy shares the immutable
// span context rather than attempting to copy its unexported fields.
type spanRef struct {
	sc trace.SpanContext
}

func (r spanRef) Clone() any {
	return r
}

// SpanContext returns the span context recorded in the current unit's store.
func SpanContext(acc *taskctx.Accessor) (trace.SpanContext, bool, error) {
	v, ok, err := acc.Lookup(SpanKey)
	if err != nil || !ok {
		return trace.SpanContext{}, false, err
	}
	ref, ok := v.(spanRef)
	if !ok || !ref.sc.IsValid() {
		return trace.SpanContext{}, false, nil
	}
	return ref.sc, true, nil
}

// ContextWithSpan returns a child of ctx carrying the span context recorded
// in the current unit's store, suitable for handing to instrumented libraries
// that read the span from a context.Context.
func ContextWithSpan(ctx context.Context, acc *taskctx.Accessor) (context.Context, error) {
	sc, ok, err := SpanContext(acc)
	if err != nil || !ok {
		return ctx, err
	}
	return trace.ContextWithSpanContext(ctx, sc), nil
}

// Start starts a span named name whose parent is the span recorded in the
// current unit's store, if any, and records the new span in its place. The
// returned end function ends the span and restores the previous one. It must
// be called from the same unit of work.
func Start(acc *taskctx.Accessor, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (trace.Span, func(), error) {
	prev, hadPrev, err := acc.Lookup(SpanKey)
	if err != nil {
		return nil, nil, err
	}
	ctx, err := ContextWithSpan(context.Background(), acc)
	if err != nil {
		return nil, nil, err
	}
	_, span := tracer.Start(ctx, name, opts...)
	if err := acc.Set(SpanKey, spanRef{sc: span.SpanContext()}); err != nil {
		span.End()
		return nil, nil, err
	}
	end := func() {
		span.End()
		if hadPrev {
			_ = acc.Set(SpanKey, prev)
		} else {
			_ = acc.Set(SpanKey, spanRef{})
		}
	}
	return span, end, nil
}
