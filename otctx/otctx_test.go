// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otctx_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/petenewcomb/taskctx-go"
	"github.com/petenewcomb/taskctx-go/coop"
	"github.com/petenewcomb/taskctx-go/coopctx"
	"github.com/petenewcomb/taskctx-go/otctx"
)

func newTracer(t *testing.T) (trace.Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return tp.Tracer("otctx_test"), recorder
}

func spanNamed(t *testing.T, spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	require.FailNow(t, "span not found", name)
	return nil
}

func TestChildTaskSpansNestUnderParent(t *testing.T) {
	for _, p := range []taskctx.Policy{taskctx.PolicyCopy, taskctx.PolicyLayer} {
		t.Run(p.String(), func(t *testing.T) {
			chk := require.New(t)
			tracer, recorder := newTracer(t)
			loop := coop.New()
			defer loop.Close()
			acc := coopctx.Install(loop, taskctx.WithPolicy(p))

			_, err := loop.Run(context.Background(), func(ctx context.Context) (any, error) {
				_, end, err := otctx.Start(acc, tracer, "request")
				if err != nil {
					return nil, err
				}
				defer end()

				var kids []*coop.Task
				for _, name := range []string{"fetch", "render"} {
					kid, err := loop.Spawn(func(ctx context.Context) (any, error) {
						_, end, err := otctx.Start(acc, tracer, name)
						if err != nil {
							return nil, err
						}
						defer end()
						return nil, loop.Yield()
					})
					if err != nil {
						return nil, err
					}
					kids = append(kids, kid)
				}
				return loop.Gather(kids...)
			})
			chk.NoError(err)

			spans := recorder.Ended()
			chk.Len(spans, 3)
			request := spanNamed(t, spans, "request")
			chk.False(request.Parent().IsValid())
			for _, name := range []string{"fetch", "render"} {
				s := spanNamed(t, spans, name)
				chk.Equal(request.SpanContext().SpanID(), s.Parent().SpanID(), name)
				chk.Equal(request.SpanContext().TraceID(), s.SpanContext().TraceID(), name)
			}
		})
	}
}

func TestEndRestoresPreviousSpan(t *testing.T) {
	chk := require.New(t)
	tracer, _ := newTracer(t)
	loop := coop.New()
	defer loop.Close()
	acc := coopctx.Install(loop)

	_, err := loop.Run(context.Background(), func(ctx context.Context) (any, error) {
		_, ok, err := otctx.SpanContext(acc)
		chk.NoError(err)
		chk.False(ok)

		outer, endOuter, err := otctx.Start(acc, tracer, "outer")
		chk.NoError(err)
		inner, endInner, err := otctx.Start(acc, tracer, "inner")
		chk.NoError(err)

		sc, ok, err := otctx.SpanContext(acc)
		chk.NoError(err)
		chk.True(ok)
		chk.Equal(inner.SpanContext(), sc)

		endInner()
		sc, ok, err = otctx.SpanContext(acc)
		chk.NoError(err)
		chk.True(ok)
		chk.Equal(outer.SpanContext(), sc)

		spanCtx, err := otctx.ContextWithSpan(ctx, acc)
		chk.NoError(err)
		chk.Equal(outer.SpanContext(), trace.SpanContextFromContext(spanCtx))

		endOuter()
		_, ok, err = otctx.SpanContext(acc)
		chk.NoError(err)
		chk.False(ok)
		return nil, nil
	})
	chk.NoError(err)
}

func TestStartOutsideTask(t *testing.T) {
	chk := require.New(t)
	tracer, recorder := newTracer(t)
	loop := coop.New()
	defer loop.Close()
	acc := coopctx.Install(loop)

	_, _, err := otctx.Start(acc, tracer, "orphan")
	chk.ErrorIs(err, taskctx.ErrNoActiveUnit)
	chk.Empty(recorder.Started())

	ctx, err := otctx.ContextWithSpan(context.Background(), acc)
	chk.ErrorIs(err, taskctx.ErrNoActiveUnit)
	chk.Equal(context.Background(), ctx)
}
