// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Command reqdemo runs many concurrent request-like operations on a coop loop,
// each tagging itself with a request id and fanning out to child tasks that
// read the id back, and reports whether any child saw another request's id.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/petenewcomb/taskctx-go"
	"github.com/petenewcomb/taskctx-go/coop"
	"github.com/petenewcomb/taskctx-go/coopctx"
	"github.com/petenewcomb/taskctx-go/ctxlog"
	"github.com/petenewcomb/taskctx-go/otctx"
)

var requestID = taskctx.NewKey[string]("request_id")

type options struct {
	policy     taskctx.Policy
	operations int
	children   int
	delay      time.Duration
	debug      bool
	trace      bool
	traceOut   io.Writer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := options{policy: taskctx.PolicyCopy}
	cmd := &cobra.Command{
		Use:   "reqdemo",
		Short: "Check request id isolation across concurrent operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			o.traceOut = cmd.OutOrStdout()
			return run(cmd.Context(), o)
		},
	}
	f := cmd.Flags()
	f.Var(&o.policy, "policy", "inheritance policy: share, copy or layer")
	f.IntVar(&o.operations, "operations", 1000, "number of top-level operations")
	f.IntVar(&o.children, "children", 10, "child tasks per operation")
	f.DurationVar(&o.delay, "delay", 0, "simulated latency inside each child")
	f.BoolVar(&o.debug, "debug", false, "log every task at debug level")
	f.BoolVar(&o.trace, "trace", false, "print a span per operation and child (not with --policy share)")
	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// setupTracing installs a global tracer provider printing spans to w. The
// returned function flushes and uninstalls it.
func setupTracing(w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating span exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	return func(ctx context.Context) error {
		otel.SetTracerProvider(prev)
		return tp.Shutdown(ctx)
	}, nil
}

func run(ctx context.Context, o options) error {
	// Tasks sharing a store would overwrite each other's current span.
	if o.trace && o.policy == taskctx.PolicyShare {
		return fmt.Errorf("--trace needs the copy or layer policy, not %s", o.policy)
	}
	base, err := newLogger(o.debug)
	if err != nil {
		return err
	}
	defer func() { _ = base.Sync() }()

	if o.trace {
		shutdown, err := setupTracing(o.traceOut)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				base.Warn("flushing spans", zap.Error(err))
			}
		}()
	}
	tracer := otel.Tracer("reqdemo")

	loop := coop.New(coop.WithLogger(base.Named("coop")), coop.WithDebug(o.debug))
	acc := coopctx.Install(loop,
		taskctx.WithPolicy(o.policy),
		taskctx.WithLogger(base.Named("taskctx")))
	logger := ctxlog.Wrap(base, acc, requestID.Name())

	mismatches := 0
	for range o.operations {
		_, err := loop.Spawn(func(context.Context) (any, error) {
			id := uuid.NewString()
			if err := requestID.Set(acc, id); err != nil {
				return nil, err
			}
			_, end, err := otctx.Start(acc, tracer, "operation")
			if err != nil {
				return nil, err
			}
			defer end()
			tasks := make([]*coop.Task, 0, o.children)
			for range o.children {
				t, err := loop.Spawn(func(context.Context) (any, error) {
					_, end, err := otctx.Start(acc, tracer, "child")
					if err != nil {
						return nil, err
					}
					defer end()
					if o.delay > 0 {
						if err := loop.Sleep(o.delay); err != nil {
							return nil, err
						}
					} else if err := loop.Yield(); err != nil {
						return nil, err
					}
					got, _, err := requestID.Get(acc)
					logger.Debug("child read request id")
					return got, err
				})
				if err != nil {
					return nil, err
				}
				tasks = append(tasks, t)
			}
			results, err := loop.Gather(tasks...)
			if err != nil {
				return nil, err
			}
			for _, r := range results {
				if r != id {
					mismatches++
					logger.Warn("child saw foreign request id", zap.Any("seen", r))
				}
			}
			return nil, nil
		}, coop.WithName("operation"))
		if err != nil {
			return err
		}
	}

	start := time.Now()
	if err := loop.Drain(ctx); err != nil {
		return err
	}
	if err := loop.Close(); err != nil {
		return err
	}

	logger.Info("done",
		zap.Stringer("policy", o.policy),
		zap.Int("operations", o.operations),
		zap.Int("children", o.children),
		zap.Int("mismatches", mismatches),
		zap.Duration("elapsed", time.Since(start)))
	if mismatches > 0 {
		return fmt.Errorf("%d children saw a foreign request id", mismatches)
	}
	return nil
}
