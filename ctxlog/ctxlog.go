// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package ctxlog stamps zap log entries with values taken from the context
// store of the unit of work that logs them. This lets code deep inside a
// request log the request's id without being handed it:
//
//	logger = ctxlog.Wrap(logger, acc, "request_id")
//	...
//	logger.Info("fetched profile") // {"msg":"fetched profile","request_id":"..."}
//
// Keys that are absent from the store, and entries logged outside of any unit
// of work, are written without the corresponding fields.
package ctxlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/petenewcomb/taskctx-go"
)

type core struct {
	zapcore.Core
	acc  *taskctx.Accessor
	keys []string
}

// NewCore wraps inner so that every entry it writes carries a field for each
// of keys that has a value in the current unit's store.
func NewCore(inner zapcore.Core, acc *taskctx.Accessor, keys ...string) zapcore.Core {
	if acc == nil {
		panic("accessor must be non-nil")
	}
	return &core{Core: inner, acc: acc, keys: keys}
}

// Wrap returns a logger whose core is wrapped with [NewCore].
func Wrap(logger *zap.Logger, acc *taskctx.Accessor, keys ...string) *zap.Logger {
	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return NewCore(c, acc, keys...)
	}))
}

func (c *core) With(fields []zapcore.Field) zapcore.Core {
	return &core{Core: c.Core.With(fields), acc: c.acc, keys: c.keys}
}

func (c *core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write runs on the goroutine that logged the entry, which under the
// single-worker model is the current unit's.
func (c *core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	// Never append into the caller's backing array.
	fields = fields[:len(fields):len(fields)]
	for _, k := range c.keys {
		v, ok, err := c.acc.Lookup(k)
		if err != nil {
			// Not inside a unit of work; nothing to add.
			break
		}
		if ok {
			fields = append(fields, zap.Any(k, v))
		}
	}
	return c.Core.Write(ent, fields)
}
