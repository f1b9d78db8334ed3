// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package taskctx_test

import (
	"context"
	"testing"

	"github.com/petenewcomb/taskctx-go"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAccessorOutsideUnit(t *testing.T) {
	chk := require.New(t)
	acc := taskctx.NewAccessor(&fakeScheduler{})

	_, err := acc.Get("k")
	chk.ErrorIs(err, taskctx.ErrNoActiveUnit)
	_, err = acc.GetOr("k", "d")
	chk.ErrorIs(err, taskctx.ErrNoActiveUnit)
	_, _, err = acc.Lookup("k")
	chk.ErrorIs(err, taskctx.ErrNoActiveUnit)
	chk.ErrorIs(acc.Set("k", 1), taskctx.ErrNoActiveUnit)
	chk.ErrorIs(acc.Clear(), taskctx.ErrNoActiveUnit)
	_, err = acc.Snapshot()
	chk.ErrorIs(err, taskctx.ErrNoActiveUnit)

	chk.PanicsWithValue("scheduler must be non-nil", func() {
		taskctx.NewAccessor(nil)
	})
}

func TestAccessorAbsentDefaultAndNil(t *testing.T) {
	chk := require.New(t)
	sched := &fakeScheduler{}
	hook := taskctx.NewHook(sched)
	acc := taskctx.NewAccessor(sched)
	u, err := sched.spawn(hook)
	chk.NoError(err)
	defer sched.enter(u)()

	v, err := acc.Get("missing")
	chk.NoError(err)
	chk.Equal(taskctx.Absent, v)
	chk.Equal("<absent>", v.(interface{ String() string }).String())

	v, err = acc.GetOr("missing", "fallback")
	chk.NoError(err)
	chk.Equal("fallback", v)

	chk.NoError(acc.Set("nil", nil))
	v, err = acc.GetOr("nil", "fallback")
	chk.NoError(err)
	chk.Nil(v, "a stored nil is returned rather than the default")

	chk.NoError(acc.Set("k", "v"))
	v, err = acc.Get("k")
	chk.NoError(err)
	chk.Equal("v", v)

	snap, err := acc.Snapshot()
	chk.NoError(err)
	chk.Equal(map[string]any{"nil": nil, "k": "v"}, snap)

	chk.NoError(acc.Clear())
	v, err = acc.Get("k")
	chk.NoError(err)
	chk.Equal(taskctx.Absent, v)
}

func TestAccessorDegradesWithoutStore(t *testing.T) {
	chk := require.New(t)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	obsCore, logs := observer.New(zapcore.DebugLevel)

	sched := &fakeScheduler{}
	acc := taskctx.NewAccessor(sched,
		taskctx.WithLogger(zap.New(obsCore)),
		taskctx.WithMeterProvider(mp))
	u := &fakeUnit{}
	defer sched.enter(u)()

	v, err := acc.GetOr("k", 5)
	chk.NoError(err)
	chk.Equal(5, v)
	snap, err := acc.Snapshot()
	chk.NoError(err)
	chk.Empty(snap)
	chk.NoError(acc.Clear())
	chk.Nil(taskctx.StoreOf(u), "reads never attach a store")

	chk.NoError(acc.Set("k", 1))
	s := taskctx.StoreOf(u)
	chk.NotNil(s)
	v, err = acc.Get("k")
	chk.NoError(err)
	chk.Equal(1, v)

	chk.NoError(acc.Set("k", 2))
	chk.Same(s, taskctx.StoreOf(u), "the store is attached only once")

	chk.Equal(1, logs.FilterMessageSnippet("first write").Len())

	var rm metricdata.ResourceMetrics
	chk.NoError(reader.Collect(context.Background(), &rm))
	sum := findSum(t, rm, "taskctx.stores.healed")
	chk.Equal(int64(1), sum.DataPoints[0].Value)

	// The healed store is released with its unit.
	u.finish()
	chk.Equal(0, s.(*taskctx.FlatStore).Refs())
}

func TestAccessorFollowsCurrentUnit(t *testing.T) {
	chk := require.New(t)
	sched := &fakeScheduler{}
	hook := taskctx.NewHook(sched, taskctx.WithPolicy(taskctx.PolicyCopy))
	acc := taskctx.NewAccessor(sched)

	a, err := sched.spawn(hook)
	chk.NoError(err)
	b, err := sched.spawn(hook)
	chk.NoError(err)

	leave := sched.enter(a)
	chk.NoError(acc.Set("req_id", "A"))
	leave()
	leave = sched.enter(b)
	chk.NoError(acc.Set("req_id", "B"))
	leave()

	leave = sched.enter(a)
	v, err := acc.Get("req_id")
	leave()
	chk.NoError(err)
	chk.Equal("A", v)
}

func TestKey(t *testing.T) {
	chk := require.New(t)
	sched := &fakeScheduler{}
	hook := taskctx.NewHook(sched)
	acc := taskctx.NewAccessor(sched)
	attempts := taskctx.NewKey[int]("attempts")
	chk.Equal("attempts", attempts.Name())

	_, _, err := attempts.Get(acc)
	chk.ErrorIs(err, taskctx.ErrNoActiveUnit)

	u, err := sched.spawn(hook)
	chk.NoError(err)
	defer sched.enter(u)()

	n, err := attempts.GetOr(acc, 1)
	chk.NoError(err)
	chk.Equal(1, n)

	chk.NoError(attempts.Set(acc, 3))
	n, ok, err := attempts.Get(acc)
	chk.NoError(err)
	chk.True(ok)
	chk.Equal(3, n)

	chk.NoError(acc.Set("attempts", "three"))
	_, ok, err = attempts.Get(acc)
	chk.NoError(err)
	chk.False(ok, "a value of another type is not reported")
}

func TestKeyStoredNil(t *testing.T) {
	chk := require.New(t)
	sched := &fakeScheduler{}
	hook := taskctx.NewHook(sched)
	acc := taskctx.NewAccessor(sched)
	u, err := sched.spawn(hook)
	chk.NoError(err)
	defer sched.enter(u)()

	chk.NoError(acc.Set("cursor", nil))

	p, ok, err := taskctx.NewKey[*int]("cursor").Get(acc)
	chk.NoError(err)
	chk.True(ok, "a stored nil is present for a nilable type")
	chk.Nil(p)

	e, ok, err := taskctx.NewKey[error]("cursor").Get(acc)
	chk.NoError(err)
	chk.True(ok)
	chk.NoError(e)

	n, ok, err := taskctx.NewKey[int]("cursor").Get(acc)
	chk.NoError(err)
	chk.False(ok, "an int cannot hold nil")
	chk.Zero(n)

	d, err := taskctx.NewKey[*int]("cursor").GetOr(acc, new(int))
	chk.NoError(err)
	chk.Nil(d)
}
