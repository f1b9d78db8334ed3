// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package taskctx_test

import (
	"github.com/petenewcomb/taskctx-go"
)

// fakeUnit is a unit of work whose lifecycle is driven by hand.
type fakeUnit struct {
	attrs  map[any]any
	onDone []func()
	done   bool
}

func (u *fakeUnit) Attr(key any) any {
	return u.attrs[key]
}

func (u *fakeUnit) SetAttr(key, value any) {
	if u.attrs == nil {
		u.attrs = make(map[any]any)
	}
	u.attrs[key] = value
}

func (u *fakeUnit) OnDone(f func()) {
	if u.done {
		f()
		return
	}
	u.onDone = append(u.onDone, f)
}

func (u *fakeUnit) finish() {
	u.done = true
	for _, f := range u.onDone {
		f()
	}
	u.onDone = nil
}

// plainUnit has no completion notification.
type plainUnit struct {
	attrs map[any]any
}

func (u *plainUnit) Attr(key any) any {
	return u.attrs[key]
}

func (u *plainUnit) SetAttr(key, value any) {
	if u.attrs == nil {
		u.attrs = make(map[any]any)
	}
	u.attrs[key] = value
}

// fakeScheduler lets tests choose which unit is current.
type fakeScheduler struct {
	current taskctx.Unit
	closed  bool
}

func (s *fakeScheduler) Current() (taskctx.Unit, bool) {
	if s.current == nil {
		return nil, false
	}
	return s.current, true
}

func (s *fakeScheduler) Closed() bool {
	return s.closed
}

// spawn creates a unit from within whatever unit is current and runs the
// hook on it.
func (s *fakeScheduler) spawn(hook *taskctx.Hook) (*fakeUnit, error) {
	u := &fakeUnit{}
	if err := hook.Intercept(u); err != nil {
		return nil, err
	}
	return u, nil
}

// enter makes u current and returns a function restoring the previous one.
func (s *fakeScheduler) enter(u taskctx.Unit) func() {
	prev := s.current
	s.current = u
	return func() {
		s.current = prev
	}
}
