// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package taskctx

import (
	"maps"
	"sync/atomic"
)

// A Store maps string keys to arbitrary values on behalf of one or more units
// of work. Stores are not safe for use by multiple goroutines at once; the
// single-worker scheduling model guarantees that only one unit, and therefore
// one caller, touches a store at any instant.
type Store interface {
	// Lookup returns the value stored under key and true, or nil and false if
	// the key is absent. A stored nil is reported as (nil, true).
	Lookup(key string) (any, bool)

	// Set stores value under key, replacing any previous value visible to
	// this store.
	Set(key string, value any)

	// Clear removes every value visible through this store. See
	// [LayeredStore.Clear] for how this interacts with ancestor layers.
	Clear()

	// Len returns the number of keys visible through this store.
	Len() int

	// Snapshot returns a new map holding every key and value visible through
	// this store. Mutating the returned map does not affect the store.
	Snapshot() map[string]any
}

// releaser is implemented by stores that hold references which must be
// dropped once the owning unit of work completes.
type releaser interface {
	Release() bool
}

// FlatStore is a single owned mapping. When shared between units under
// [PolicyShare] it is reference counted: each holder is expected to call
// [FlatStore.Release] exactly once, and the last release drops the contents.
//
// The zero value is an empty store with no holders, ready to use.
type FlatStore struct {
	values map[string]any
	refs   atomic.Int32
}

// NewFlatStore returns an empty store with a single holder.
func NewFlatStore() *FlatStore {
	s := &FlatStore{}
	s.refs.Store(1)
	return s
}

func newFlatStoreFrom(values map[string]any) *FlatStore {
	s := NewFlatStore()
	s.values = values
	return s
}

func (s *FlatStore) Lookup(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *FlatStore) Set(key string, value any) {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[key] = value
}

func (s *FlatStore) Clear() {
	clear(s.values)
}

func (s *FlatStore) Len() int {
	return len(s.values)
}

func (s *FlatStore) Snapshot() map[string]any {
	m := make(map[string]any, len(s.values))
	maps.Copy(m, s.values)
	return m
}

// Retain registers an additional holder and returns the store itself, which
// allows it to be used inline when handing the store to a new unit.
func (s *FlatStore) Retain() *FlatStore {
	s.refs.Add(1)
	return s
}

// Release drops one holder. It returns true if that was the last holder, in
// which case the contents have been dropped. Releasing a store with no
// holders panics.
func (s *FlatStore) Release() bool {
	n := s.refs.Add(-1)
	if n < 0 {
		panic("flat store released more times than retained")
	}
	if n > 0 {
		return false
	}
	s.values = nil
	return true
}

// Refs returns the number of current holders.
func (s *FlatStore) Refs() int {
	return int(s.refs.Load())
}
