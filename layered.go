// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package taskctx

import "sync/atomic"

// LayeredStore is one layer in a chain of mappings. Reads probe the layer
// itself and then walk outward through its ancestors until the key is found
// or the chain is exhausted. Writes always land in this layer and never modify
// an ancestor.
//
// The outermost ancestor of a chain may be any [Store]. A reference-counted
// parent, whether a [FlatStore] chain root or another layer, is retained until
// this layer is released so that it outlives the unit that owned it.
//
// Like [FlatStore], a layer handed to several units under [PolicyShare] is
// reference counted, and only its last release lets go of its parent.
type LayeredStore struct {
	values map[string]any
	parent Store

	// Set by Clear. An opaque layer hides every ancestor from lookups.
	opaque bool

	// The reference taken on parent, if it is reference counted.
	retained releaser
	refs     atomic.Int32
}

// NewLayeredStore returns an empty chain root with a single holder.
func NewLayeredStore() *LayeredStore {
	l := &LayeredStore{}
	l.refs.Store(1)
	return l
}

// newLayer returns a new, empty layer chained onto parent.
func newLayer(parent Store) *LayeredStore {
	l := NewLayeredStore()
	l.parent = parent
	switch p := parent.(type) {
	case *FlatStore:
		l.retained = p.Retain()
	case *LayeredStore:
		l.retained = p.Retain()
	}
	return l
}

func (l *LayeredStore) Lookup(key string) (any, bool) {
	for cur := l; ; {
		if v, ok := cur.values[key]; ok {
			return v, true
		}
		if cur.opaque || cur.parent == nil {
			return nil, false
		}
		next, ok := cur.parent.(*LayeredStore)
		if !ok {
			return cur.parent.Lookup(key)
		}
		cur = next
	}
}

func (l *LayeredStore) Set(key string, value any) {
	if l.values == nil {
		l.values = make(map[string]any)
	}
	l.values[key] = value
}

// Clear empties this layer and makes it opaque, so that values held by
// ancestor layers are no longer visible through it. Ancestors themselves are
// left untouched and remain visible to any other layer chained onto them.
// Values set after Clear are visible as usual.
func (l *LayeredStore) Clear() {
	clear(l.values)
	l.opaque = true
}

func (l *LayeredStore) Len() int {
	return len(l.Snapshot())
}

func (l *LayeredStore) Snapshot() map[string]any {
	// Collect the visible chain innermost first, then apply outermost first
	// so that inner layers shadow outer ones.
	var chain []map[string]any
	var root Store
	for cur := l; ; {
		chain = append(chain, cur.values)
		if cur.opaque || cur.parent == nil {
			break
		}
		next, ok := cur.parent.(*LayeredStore)
		if !ok {
			root = cur.parent
			break
		}
		cur = next
	}

	var m map[string]any
	if root != nil {
		m = root.Snapshot()
	} else {
		m = make(map[string]any)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i] {
			m[k] = v
		}
	}
	return m
}

// Depth returns the number of layers visible from this one, including itself
// and a non-layered root if there is one. An opaque layer ends the count.
func (l *LayeredStore) Depth() int {
	n := 0
	for cur := l; ; {
		n++
		if cur.opaque || cur.parent == nil {
			return n
		}
		next, ok := cur.parent.(*LayeredStore)
		if !ok {
			return n + 1
		}
		cur = next
	}
}

// Retain registers an additional holder and returns the layer itself.
func (l *LayeredStore) Retain() *LayeredStore {
	l.refs.Add(1)
	return l
}

// Release drops one holder. When the last holder is gone, the layer drops the
// reference it holds on its parent, if any. It returns true if that was the
// last holder. Releasing a layer with no holders panics.
func (l *LayeredStore) Release() bool {
	n := l.refs.Add(-1)
	if n < 0 {
		panic("layered store released more times than retained")
	}
	if n > 0 {
		return false
	}
	if r := l.retained; r != nil {
		l.retained = nil
		r.Release()
	}
	return true
}

// Refs returns the number of current holders.
func (l *LayeredStore) Refs() int {
	return int(l.refs.Load())
}
