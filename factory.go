// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package taskctx

import (
	"go.uber.org/zap"
)

// A Factory decides which store a newly spawned unit of work receives, given
// the store of the unit that was executing when it was spawned. The parent is
// nil for units spawned outside of any unit of work.
//
// Factories must not block or fail. Their cost is bounded by the size of the
// parent store for [PolicyCopy] and is constant otherwise.
type Factory interface {
	NewStore(parent Store) Store
}

// FactoryFunc adapts an ordinary function to the [Factory] interface.
type FactoryFunc func(parent Store) Store

func (f FactoryFunc) NewStore(parent Store) Store {
	return f(parent)
}

// ShareFactory implements [PolicyShare]. It returns the parent store itself,
// retaining it first if it is reference counted, or a new empty [FlatStore]
// if there is no parent.
var ShareFactory Factory = FactoryFunc(func(parent Store) Store {
	switch p := parent.(type) {
	case nil:
		return NewFlatStore()
	case *FlatStore:
		return p.Retain()
	case *LayeredStore:
		return p.Retain()
	default:
		return parent
	}
})

// CopyFactory implements [PolicyCopy] without logging. See [NewCopyFactory].
var CopyFactory = NewCopyFactory(nil)

// NewCopyFactory returns a factory implementing [PolicyCopy]: a new
// [FlatStore] holding deep copies of every value visible through the parent,
// or an empty one if there is no parent. Values that cannot be deep-copied
// are shared as is and reported to logger at warn level.
func NewCopyFactory(logger *zap.Logger) Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return FactoryFunc(func(parent Store) Store {
		if parent == nil {
			return NewFlatStore()
		}
		values := parent.Snapshot()
		for k, v := range values {
			c, err := deepCopy(v)
			if err != nil {
				logger.Warn("sharing value that could not be copied",
					zap.String("key", k),
					zap.Error(err))
			}
			values[k] = c
		}
		return newFlatStoreFrom(values)
	})
}

// LayerFactory implements [PolicyLayer]. It returns a new [LayeredStore]
// chained onto the parent, or a new empty chain root if there is no parent.
var LayerFactory Factory = FactoryFunc(func(parent Store) Store {
	if parent == nil {
		return NewLayeredStore()
	}
	return newLayer(parent)
})

// FactoryFor returns the package-level factory implementing p. It panics if p
// is not a valid policy.
func FactoryFor(p Policy) Factory {
	return factoryFor(p, nil)
}

func factoryFor(p Policy, logger *zap.Logger) Factory {
	switch p {
	case PolicyShare:
		return ShareFactory
	case PolicyCopy:
		if logger != nil {
			return NewCopyFactory(logger)
		}
		return CopyFactory
	case PolicyLayer:
		return LayerFactory
	default:
		panic("invalid policy")
	}
}
