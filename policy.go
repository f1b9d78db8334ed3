// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package taskctx

import (
	"fmt"
	"strings"
)

// Policy selects how a newly spawned unit of work derives its store from the
// store of the unit that spawned it. See [Factory] for the precise semantics
// of each policy.
type Policy int

const (
	PolicyShare Policy = iota // child receives the parent's store itself
	PolicyCopy                // child receives a deep snapshot of the parent's store
	PolicyLayer               // child receives a new layer chained onto the parent's store
)

var policyNames = [...]string{
	PolicyShare: "share",
	PolicyCopy:  "copy",
	PolicyLayer: "layer",
}

func (p Policy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return fmt.Sprintf("Policy(%d)", int(p))
	}
	return policyNames[p]
}

// Valid reports whether p is one of the defined policies.
func (p Policy) Valid() bool {
	return p >= PolicyShare && p <= PolicyLayer
}

// ParsePolicy returns the policy named by s, ignoring case and surrounding
// whitespace.
func ParsePolicy(s string) (Policy, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range policyNames {
		if n == name {
			return Policy(p), nil
		}
	}
	return 0, fmt.Errorf("unknown policy %q, must be one of %s", s, strings.Join(policyNames[:], ", "))
}

// Set and Type make *Policy usable as a command-line flag value.
func (p *Policy) Set(s string) error {
	v, err := ParsePolicy(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p *Policy) Type() string {
	return "policy"
}
