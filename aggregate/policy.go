package aggregate

import (
	"errors"
	"fmt"
)

// ErrUnknownPolicy indicates an unrecognized conflict resolution policy.
var ErrUnknownPolicy = errors.New("unknown conflict resolution policy")

// Policy selects how a bare-name collision is resolved.
type Policy string

const (
	// PolicyPriority keeps the entry from the highest-priority backend
	// (the numerically lowest priority value). The default.
	PolicyPriority Policy = "priority"

	// PolicyFirstWins keeps the first-applied entry. Backends are always
	// applied in ascending priority order, so the effect matches
	// PolicyPriority; the conflict record still names the policy that ran.
	PolicyFirstWins Policy = "first-wins"

	// PolicyExplicitOnly drops the bare name entirely once a second owner
	// appears: callers must use the namespaced form. The drop is silent;
	// both capabilities stay reachable and registration is never rejected.
	PolicyExplicitOnly Policy = "explicit-only"
)

// resolveFunc decides the bare-name table outcome for a collision between
// the already-registered record and an incoming one. Returning nil removes
// the bare entry.
type resolveFunc func(existing, incoming *Record) *Record

// resolvers is the policy dispatch table. Adding a policy means adding an
// entry here, not editing the rebuild loop.
var resolvers = map[Policy]resolveFunc{
	// Backends are applied in ascending priority order, so the existing
	// record always came from a higher-or-equal priority backend.
	PolicyPriority:  func(existing, _ *Record) *Record { return existing },
	PolicyFirstWins: func(existing, _ *Record) *Record { return existing },

	PolicyExplicitOnly: func(_, _ *Record) *Record { return nil },
}

// Validate checks that p names a known policy.
func (p Policy) Validate() error {
	if _, ok := resolvers[p]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, p)
	}
	return nil
}

// resolve applies the policy to a collision.
func (p Policy) resolve(existing, incoming *Record) *Record {
	return resolvers[p](existing, incoming)
}
