package aggregate

import (
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Separator joins a backend namespace and an original capability name.
const Separator = "."

// CapabilityKind distinguishes invokable actions from readable resources.
type CapabilityKind int

const (
	// KindAction is an invokable operation (a tool).
	KindAction CapabilityKind = iota

	// KindResource is a readable data object.
	KindResource
)

// String returns the lowercase kind name.
func (k CapabilityKind) String() string {
	if k == KindResource {
		return "resource"
	}
	return "action"
}

// Record is one (backend, capability) pair in the merged namespace.
type Record struct {
	// Kind is the capability kind.
	Kind CapabilityKind

	// OriginalName is the name (or URI, for resources) the backend
	// advertises.
	OriginalName string

	// NamespacedName is the always-unique "backend.original" form.
	NamespacedName string

	// Backend is the owning backend's name.
	Backend string

	// Priority is copied from the owning backend's configuration.
	Priority int

	// Action is the descriptor for KindAction records.
	Action *mcp.Tool

	// Resource is the descriptor for KindResource records.
	Resource *mcp.Resource
}

// Contender is one backend competing for a bare name.
type Contender struct {
	Backend  string
	Priority int
}

// Conflict describes a bare name advertised by more than one backend.
// Conflicts are derived during a rebuild, never persisted, and are never
// fatal: resolution is automatic and the conflict is only reported.
type Conflict struct {
	// Kind is the capability kind of the contested name.
	Kind CapabilityKind

	// BareName is the contested original name.
	BareName string

	// Contenders lists the competing backends in application order
	// (ascending priority).
	Contenders []Contender

	// Policy is the resolution policy that was applied.
	Policy Policy

	// Winner is the backend owning the bare name after resolution.
	// Empty under PolicyExplicitOnly, where the bare name is dropped.
	Winner string
}

// FormatID builds the namespaced form "backend.original".
func FormatID(backendName, original string) string {
	if backendName == "" {
		return original
	}
	return backendName + Separator + original
}

// SplitID splits a possibly-namespaced name at the first separator.
// ok is false when the name carries no namespace prefix.
func SplitID(id string) (backendName, original string, ok bool) {
	i := strings.Index(id, Separator)
	if i <= 0 || i == len(id)-1 {
		return "", id, false
	}
	return id[:i], id[i+1:], true
}
