package relay

import (
	"fmt"
	"sort"
)

// PermissionGate validates tool names against the configured allow-list.
// It holds no other state; denial never aborts a turn.
type PermissionGate struct {
	allowed map[string]struct{}
}

// NewPermissionGate builds a gate from the configured tool names.
func NewPermissionGate(names []string) PermissionGate {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			allowed[n] = struct{}{}
		}
	}
	return PermissionGate{allowed: allowed}
}

// IsAllowed reports whether the tool name is in the allow-list.
// Matching is exact: no patterns, no case folding.
func (g PermissionGate) IsAllowed(name string) bool {
	_, ok := g.allowed[name]
	return ok
}

// Allowed returns the allow-list as a sorted slice for the backend request.
func (g PermissionGate) Allowed() []string {
	names := make([]string, 0, len(g.allowed))
	for n := range g.allowed {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Refusal renders the structured refusal notice for a denied tool. The
// backend decides how to proceed; squire only reports the denial.
func (g PermissionGate) Refusal(name string) string {
	return fmt.Sprintf("tool %q is not permitted by this bot's configuration", name)
}
