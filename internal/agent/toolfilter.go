package agent

import "github.com/rezkam/codedive/internal/domain"

// ToolFilter narrows which tools the model is offered and may invoke. It is
// coarser than the safety gate: the gate screens individual commands, the
// filter removes whole capabilities (for example running with the shell tool
// disabled entirely). A nil filter permits everything.
type ToolFilter struct {
	allow map[string]struct{} // when non-empty, the only permitted tools
	deny  map[string]struct{} // always removed, even if allowed above
}

// NewToolFilter builds a filter from an allow list and a deny list. Deny
// wins over allow.
func NewToolFilter(allowed, denied []string) *ToolFilter {
	return &ToolFilter{
		allow: toSet(allowed),
		deny:  toSet(denied),
	}
}

func toSet(names []string) map[string]struct{} {
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// IsAllowed reports whether the named tool may be executed.
func (tf *ToolFilter) IsAllowed(name string) bool {
	if tf == nil {
		return true
	}
	if _, denied := tf.deny[name]; denied {
		return false
	}
	if len(tf.allow) == 0 {
		return true
	}
	_, ok := tf.allow[name]
	return ok
}

// FilterDefinitions removes filtered tools from the definitions sent to the
// model, so it never sees a capability it cannot use.
func (tf *ToolFilter) FilterDefinitions(defs []domain.ToolDefinition) []domain.ToolDefinition {
	if tf.IsEmpty() {
		return defs
	}
	kept := make([]domain.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		if tf.IsAllowed(d.Name) {
			kept = append(kept, d)
		}
	}
	return kept
}

// IsEmpty reports whether the filter has no rules at all.
func (tf *ToolFilter) IsEmpty() bool {
	return tf == nil || (len(tf.allow) == 0 && len(tf.deny) == 0)
}
