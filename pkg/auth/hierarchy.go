package auth

import "strings"

// Hierarchy records which roles a broader role includes. Inclusion is
// transitive: if admin includes dev and dev includes viewer, admin
// satisfies viewer.
type Hierarchy struct {
	includes map[string][]string
}

// NewHierarchy builds a hierarchy from role -> included roles. Role names
// are compared case-insensitively.
func NewHierarchy(includes map[string][]string) *Hierarchy {
	h := &Hierarchy{includes: make(map[string][]string, len(includes))}
	for role, children := range includes {
		r := normRole(role)
		for _, c := range children {
			if c = normRole(c); c != "" {
				h.includes[r] = append(h.includes[r], c)
			}
		}
	}
	return h
}

// Includes reports whether caller equals required or includes it.
func (h *Hierarchy) Includes(caller, required string) bool {
	caller, required = normRole(caller), normRole(required)
	if caller == "" || required == "" {
		return false
	}
	if caller == required {
		return true
	}
	seen := map[string]bool{caller: true}
	queue := []string{caller}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range h.includes[cur] {
			if child == required {
				return true
			}
			if !seen[child] {
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}
	return false
}

// Ancestors returns the roles that include role, excluding role itself.
func (h *Hierarchy) Ancestors(role string) []string {
	var out []string
	for r := range h.includes {
		if r != normRole(role) && h.Includes(r, role) {
			out = append(out, r)
		}
	}
	return out
}

func normRole(r string) string {
	return strings.ToLower(strings.TrimSpace(r))
}
