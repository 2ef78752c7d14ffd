package registry

import (
	"fmt"
	"strings"
	"unicode"
)

// Naming maps an external name or action token onto its canonical form.
// Registry keys and incoming tokens both pass through it.
type Naming func(token string) string

// Naming names accepted by ParseNaming.
const (
	NamingNameLower           = "lower"
	NamingNameLowerHyphen     = "lower-hyphen"
	NamingNameLowerUnderscore = "lower-underscore"
)

// NamingLower folds case only: "RolesAny" and "rolesany" match.
func NamingLower(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

// NamingLowerHyphen splits words and joins them with '-': "rolesAny",
// "roles_any" and "Roles-Any" all become "roles-any".
func NamingLowerHyphen(token string) string {
	return strings.Join(splitWords(token), "-")
}

// NamingLowerUnderscore splits words and joins them with '_'.
func NamingLowerUnderscore(token string) string {
	return strings.Join(splitWords(token), "_")
}

// ParseNaming returns the transform for name ("" means lower).
func ParseNaming(name string) (Naming, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NamingNameLower:
		return NamingLower, nil
	case NamingNameLowerHyphen:
		return NamingLowerHyphen, nil
	case NamingNameLowerUnderscore:
		return NamingLowerUnderscore, nil
	}
	return nil, fmt.Errorf("unknown naming %q", name)
}

// splitWords breaks a token on separators and camel-case boundaries and
// lowercases the words. An upper-case run followed by a lower-case letter
// starts a new word at its last letter ("HTTPServer" -> http, server).
func splitWords(token string) []string {
	runes := []rune(strings.TrimSpace(token))
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for i, r := range runes {
		if r == '-' || r == '_' || unicode.IsSpace(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(cur) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}
