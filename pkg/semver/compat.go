// Package semver checks envelope versions against the range a dispatcher accepts.
package semver

import (
	"fmt"
	"regexp"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:compat"

// DefaultVersion is assumed when an envelope omits its version.
const DefaultVersion = "1.0"

// DefaultRange is the envelope range accepted when none is configured.
const DefaultRange = "^1.0"

var majorOnlyRegex = regexp.MustCompile(`^\d+$`)

// IsMajorOnly checks if a range is a major-only specifier (e.g., "1").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// Compatibility holds a parsed version range.
type Compatibility struct {
	raw        string
	constraint *masterminds.Constraints
}

// NewCompatibility parses rangeStr. A major-only range ("1") is read as "1.x";
// an empty range uses DefaultRange.
func NewCompatibility(rangeStr string) (*Compatibility, error) {
	raw := strings.TrimSpace(rangeStr)
	if raw == "" {
		raw = DefaultRange
	}
	expr := raw
	if IsMajorOnly(expr) {
		expr = expr + ".x"
	}
	c, err := masterminds.NewConstraint(expr)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version range %q: %w", logPrefix, raw, err)
	}
	return &Compatibility{raw: raw, constraint: c}, nil
}

// MustCompatibility is NewCompatibility for ranges known to be valid.
func MustCompatibility(rangeStr string) *Compatibility {
	c, err := NewCompatibility(rangeStr)
	if err != nil {
		panic(err)
	}
	return c
}

// Range returns the configured range text.
func (c *Compatibility) Range() string {
	return c.raw
}

// Check returns an error when version does not satisfy the range. An empty
// version is treated as DefaultVersion.
func (c *Compatibility) Check(version string) error {
	v := strings.TrimSpace(version)
	if v == "" {
		v = DefaultVersion
	}
	sv, err := masterminds.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%s - invalid version %q: %w", logPrefix, version, err)
	}
	if !c.constraint.Check(sv) {
		return fmt.Errorf("%s - version %s does not satisfy %s", logPrefix, v, c.raw)
	}
	return nil
}

// SatisfiesRange checks if a version string satisfies a range.
func SatisfiesRange(version, rangeStr string) bool {
	c, err := NewCompatibility(rangeStr)
	if err != nil {
		return false
	}
	return c.Check(version) == nil
}
