package source

import (
	"fmt"
	"strings"
)

// Locator is a parsed "scheme:target" source reference.
type Locator struct {
	Scheme string
	Target string
}

func (l Locator) String() string {
	return l.Scheme + ":" + l.Target
}

// ParseLocator splits a locator into scheme and target. Both "github:org/repo"
// and "s3://bucket/key" forms are accepted.
func ParseLocator(s string) (Locator, error) {
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok || scheme == "" {
		return Locator{}, fmt.Errorf("locator %q has no scheme", s)
	}
	for _, c := range scheme {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '+' || c == '-') {
			return Locator{}, fmt.Errorf("locator %q has invalid scheme %q", s, scheme)
		}
	}
	rest = strings.TrimPrefix(rest, "//")
	if rest == "" {
		return Locator{}, fmt.Errorf("locator %q has an empty target", s)
	}
	return Locator{Scheme: scheme, Target: rest}, nil
}
