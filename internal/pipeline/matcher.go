package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher matches external asset paths against a pattern list. Patterns
// without regex metacharacters are exact path matches; everything else is
// compiled as an anchored regular expression. A nil matcher matches
// nothing; call sites decide what an absent matcher means.
type Matcher struct {
	exact    map[string]bool
	patterns []*regexp.Regexp
}

// NewMatcher builds a matcher from patterns; it returns nil for an empty
// list.
func NewMatcher(patterns []string) (*Matcher, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	m := &Matcher{exact: make(map[string]bool)}
	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, `\.+*?()|[]{}^$`) {
			m.exact[pattern] = true
			continue
		}
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
		}
		m.patterns = append(m.patterns, re)
	}

	return m, nil
}

// Match reports whether path matches any pattern.
func (m *Matcher) Match(path string) bool {
	if m == nil {
		return false
	}
	if m.exact[path] {
		return true
	}
	for _, re := range m.patterns {
		if re.MatchString(path) {
			return true
		}
	}

	return false
}
