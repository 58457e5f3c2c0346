package descriptor

import "regexp"

// RegexMatcher adapts a regular expression to the Matcher interface using
// named capture group conventions: "path" (referenced asset path), "entity"
// and "format" (reference query parts), "quote" (the character enclosing
// the matched value, when any), and "sub" (the span the default
// substitution replaces; the whole match when absent).
type RegexMatcher struct {
	re *regexp.Regexp

	path, entity, format, quote, sub int
}

// NewRegexMatcher compiles pattern and resolves its named groups. It panics
// on an invalid pattern: matchers are built from package-level descriptor
// definitions, so a bad pattern is a programming error.
func NewRegexMatcher(pattern string) *RegexMatcher {
	re := regexp.MustCompile(pattern)

	m := &RegexMatcher{re: re, path: -1, entity: -1, format: -1, quote: -1, sub: -1}
	for i, name := range re.SubexpNames() {
		switch name {
		case "path":
			m.path = i
		case "entity":
			m.entity = i
		case "format":
			m.format = i
		case "quote":
			m.quote = i
		case "sub":
			m.sub = i
		}
	}

	return m
}

// FindAll implements Matcher.
func (m *RegexMatcher) FindAll(content string) []Match {
	idx := m.re.FindAllStringSubmatchIndex(content, -1)
	if idx == nil {
		return nil
	}

	matches := make([]Match, 0, len(idx))
	for _, loc := range idx {
		match := Match{Start: loc[0], End: loc[1]}
		if m.sub >= 0 && loc[2*m.sub] >= 0 {
			match.Start = loc[2*m.sub]
			match.End = loc[2*m.sub+1]
		}
		match.Text = content[match.Start:match.End]
		match.Path = group(content, loc, m.path)
		match.Entity = group(content, loc, m.entity)
		match.Format = group(content, loc, m.format)
		if q := group(content, loc, m.quote); q != "" {
			match.Quote = q[0]
		}
		matches = append(matches, match)
	}

	return matches
}

func group(content string, loc []int, i int) string {
	if i < 0 || 2*i >= len(loc) || loc[2*i] < 0 {
		return ""
	}

	return content[loc[2*i]:loc[2*i+1]]
}
