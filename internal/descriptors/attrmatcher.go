package descriptors

import (
	"sort"
	"strings"

	"github.com/conneroisu/assetpipe/internal/descriptor"
)

// AttributeMatcher finds quoted attribute values carrying an asset query
// (<path>?asset-<entity>[=<format>]) in markup. The matched span is the
// value inside the quotes, so the default substitution rewrites exactly
// the URL. Quote pairing uses the scanner from the descriptor package
// rather than a backreference pattern.
type AttributeMatcher struct {
	Attributes []string
}

// FindAll implements descriptor.Matcher.
func (am *AttributeMatcher) FindAll(content string) []descriptor.Match {
	var matches []descriptor.Match

	for _, attr := range am.Attributes {
		needle := attr + "="
		for idx := 0; idx < len(content); {
			rel := strings.Index(content[idx:], needle)
			if rel < 0 {
				break
			}
			pos := idx + rel
			idx = pos + len(needle)

			// Attribute names stand alone: "href=" must not match "xlink:href=".
			if pos > 0 && isNameChar(content[pos-1]) {
				continue
			}

			quotePos := pos + len(needle)
			value, end, ok := descriptor.ScanQuoted(content, quotePos)
			if !ok {
				continue
			}
			idx = end

			path, entity, format, ok := descriptor.ParseReferenceQuery(value)
			if !ok {
				continue
			}

			matches = append(matches, descriptor.Match{
				Start:  quotePos + 1,
				End:    end - 1,
				Text:   value,
				Path:   path,
				Entity: entity,
				Format: format,
				Quote:  content[quotePos],
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })

	return matches
}

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '-' || c == '_' || c == ':'
}
