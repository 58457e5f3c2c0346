package descriptor

import "strings"

// assetQueryMarker introduces the reference query string protocol:
// <path>?asset-<entity>[=<format>].
const assetQueryMarker = "?asset-"

// ParseReferenceQuery splits a URL value into its referenced path, entity,
// and optional format. ok is false when the value carries no asset query.
// Entity and format validity is checked later, during substitution, so a
// malformed query still surfaces as a recorded error rather than being
// silently skipped.
func ParseReferenceQuery(value string) (path, entity, format string, ok bool) {
	i := strings.Index(value, assetQueryMarker)
	if i < 0 {
		return "", "", "", false
	}

	path = value[:i]
	rest := value[i+len(assetQueryMarker):]
	if path == "" || rest == "" {
		return "", "", "", false
	}

	if j := strings.IndexByte(rest, '='); j >= 0 {
		entity = rest[:j]
		format = rest[j+1:]
	} else {
		entity = rest
	}

	return path, entity, format, true
}
