package descriptor

// ScanQuoted reads a quoted value starting at content[i], which must be a
// single or double quote. It scans until an unescaped instance of the same
// quote character, treating a backslash as an escape for the following
// character. It returns the unquoted value and the index just past the
// closing quote. ok is false when content[i] is not a quote or the quote is
// never closed.
//
// This replaces backreference patterns like (['"]).*?\1, which the regexp
// package cannot express.
func ScanQuoted(content string, i int) (value string, end int, ok bool) {
	if i < 0 || i >= len(content) {
		return "", 0, false
	}

	quote := content[i]
	if quote != '\'' && quote != '"' {
		return "", 0, false
	}

	for j := i + 1; j < len(content); j++ {
		switch content[j] {
		case '\\':
			j++ // escaped character, skip
		case quote:
			return content[i+1 : j], j + 1, true
		}
	}

	return "", 0, false
}
