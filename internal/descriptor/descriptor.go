// Package descriptor defines the per-extension behavior contract consumed
// by the asset engine: a content type, a named parser table, and optional
// compile/finalize/minify hooks. Descriptors are immutable once registered;
// composition happens once, at registration time, via Extend.
package descriptor

// Reserved parser names with built-in semantics.
const (
	// ParserImport pulls another asset's content into this one at merge time.
	ParserImport = "import"
	// ParserReference substitutes another asset's path or content in place
	// without merging.
	ParserReference = "reference"
)

// Reference entities and formats, forming the query-string protocol
// <path>?asset-<entity>[=<format>].
const (
	EntityPath    = "path"
	EntityContent = "content"

	FormatVersioned   = "versioned"
	FormatUnversioned = "unversioned"
	FormatBase64      = "base64"
	FormatUTF8        = "utf8"
	FormatDisplace    = "displace"
)

// DefaultFormat returns the default format for a reference entity, or ""
// for an unrecognized entity.
func DefaultFormat(entity string) string {
	switch entity {
	case EntityPath:
		return FormatVersioned
	case EntityContent:
		return FormatBase64
	default:
		return ""
	}
}

// ValidFormat reports whether format is allowed for entity.
func ValidFormat(entity, format string) bool {
	switch entity {
	case EntityPath:
		return format == FormatVersioned || format == FormatUnversioned
	case EntityContent:
		return format == FormatBase64 || format == FormatUTF8 || format == FormatDisplace
	default:
		return false
	}
}

// Match is one occurrence found by a parser's matcher. Start/End delimit
// the span the default substitution replaces; for import parsers that is
// the whole statement, for reference parsers the URL being rewritten.
type Match struct {
	Start int
	End   int
	// Text is the matched span, content[Start:End].
	Text string
	// Path is the referenced asset path (import and reference kinds).
	Path string
	// Entity and Format are the parsed reference query parts; empty for
	// imports. Format stays empty when the query omitted it.
	Entity string
	Format string
	// Quote is the character enclosing the matched value, 0 when unquoted.
	Quote byte
}

// Matcher finds all occurrences of a parser's pattern in content. Most
// matchers are regex-backed; patterns that would need a backreference
// (close quote matching the open quote) use a hand-written scanner instead.
type Matcher interface {
	FindAll(content string) []Match
}

// Substitution is a parse handler's replacement decision. Start/End are
// absolute offsets narrowing what text is replaced; -1 keeps the
// corresponding match bound. Offsets outside the match span are clamped.
type Substitution struct {
	Text  string
	Start int
	End   int
}

// ParseHandler is invoked per match during substitution. Returning nil
// applies the built-in default substitution; returning an error vetoes the
// match and records the error on the asset; returning a Substitution
// replaces the chosen span with its text. For reference matches, format is
// the resolved (explicit or defaulted) format.
type ParseHandler func(m Match, format string) (*Substitution, error)

// Parser pairs a matcher with an optional handler.
type Parser struct {
	Matcher Matcher
	Handler ParseHandler
}

// HookFunc transforms an asset's content. path is the asset's external
// path, for error reporting and path-relative work.
type HookFunc func(path, content string) (string, error)

// Hook is an optional content transformation with an optional required
// library resolved at asset construction.
type Hook struct {
	RequiredLibrary string
	Handler         HookFunc
}

// CompileHook is the compile-step hook. Successor, when set, is the
// descriptor the asset behaves as once compiled (content type, further
// parsing, finalize, minify).
type CompileHook struct {
	RequiredLibrary string
	Handler         HookFunc
	Successor       *Descriptor
}

// Descriptor declares per-extension behavior. One flat descriptor per
// extension; no runtime fallback chains.
type Descriptor struct {
	ContentType string
	// Binary assets may only be referenced with the base64 content format.
	Binary   bool
	Parsers  map[string]Parser
	Compile  CompileHook
	Finalize Hook
	Minify   Hook
}

// Extend composes a base descriptor with overrides into a new flat
// descriptor: each field comes from the override if present, else from the
// base's already-resolved fields. Parser tables merge by name with
// override entries winning. Neither input is mutated.
func Extend(base, override *Descriptor) *Descriptor {
	if base == nil {
		base = &Descriptor{}
	}
	if override == nil {
		override = &Descriptor{}
	}

	d := &Descriptor{
		ContentType: base.ContentType,
		Binary:      base.Binary || override.Binary,
		Compile:     base.Compile,
		Finalize:    base.Finalize,
		Minify:      base.Minify,
	}
	if override.ContentType != "" {
		d.ContentType = override.ContentType
	}
	if override.Compile.Handler != nil || override.Compile.Successor != nil {
		d.Compile = override.Compile
	}
	if override.Finalize.Handler != nil {
		d.Finalize = override.Finalize
	}
	if override.Minify.Handler != nil {
		d.Minify = override.Minify
	}

	if len(base.Parsers) > 0 || len(override.Parsers) > 0 {
		d.Parsers = make(map[string]Parser, len(base.Parsers)+len(override.Parsers))
		for name, p := range base.Parsers {
			d.Parsers[name] = p
		}
		for name, p := range override.Parsers {
			d.Parsers[name] = p
		}
	}

	return d
}
