package asset

import (
	"encoding/base64"
	"path"
	"sort"
	"strings"

	"github.com/conneroisu/assetpipe/internal/descriptor"
	apperrors "github.com/conneroisu/assetpipe/internal/errors"
)

// parseMatch is one recorded parser match awaiting substitution.
type parseMatch struct {
	kind    string
	match   descriptor.Match
	handler descriptor.ParseHandler
	// target is the resolved referenced asset for the built-in kinds; nil
	// when the path did not resolve (deferred to substitution as a
	// not-found error).
	target       *Asset
	resolvedPath string
}

// parse scans own content with every named parser and records all matches
// without mutating content. For the built-in import and reference kinds
// the referenced path is resolved against the manifest, relative to this
// asset's directory.
func (a *Asset) parse() {
	a.read()
	if a.ran[phaseParse] {
		return
	}
	a.ran[phaseParse] = true

	for name, parser := range a.desc.Parsers {
		for _, m := range parser.Matcher.FindAll(a.own) {
			pm := parseMatch{kind: name, match: m, handler: parser.Handler}
			if builtinKind(name) {
				pm.resolvedPath = resolvePath(path.Dir(a.path), m.Path)
				if target, ok := a.resolver.LookupAsset(pm.resolvedPath); ok {
					pm.target = target
				}
			}
			a.matches = append(a.matches, pm)
		}
	}

	// Matches come per parser; order them by offset so dependency lists
	// and substitutions follow the order of appearance in the source.
	sort.SliceStable(a.matches, func(i, j int) bool {
		return a.matches[i].match.Start < a.matches[j].match.Start
	})

	for _, pm := range a.matches {
		if pm.target == nil {
			continue
		}
		switch pm.kind {
		case descriptor.ParserImport:
			if !containsAsset(a.deps, pm.target) {
				a.deps = append(a.deps, pm.target)
			}
			if !containsAsset(a.imports, pm.target) {
				a.imports = append(a.imports, pm.target)
			}
		case descriptor.ParserReference:
			if !containsAsset(a.deps, pm.target) {
				a.deps = append(a.deps, pm.target)
			}
		}
	}
}

func builtinKind(name string) bool {
	return name == descriptor.ParserImport || name == descriptor.ParserReference
}

// replacement is one resolved substitution, offsets into the pre-
// substitution buffer.
type replacement struct {
	start, end int
	text       string
}

// substitute resolves every recorded match into a replacement and applies
// them all against the original own-content buffer. Replacements are
// resolved in ascending offset order and applied by single-pass segment
// assembly, so every recorded offset refers to the original, unshifted
// buffer.
func (a *Asset) substitute() {
	a.parse()
	if a.ran[phaseSubstitute] {
		return
	}
	a.ran[phaseSubstitute] = true

	var repls []replacement
	for _, pm := range a.matches {
		if repl, ok := a.resolveMatch(pm); ok {
			repls = append(repls, repl)
		}
	}

	if len(repls) == 0 {
		return
	}

	var b strings.Builder
	b.Grow(len(a.own))
	last := 0
	for _, r := range repls {
		if r.start < last {
			continue // overlapping spans never occur within one scan
		}
		b.WriteString(a.own[last:r.start])
		b.WriteString(r.text)
		last = r.end
	}
	b.WriteString(a.own[last:])
	a.own = b.String()
}

// resolveMatch validates one match and produces its replacement. Errors
// are recorded on the asset and never abort the pass.
func (a *Asset) resolveMatch(pm parseMatch) (replacement, bool) {
	m := pm.match
	line := lineOf(a.own, m.Start)

	format := m.Format
	if builtinKind(pm.kind) {
		if pm.target == nil {
			a.addError(apperrors.ErrAssetNotFound(pm.resolvedPath, a.path).WithLine(line))
			return replacement{}, false
		}

		if pm.kind == descriptor.ParserReference {
			entity := m.Entity
			if entity != descriptor.EntityPath && entity != descriptor.EntityContent {
				a.addError(apperrors.ErrInvalidReference(a.path,
					"invalid reference entity: "+entity).WithLine(line))
				return replacement{}, false
			}
			if format == "" {
				format = descriptor.DefaultFormat(entity)
			}
			if !descriptor.ValidFormat(entity, format) {
				a.addError(apperrors.ErrInvalidReference(a.path,
					"invalid format for "+entity+" reference: "+format).WithLine(line))
				return replacement{}, false
			}
			if entity == descriptor.EntityContent && pm.target.desc.Binary &&
				format != descriptor.FormatBase64 {
				a.addError(apperrors.ErrInvalidReference(a.path,
					"binary asset content must be referenced as base64: "+pm.resolvedPath).
					WithLine(line))
				return replacement{}, false
			}
			// An import cycle is legal; a reference cycle is not.
			if pm.target == a || containsAsset(pm.target.Dependencies(), a) {
				a.addError(apperrors.ErrCircularReference(a.path, pm.resolvedPath).WithLine(line))
				return replacement{}, false
			}
		}
	}

	if pm.handler != nil {
		sub, err := pm.handler(m, format)
		if err != nil {
			if pe, ok := err.(*apperrors.PipelineError); ok {
				a.addError(pe.WithLine(line))
			} else {
				a.addError(apperrors.ErrHandlerFailed(a.path, "parse", err).WithLine(line))
			}
			return replacement{}, false
		}
		if sub != nil {
			return replacement{
				start: clamp(sub.Start, m.Start, m.End, m.Start),
				end:   clamp(sub.End, m.Start, m.End, m.End),
				text:  sub.Text,
			}, true
		}
	}

	text, ok := a.defaultSubstitution(pm, format)
	if !ok {
		return replacement{}, false
	}

	return replacement{start: m.Start, end: m.End, text: text}, true
}

// defaultSubstitution computes the built-in replacement text. Imports
// disappear (their content arrives via merge); references substitute a
// path form, a data: URI, or the raw referenced content.
func (a *Asset) defaultSubstitution(pm parseMatch, format string) (string, bool) {
	switch pm.kind {
	case descriptor.ParserImport:
		return "", true

	case descriptor.ParserReference:
		target := pm.target
		switch pm.match.Entity {
		case descriptor.EntityPath:
			if format == descriptor.FormatUnversioned {
				return target.PathUnversioned(), true
			}
			return target.PathVersioned(), true

		case descriptor.EntityContent:
			content := target.Content(false)
			switch format {
			case descriptor.FormatBase64:
				return "data:" + target.ContentType() + ";base64," +
					base64.StdEncoding.EncodeToString([]byte(content)), true
			case descriptor.FormatUTF8:
				return "data:" + target.ContentType() + ";utf8," +
					escapeDataURI(content, pm.match.Quote), true
			case descriptor.FormatDisplace:
				return content, true
			}
		}
	}

	return "", false
}

// escapeDataURI makes content safe inside an attribute or URL: '#' would
// end the URI, and the enclosing quote would end the attribute.
func escapeDataURI(content string, quote byte) string {
	content = strings.ReplaceAll(content, "#", "%23")
	switch quote {
	case '\'':
		content = strings.ReplaceAll(content, "'", "%27")
	case '"':
		content = strings.ReplaceAll(content, `"`, "%22")
	}

	return content
}

// resolvePath normalizes a referenced path against the referencing asset's
// directory. Absolute paths resolve against the manifest root.
func resolvePath(dir, ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "/") {
		return path.Clean(ref)
	}

	return path.Clean(path.Join(dir, ref))
}

func clamp(v, lo, hi, def int) int {
	if v < 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}

func lineOf(content string, offset int) int {
	if offset > len(content) {
		offset = len(content)
	}

	return 1 + strings.Count(content[:offset], "\n")
}
