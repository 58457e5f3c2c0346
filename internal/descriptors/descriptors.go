// Package descriptors bundles the behavior descriptors for the asset types
// the pipeline supports out of the box. Integrators can replace or extend
// this set; the engine itself consumes descriptors as opaque capability
// objects.
package descriptors

import (
	"bytes"

	"github.com/tdewolff/minify/v2"
	minifycss "github.com/tdewolff/minify/v2/css"
	minifyhtml "github.com/tdewolff/minify/v2/html"
	minifyjs "github.com/tdewolff/minify/v2/js"
	minifyjson "github.com/tdewolff/minify/v2/json"
	minifysvg "github.com/tdewolff/minify/v2/svg"
	"github.com/yuin/goldmark"

	"github.com/conneroisu/assetpipe/internal/descriptor"
	"github.com/conneroisu/assetpipe/internal/library"
)

func init() {
	m := minify.New()
	m.AddFunc("text/css", minifycss.Minify)
	m.AddFunc("text/html", minifyhtml.Minify)
	m.AddFunc("text/javascript", minifyjs.Minify)
	m.AddFunc("application/json", minifyjson.Minify)
	m.AddFunc("image/svg+xml", minifysvg.Minify)
	library.Register("minify", m)

	library.Register("goldmark", goldmark.New())
}

// minifyHook builds a minify hook for a media type, resolved through the
// library registry so construction-time requirement checks stay honest.
func minifyHook(mediatype string) descriptor.Hook {
	return descriptor.Hook{
		RequiredLibrary: "minify",
		Handler: func(path, content string) (string, error) {
			lib, err := library.Load("minify")
			if err != nil {
				return "", err
			}

			return lib.(*minify.M).String(mediatype, content)
		},
	}
}

// CSS handles stylesheets: @import statements merge other stylesheets,
// url(...) values carrying an asset query are rewritten in place.
var CSS = &descriptor.Descriptor{
	ContentType: "text/css",
	Parsers: map[string]descriptor.Parser{
		descriptor.ParserImport: {
			Matcher: descriptor.NewRegexMatcher(
				`@import\s+['"](?P<path>[^'"]+)['"]\s*;\s*`),
		},
		descriptor.ParserReference: {
			Matcher: descriptor.NewRegexMatcher(
				`url\(\s*(?P<quote>['"]?)(?P<sub>(?P<path>[^'"()?#\s]+)\?asset-(?P<entity>[a-z0-9]+)(?:=(?P<format>[a-z0-9]+))?)['"]?\s*\)`),
		},
	},
	Minify: minifyHook("text/css"),
}

// JS handles scripts: bare import statements merge other scripts.
var JS = &descriptor.Descriptor{
	ContentType: "text/javascript",
	Parsers: map[string]descriptor.Parser{
		descriptor.ParserImport: {
			Matcher: descriptor.NewRegexMatcher(
				`import\s+['"](?P<path>[^'"]+)['"]\s*;?[^\S\n]*\n?`),
		},
	},
	Minify: minifyHook("text/javascript"),
}

// HTML merges documents named in import comments and rewrites src/href
// attribute values carrying an asset query. The attribute matcher is
// scanner-based: matching the closing quote to the opening one needs a
// backreference the regexp package cannot express.
var HTML = &descriptor.Descriptor{
	ContentType: "text/html",
	Parsers: map[string]descriptor.Parser{
		descriptor.ParserImport: {
			Matcher: descriptor.NewRegexMatcher(
				`<!--\s*@import\s+['"](?P<path>[^'"]+)['"]\s*-->\s*`),
		},
		descriptor.ParserReference: {
			Matcher: &AttributeMatcher{Attributes: []string{"src", "href", "xlink:href"}},
		},
	},
	Minify: minifyHook("text/html"),
}

// SVG is text and referenceable as utf8 content; its href attributes are
// rewritten like HTML's.
var SVG = &descriptor.Descriptor{
	ContentType: "image/svg+xml",
	Parsers: map[string]descriptor.Parser{
		descriptor.ParserReference: {
			Matcher: &AttributeMatcher{Attributes: []string{"href", "xlink:href"}},
		},
	},
	Minify: minifyHook("image/svg+xml"),
}

// JSON carries no parsers; it participates for minification and content
// references.
var JSON = &descriptor.Descriptor{
	ContentType: "application/json",
	Minify:      minifyHook("application/json"),
}

// Markdown compiles to HTML via goldmark and behaves as HTML from then on.
var Markdown = &descriptor.Descriptor{
	ContentType: "text/markdown",
	Compile: descriptor.CompileHook{
		RequiredLibrary: "goldmark",
		Handler: func(path, content string) (string, error) {
			lib, err := library.Load("goldmark")
			if err != nil {
				return "", err
			}

			var buf bytes.Buffer
			if err := lib.(goldmark.Markdown).Convert([]byte(content), &buf); err != nil {
				return "", err
			}

			return buf.String(), nil
		},
		Successor: HTML,
	},
}

// Text is plain text with no parsers or hooks.
var Text = &descriptor.Descriptor{
	ContentType: "text/plain",
}

// imageBase is the shared base for binary image types; content references
// to them must use base64.
var imageBase = &descriptor.Descriptor{
	Binary: true,
}

var (
	PNG  = descriptor.Extend(imageBase, &descriptor.Descriptor{ContentType: "image/png"})
	JPEG = descriptor.Extend(imageBase, &descriptor.Descriptor{ContentType: "image/jpeg"})
	GIF  = descriptor.Extend(imageBase, &descriptor.Descriptor{ContentType: "image/gif"})
	WebP = descriptor.Extend(imageBase, &descriptor.Descriptor{ContentType: "image/webp"})
	ICO  = descriptor.Extend(imageBase, &descriptor.Descriptor{ContentType: "image/x-icon"})
)

// All maps file extensions to their bundled descriptors.
func All() map[string]*descriptor.Descriptor {
	return map[string]*descriptor.Descriptor{
		".css":  CSS,
		".js":   JS,
		".htm":  HTML,
		".html": HTML,
		".svg":  SVG,
		".json": JSON,
		".md":   Markdown,
		".txt":  Text,
		".png":  PNG,
		".jpg":  JPEG,
		".jpeg": JPEG,
		".gif":  GIF,
		".webp": WebP,
		".ico":  ICO,
	}
}
