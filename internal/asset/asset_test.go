package asset

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetpipe/internal/descriptor"
	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/library"
)

// fakeResolver is a minimal manifest for exercising assets directly.
type fakeResolver struct {
	assets map[string]*Asset
	gen    uint64
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{assets: make(map[string]*Asset), gen: 1}
}

func (r *fakeResolver) LookupAsset(path string) (*Asset, bool) {
	a, ok := r.assets[path]
	return a, ok
}

func (r *fakeResolver) GenerationKey() uint64 { return r.gen }

func cssDescriptor() *descriptor.Descriptor {
	return &descriptor.Descriptor{
		ContentType: "text/css",
		Parsers: map[string]descriptor.Parser{
			descriptor.ParserImport: {
				Matcher: descriptor.NewRegexMatcher(`@import\s+['"](?P<path>[^'"]+)['"]\s*;\s*`),
			},
			descriptor.ParserReference: {
				Matcher: descriptor.NewRegexMatcher(
					`url\(\s*(?P<quote>['"]?)(?P<sub>(?P<path>[^'"()?#\s]+)\?asset-(?P<entity>[a-z0-9]+)(?:=(?P<format>[a-z0-9]+))?)['"]?\s*\)`),
			},
		},
	}
}

func svgDescriptor() *descriptor.Descriptor {
	return &descriptor.Descriptor{ContentType: "image/svg+xml"}
}

func pngDescriptor() *descriptor.Descriptor {
	return &descriptor.Descriptor{ContentType: "image/png", Binary: true}
}

// writeFile places content under dir at the external path and returns the
// file location.
func writeFile(t *testing.T, dir, path, content string) string {
	t.Helper()

	file := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(path, "/")))
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	return file
}

// addAsset writes the file, constructs the asset as an entry point, and
// registers it with the resolver.
func addAsset(t *testing.T, r *fakeResolver, dir, path, content string, d *descriptor.Descriptor) *Asset {
	t.Helper()

	file := writeFile(t, dir, path, content)
	a, err := New(Config{
		Path:       path,
		File:       file,
		Descriptor: d,
		Resolver:   r,
		Entry:      true,
	})
	require.NoError(t, err)
	r.assets[path] = a

	return a
}

// touch moves a file's mtime forward so modification checks see a change.
func touch(t *testing.T, file string) {
	t.Helper()

	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(file, future, future))
}

func TestImportMerge(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	addAsset(t, r, dir, "/header.css", "header{color:red}", cssDescriptor())
	app := addAsset(t, r, dir, "/app.css",
		"@import 'header.css';\nbody{color:blue}", cssDescriptor())

	app.Process()

	assert.False(t, app.HasError())
	assert.Equal(t, "header{color:red}\n\nbody{color:blue}", app.Content(false))
	assert.NotContains(t, app.OwnContent(), "@import")
}

func TestImportCycleTerminates(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	a := addAsset(t, r, dir, "/a.css", "@import 'b.css';\n.a{}", cssDescriptor())
	addAsset(t, r, dir, "/b.css", "@import 'c.css';\n.b{}", cssDescriptor())
	addAsset(t, r, dir, "/c.css", "@import 'a.css';\n.c{}", cssDescriptor())

	a.Process()

	require.False(t, a.HasError())
	// Each member's own content appears exactly once, dependencies first.
	assert.Equal(t, ".c{}\n\n.b{}\n\n.a{}", a.Content(false))

	deps := a.Dependencies()
	require.Len(t, deps, 2)
	assert.Equal(t, "/c.css", deps[0].Path())
	assert.Equal(t, "/b.css", deps[1].Path())
}

func TestReferencePathSubstitution(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	bg := addAsset(t, r, dir, "/images/bg.png", "\x89PNG", pngDescriptor())
	app := addAsset(t, r, dir, "/app.css",
		"body{background:url(/images/bg.png?asset-path)}", cssDescriptor())

	app.Process()

	require.False(t, app.HasError())
	assert.Equal(t,
		fmt.Sprintf("body{background:url(%s)}", bg.PathVersioned()),
		app.Content(false))
}

func TestReferenceUnversionedFormat(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	addAsset(t, r, dir, "/logo.svg", "<svg/>", svgDescriptor())
	app := addAsset(t, r, dir, "/app.css",
		"a{mask:url(/logo.svg?asset-path=unversioned)}", cssDescriptor())

	app.Process()

	require.False(t, app.HasError())
	assert.Equal(t, "a{mask:url(/logo.svg)}", app.Content(false))
}

func TestReferenceContentUTF8(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	addAsset(t, r, dir, "/logo.svg", `<svg fill="#fff"/>`, svgDescriptor())
	app := addAsset(t, r, dir, "/app.css",
		"a{mask:url(/logo.svg?asset-content=utf8)}", cssDescriptor())

	app.Process()

	require.False(t, app.HasError())
	assert.Equal(t,
		`a{mask:url(data:image/svg+xml;utf8,<svg fill="%23fff"/>)}`,
		app.Content(false))
}

func TestReferenceContentUTF8EscapesEnclosingQuote(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	addAsset(t, r, dir, "/logo.svg", `<svg name='x' fill="#fff"/>`, svgDescriptor())
	app := addAsset(t, r, dir, "/app.css",
		"a{mask:url('/logo.svg?asset-content=utf8')}", cssDescriptor())

	app.Process()

	require.False(t, app.HasError())
	// The referenced content's single quotes must not terminate the CSS
	// string enclosing the data URI.
	assert.Equal(t,
		`a{mask:url('data:image/svg+xml;utf8,<svg name=%27x%27 fill="%23fff"/>')}`,
		app.Content(false))
}

func TestReferenceContentBase64Default(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	addAsset(t, r, dir, "/logo.svg", "<svg/>", svgDescriptor())
	app := addAsset(t, r, dir, "/app.css",
		"a{mask:url(/logo.svg?asset-content)}", cssDescriptor())

	app.Process()

	require.False(t, app.HasError())
	encoded := base64.StdEncoding.EncodeToString([]byte("<svg/>"))
	assert.Equal(t,
		"a{mask:url(data:image/svg+xml;base64,"+encoded+")}",
		app.Content(false))
}

func TestBinaryContentRequiresBase64(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	addAsset(t, r, dir, "/bg.png", "\x89PNG", pngDescriptor())
	app := addAsset(t, r, dir, "/app.css",
		"a{background:url(/bg.png?asset-content=utf8)}", cssDescriptor())

	app.Process()

	require.True(t, app.HasError())
	var pe *apperrors.PipelineError
	require.ErrorAs(t, app.Errors()[0], &pe)
	assert.Equal(t, apperrors.ErrCodeInvalidReference, pe.Code)
	// The offending reference stays in place.
	assert.Contains(t, app.Content(false), "?asset-content=utf8")
}

func TestReferenceCycleIsError(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	a := addAsset(t, r, dir, "/a.css",
		"x{background:url(/b.css?asset-path)}", cssDescriptor())
	addAsset(t, r, dir, "/b.css",
		"y{background:url(/a.css?asset-path)}", cssDescriptor())

	a.Process()

	require.True(t, a.HasError())
	var pe *apperrors.PipelineError
	require.ErrorAs(t, a.Errors()[0], &pe)
	assert.Equal(t, apperrors.ErrCodeCircularReference, pe.Code)
	assert.Equal(t, 1, pe.Line)
}

func TestSelfReferenceIsError(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	a := addAsset(t, r, dir, "/a.css",
		"x{background:url(/a.css?asset-path)}", cssDescriptor())

	a.Process()

	require.True(t, a.HasError())
	var pe *apperrors.PipelineError
	require.ErrorAs(t, a.Errors()[0], &pe)
	assert.Equal(t, apperrors.ErrCodeCircularReference, pe.Code)
}

func TestMissingImportRecordsError(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	app := addAsset(t, r, dir, "/app.css",
		"@import 'missing.css';\nbody{color:blue}", cssDescriptor())

	app.Process()

	require.True(t, app.HasError())
	var pe *apperrors.PipelineError
	require.ErrorAs(t, app.Errors()[0], &pe)
	assert.Equal(t, apperrors.ErrCodeAssetNotFound, pe.Code)
	// Content is still produced despite the error.
	assert.Contains(t, app.Content(false), "body{color:blue}")
}

func TestMultipleSubstitutionsPreserveSurroundingText(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	a := addAsset(t, r, dir, "/a.png", "A", pngDescriptor())
	b := addAsset(t, r, dir, "/b.png", "BB", pngDescriptor())
	app := addAsset(t, r, dir, "/app.css",
		"pre url(/a.png?asset-path) mid url(/b.png?asset-path=unversioned) post",
		cssDescriptor())

	app.Process()

	require.False(t, app.HasError())
	assert.Equal(t,
		"pre url("+a.PathVersioned()+") mid url("+b.PathUnversioned()+") post",
		app.Content(false))
}

func TestUnmodifiedAssetKeepsCachedState(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	app := addAsset(t, r, dir, "/app.css", "body{color:blue}", cssDescriptor())

	app.Process()
	first := app.Content(false)
	fp := app.Fingerprint()

	r.gen = 2
	assert.False(t, app.Modified())
	app.Process()

	assert.Equal(t, first, app.Content(false))
	assert.Equal(t, fp, app.Fingerprint())
}

func TestModifiedFileReprocesses(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	app := addAsset(t, r, dir, "/app.css", "body{color:blue}", cssDescriptor())
	app.Process()
	require.Equal(t, "body{color:blue}", app.Content(false))

	file := writeFile(t, dir, "/app.css", "body{color:green}")
	touch(t, file)

	r.gen = 2
	assert.True(t, app.Modified())
	app.Process()
	assert.Equal(t, "body{color:green}", app.Content(false))
}

func TestDependencyChangeReprocessesDependent(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	header := addAsset(t, r, dir, "/header.css", "header{color:red}", cssDescriptor())
	app := addAsset(t, r, dir, "/app.css",
		"@import 'header.css';\nbody{}", cssDescriptor())

	header.Process()
	app.Process()
	require.Contains(t, app.Content(false), "header{color:red}")

	file := writeFile(t, dir, "/header.css", "header{color:black}")
	touch(t, file)

	r.gen = 2
	assert.True(t, app.Modified())
	header.Process()
	app.Process()
	assert.Contains(t, app.Content(false), "header{color:black}")
}

func TestDeletedFileReadsEmpty(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	app := addAsset(t, r, dir, "/app.css", "body{}", cssDescriptor())
	app.Process()
	require.Equal(t, "body{}", app.Content(false))

	file := filepath.Join(dir, "app.css")
	require.NoError(t, os.Remove(file))

	r.gen = 2
	assert.True(t, app.Modified())
	app.Process()

	assert.False(t, app.HasError())
	assert.Empty(t, app.Content(false))
}

func TestFingerprintAndVersionedPath(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	app := addAsset(t, r, dir, "/js/app.js", "console.log(1)", &descriptor.Descriptor{
		ContentType: "text/javascript",
	})
	other := addAsset(t, r, dir, "/js/copy.js", "console.log(1)", &descriptor.Descriptor{
		ContentType: "text/javascript",
	})

	app.Process()
	other.Process()

	fp := app.Fingerprint()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), fp)
	assert.Equal(t, fp, other.Fingerprint())
	assert.Equal(t, "/js/app-"+fp+".js", app.PathVersioned())
	assert.Equal(t, "/js/app.js", app.PathUnversioned())
}

func TestPathPrefix(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	file := writeFile(t, dir, "/app.css", "body{}")
	app, err := New(Config{
		Path:       "/app.css",
		File:       file,
		Descriptor: cssDescriptor(),
		Resolver:   r,
		Prefix:     "/assets",
		Entry:      true,
	})
	require.NoError(t, err)

	app.Process()

	assert.Equal(t, "/assets/app.css", app.PathUnversioned())
	assert.True(t, strings.HasPrefix(app.PathVersioned(), "/assets/app-"))
}

func TestIntegrity(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	app := addAsset(t, r, dir, "/app.css", "body{color:blue}", cssDescriptor())
	app.Process()

	sum := sha256.Sum256([]byte(app.FinalContent()))
	want := "sha256-" + base64.StdEncoding.EncodeToString(sum[:])
	assert.Equal(t, want, app.Integrity("sha256"))
	// Cached on repeat.
	assert.Equal(t, want, app.Integrity("sha256"))

	assert.True(t, strings.HasPrefix(app.Integrity("sha384"), "sha384-"))
	assert.Panics(t, func() { app.Integrity("md5") })
}

func TestHeaders(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	app := addAsset(t, r, dir, "/app.css", "body{}", cssDescriptor())
	app.Process()

	versioned := app.Headers(true)
	assert.Equal(t, "text/css", versioned["Content-Type"])
	assert.Equal(t, "public, max-age=31536000, immutable", versioned["Cache-Control"])

	unversioned := app.Headers(false)
	assert.Equal(t, `"`+app.Fingerprint()+`"`, unversioned["ETag"])
}

func TestMinify(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	d := cssDescriptor()
	d.Minify = descriptor.Hook{
		Handler: func(path, content string) (string, error) {
			return strings.ReplaceAll(content, " ", ""), nil
		},
	}

	file := writeFile(t, dir, "/app.css", "body { color : blue }")
	app, err := New(Config{
		Path:       "/app.css",
		File:       file,
		Descriptor: d,
		Resolver:   r,
		Entry:      true,
		Minify:     true,
	})
	require.NoError(t, err)

	app.Process()

	assert.Equal(t, "body { color : blue }", app.Content(false))
	assert.Equal(t, "body{color:blue}", app.Content(true))
	assert.Equal(t, "body{color:blue}", app.FinalContent())
	assert.Less(t, len(app.Content(true)), len(app.Content(false)))
}

func TestCompileHookAndCache(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	cache, err := NewCompileCache(8)
	require.NoError(t, err)

	calls := 0
	d := &descriptor.Descriptor{
		ContentType: "text/x-src",
		Compile: descriptor.CompileHook{
			Handler: func(path, content string) (string, error) {
				calls++
				return "compiled:" + content, nil
			},
		},
	}

	for _, path := range []string{"/one.src", "/two.src"} {
		file := writeFile(t, dir, path, "same input")
		a, err := New(Config{
			Path:       path,
			File:       file,
			Descriptor: d,
			Resolver:   r,
			Entry:      true,
			Cache:      cache,
		})
		require.NoError(t, err)
		r.assets[path] = a
	}

	one, _ := r.LookupAsset("/one.src")
	two, _ := r.LookupAsset("/two.src")
	one.Process()
	two.Process()

	assert.Equal(t, "compiled:same input", one.Content(false))
	assert.Equal(t, "compiled:same input", two.Content(false))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, cache.Len())
}

func TestCompileFailureKeepsContent(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	d := &descriptor.Descriptor{
		ContentType: "text/x-src",
		Compile: descriptor.CompileHook{
			Handler: func(path, content string) (string, error) {
				return "", errors.New("syntax error")
			},
		},
	}

	file := writeFile(t, dir, "/bad.src", "raw input")
	a, err := New(Config{
		Path: "/bad.src", File: file, Descriptor: d, Resolver: r, Entry: true,
	})
	require.NoError(t, err)

	a.Process()

	require.True(t, a.HasError())
	var pe *apperrors.PipelineError
	require.ErrorAs(t, a.Errors()[0], &pe)
	assert.Equal(t, apperrors.ErrCodeHandlerFailed, pe.Code)
	assert.Equal(t, "raw input", a.Content(false))
}

func TestSuccessorDescriptor(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	html := &descriptor.Descriptor{ContentType: "text/html"}
	md := &descriptor.Descriptor{
		ContentType: "text/markdown",
		Compile: descriptor.CompileHook{
			Handler: func(path, content string) (string, error) {
				return "<h1>" + strings.TrimPrefix(content, "# ") + "</h1>", nil
			},
			Successor: html,
		},
	}

	file := writeFile(t, dir, "/readme.md", "# Title")
	a, err := New(Config{
		Path: "/readme.md", File: file, Descriptor: md, Resolver: r, Entry: true,
	})
	require.NoError(t, err)

	a.Process()

	assert.False(t, a.HasError())
	assert.Equal(t, "text/html", a.ContentType())
	assert.Equal(t, "<h1>Title</h1>", a.Content(false))
}

func TestMissingLibraryFatal(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	d := &descriptor.Descriptor{
		ContentType: "text/x-src",
		Compile: descriptor.CompileHook{
			RequiredLibrary: "no-such-library",
			Handler: func(path, content string) (string, error) {
				return content, nil
			},
		},
	}

	file := writeFile(t, dir, "/x.src", "x")
	_, err := New(Config{
		Path: "/x.src", File: file, Descriptor: d, Resolver: r, Entry: true,
	})

	require.Error(t, err)
	var pe *apperrors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apperrors.ErrCodeMissingLibrary, pe.Code)
}

func TestRegisteredLibraryPassesCheck(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	library.Register("asset-test-lib", struct{}{})

	d := &descriptor.Descriptor{
		ContentType: "text/x-src",
		Compile: descriptor.CompileHook{
			RequiredLibrary: "asset-test-lib",
			Handler: func(path, content string) (string, error) {
				return content, nil
			},
		},
	}

	file := writeFile(t, dir, "/x.src", "x")
	_, err := New(Config{
		Path: "/x.src", File: file, Descriptor: d, Resolver: r, Entry: true,
	})
	assert.NoError(t, err)
}

func TestParseHandlerVeto(t *testing.T) {
	dir := t.TempDir()
	r := newFakeResolver()

	d := cssDescriptor()
	ref := d.Parsers[descriptor.ParserReference]
	ref.Handler = func(m descriptor.Match, format string) (*descriptor.Substitution, error) {
		return nil, errors.New("not allowed here")
	}
	d.Parsers[descriptor.ParserReference] = ref

	addAsset(t, r, dir, "/a.png", "A", pngDescriptor())
	app := addAsset(t, r, dir, "/app.css",
		"a{background:url(/a.png?asset-path)}", d)

	app.Process()

	require.True(t, app.HasError())
	var pe *apperrors.PipelineError
	require.ErrorAs(t, app.Errors()[0], &pe)
	assert.Equal(t, apperrors.ErrCodeHandlerFailed, pe.Code)
	assert.Contains(t, app.Content(false), "?asset-path")
}

func TestJoinPieces(t *testing.T) {
	tests := []struct {
		name   string
		pieces []string
		want   string
	}{
		{"empty", nil, ""},
		{"single", []string{"a"}, "a"},
		{"two plain", []string{"a", "b"}, "a\n\nb"},
		{"trailing newline", []string{"a\n", "b"}, "a\n\nb"},
		{"already blank seam", []string{"a\n\n", "b"}, "a\n\nb"},
		{"blank piece skipped", []string{"a", "", "b"}, "a\n\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, joinPieces(tt.pieces))
		})
	}
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "/images/bg.png", resolvePath("/css", "../images/bg.png"))
	assert.Equal(t, "/css/x.css", resolvePath("/css", "x.css"))
	assert.Equal(t, "/abs.css", resolvePath("/css", "/abs.css"))
	assert.Equal(t, "/x.css", resolvePath("/", " x.css "))
}
