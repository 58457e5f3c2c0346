// Package asset implements the per-file processing engine. An Asset owns
// one source file's lifecycle: read, parse, resolve dependencies,
// substitute references, compile, merge imported content, finalize,
// minify, and fingerprint — all in memory, re-running only when the file
// or one of its transitive dependencies changed since the last generation.
package asset

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/conneroisu/assetpipe/internal/descriptor"
	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/library"
	"github.com/conneroisu/assetpipe/internal/logging"
)

// Resolver is the manifest surface an asset needs from its owning
// pipeline: path lookups for import/reference resolution and the shared
// generation counter that memoizes per-cycle modification checks.
type Resolver interface {
	// LookupAsset returns the asset registered under an external path.
	LookupAsset(path string) (*Asset, bool)
	// GenerationKey is incremented once per completed scan cycle.
	GenerationKey() uint64
}

// processing phases, each executed at most once per generation
type phase int

const (
	phaseRead phase = iota
	phaseParse
	phaseSubstitute
	phaseCompile
	phaseContent
	phaseCount
)

// Config captures an asset's configuration snapshot at creation.
type Config struct {
	// Path is the canonical external path, unique within the pipeline.
	Path string
	// File is the absolute source file location.
	File string

	Descriptor *descriptor.Descriptor
	Resolver   Resolver

	// Prefix is prepended to both external path forms.
	Prefix string
	// Entry marks the asset externally addressable (vs. import-only).
	Entry bool
	// Minify requests minification of the final content.
	Minify bool

	// Cache is an optional shared compile cache.
	Cache *CompileCache
	// Logger is optional; a no-op logger is used when nil.
	Logger logging.Logger
}

// Asset is the processing engine for one source file.
type Asset struct {
	path     string
	file     string
	desc     *descriptor.Descriptor
	resolver Resolver
	prefix   string
	entry    bool
	minify   bool
	cache    *CompileCache
	log      logging.Logger

	// successor handles post-compile processing when the descriptor names
	// a successor descriptor; it has no backing file of its own.
	successor *Asset
	derived   bool

	// generation memoization
	processedKey  uint64
	processedOnce bool
	modifiedKey   uint64
	modifiedOnce  bool
	modified      bool

	ran [phaseCount]bool

	// derived state, all invalidated together on reprocessing
	mtime       time.Time
	raw         string
	own         string
	matches     []parseMatch
	deps        []*Asset
	imports     []*Asset
	errs        []error
	content     string
	contentMin  string
	minApplied  bool
	fingerprint string
	integrity   map[string]string
}

// New constructs an asset and performs the required-library check for
// every hook that will actually run. A missing library is fatal: the
// returned error aborts construction rather than joining the soft
// per-asset error list.
func New(cfg Config) (*Asset, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	d := cfg.Descriptor
	if err := checkLibrary(d.Compile.RequiredLibrary, d.Compile.Handler != nil); err != nil {
		return nil, err
	}
	if d.Compile.Successor == nil {
		if err := checkLibrary(d.Finalize.RequiredLibrary, d.Finalize.Handler != nil); err != nil {
			return nil, err
		}
		if err := checkLibrary(d.Minify.RequiredLibrary, cfg.Minify && d.Minify.Handler != nil); err != nil {
			return nil, err
		}
	}

	a := &Asset{
		path:      cfg.Path,
		file:      cfg.File,
		desc:      d,
		resolver:  cfg.Resolver,
		prefix:    cfg.Prefix,
		entry:     cfg.Entry,
		minify:    cfg.Minify,
		cache:     cfg.Cache,
		log:       cfg.Logger.WithComponent("asset"),
		integrity: make(map[string]string),
	}

	if d.Compile.Successor != nil {
		succ, err := New(Config{
			Path:       cfg.Path,
			File:       cfg.File,
			Descriptor: d.Compile.Successor,
			Resolver:   cfg.Resolver,
			Prefix:     cfg.Prefix,
			Entry:      cfg.Entry,
			Minify:     cfg.Minify,
			Cache:      cfg.Cache,
			Logger:     cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		succ.derived = true
		a.successor = succ
	}

	return a, nil
}

func checkLibrary(name string, needed bool) error {
	if !needed || name == "" {
		return nil
	}

	_, err := library.Load(name)
	return err
}

// Path returns the canonical external path.
func (a *Asset) Path() string { return a.path }

// File returns the backing source file location.
func (a *Asset) File() string { return a.file }

// Entry reports whether the asset is externally addressable.
func (a *Asset) Entry() bool { return a.entry }

// MinifyRequested reports whether minification was requested at creation.
func (a *Asset) MinifyRequested() bool { return a.minify }

// effective returns the descriptor governing the asset once compiled.
func (a *Asset) effective() *descriptor.Descriptor {
	if a.successor != nil {
		return a.successor.effective()
	}

	return a.desc
}

// ContentType returns the effective content type label.
func (a *Asset) ContentType() string { return a.effective().ContentType }

// Process runs one processing pass. It is idempotent per generation: a
// second call in the same generation is a no-op. When the asset is
// unmodified since the previous generation all cached state is kept.
func (a *Asset) Process() {
	key := a.resolver.GenerationKey()
	if a.processedOnce && a.processedKey == key {
		return
	}
	a.processedKey = key
	a.processedOnce = true

	if !a.Modified() {
		return
	}

	a.compile()
	if a.entry {
		a.Fingerprint()
	}
}

// Modified reports whether the asset must be reprocessed this generation:
// the previous pass recorded an error, the file's mtime changed (a missing
// file counts as modified and degrades to empty content), or any direct
// dependency is itself modified. The answer is memoized per generation key
// so multiple dependents querying the same asset evaluate it exactly once.
func (a *Asset) Modified() bool {
	if a.derived {
		return false
	}

	key := a.resolver.GenerationKey()
	if a.modifiedOnce && a.modifiedKey == key {
		return a.modified
	}
	a.modifiedKey = key
	a.modifiedOnce = true
	a.modified = false // import cycles re-enter here; answer false mid-check

	mod := len(a.errs) > 0 || (a.successor != nil && len(a.successor.errs) > 0)
	if !mod {
		st, err := os.Stat(a.file)
		mod = err != nil || !st.ModTime().Equal(a.mtime)
	}
	if !mod {
		for _, dep := range a.lastDependencies() {
			if dep.Modified() {
				mod = true
				break
			}
		}
	}

	a.modified = mod
	if mod {
		a.ran = [phaseCount]bool{}
	}

	return mod
}

// lastDependencies returns the direct dependencies recorded by the most
// recent pass without triggering a re-parse.
func (a *Asset) lastDependencies() []*Asset {
	if a.successor == nil {
		return a.deps
	}

	deps := make([]*Asset, 0, len(a.deps)+len(a.successor.deps))
	deps = append(deps, a.deps...)
	deps = append(deps, a.successor.deps...)

	return deps
}

// sync makes sure the modification check ran before any phase this
// generation.
func (a *Asset) sync() {
	if !a.derived {
		a.Modified()
	}
}

// clear resets every piece of derived state.
func (a *Asset) clear() {
	a.raw = ""
	a.own = ""
	a.matches = nil
	a.deps = nil
	a.imports = nil
	a.errs = nil
	a.content = ""
	a.contentMin = ""
	a.minApplied = false
	a.fingerprint = ""
	a.integrity = make(map[string]string)
}

// read loads raw file content and records the observed mtime. A vanished
// file reads as empty content, not as an error.
func (a *Asset) read() {
	a.sync()
	if a.ran[phaseRead] {
		return
	}
	a.ran[phaseRead] = true

	if a.derived {
		a.own = a.raw
		return
	}

	a.clear()

	if st, err := os.Stat(a.file); err == nil {
		a.mtime = st.ModTime()
	} else {
		a.mtime = time.Time{}
	}

	data, err := os.ReadFile(a.file)
	if err != nil {
		a.raw = ""
	} else {
		a.raw = string(data)
	}
	a.own = a.raw
}

// inject seeds a successor asset with its parent's compiled output and
// resets it for a fresh pass over that content.
func (a *Asset) inject(content string) {
	a.clear()
	a.ran = [phaseCount]bool{}
	a.raw = content
}

// compile applies the descriptor's compile hook to post-substitution own
// content, consulting the shared compile cache first. A handler failure is
// recorded and leaves own content unchanged. When a successor descriptor
// exists, the compiled output is handed to the successor unit for all
// further processing.
func (a *Asset) compile() {
	a.substitute()
	if a.ran[phaseCompile] {
		return
	}
	a.ran[phaseCompile] = true

	if a.desc.Compile.Handler != nil {
		key := contentKey(a.desc.ContentType, a.own)
		if cached, ok := a.cache.Get(key); ok {
			a.own = cached
		} else {
			out, err := a.desc.Compile.Handler(a.path, a.own)
			if err != nil {
				a.addError(apperrors.ErrHandlerFailed(a.path, "compile", err))
			} else {
				a.own = out
				a.cache.Add(key, out)
			}
		}
	}

	if a.successor != nil {
		a.successor.inject(a.own)
	}
}

// OwnContent returns the asset's own content: raw content with imports
// excised, references substituted, and the compile hook applied.
func (a *Asset) OwnContent() string {
	a.compile()
	if a.successor != nil {
		return a.successor.OwnContent()
	}

	return a.own
}

// computeContent merges transitive imports and applies the finalize hook.
func (a *Asset) computeContent() {
	a.compile()
	if a.ran[phaseContent] {
		return
	}
	a.ran[phaseContent] = true

	pieces := make([]string, 0, 8)
	for _, imp := range a.allImports() {
		pieces = append(pieces, imp.OwnContent())
	}
	pieces = append(pieces, a.OwnContent())
	a.content = joinPieces(pieces)

	if fin := a.effective().Finalize; fin.Handler != nil {
		out, err := fin.Handler(a.path, a.content)
		if err != nil {
			a.addError(apperrors.ErrHandlerFailed(a.path, "finalize", err))
		} else {
			a.content = out
		}
	}
}

// Content returns the fully resolved content: own content plus all
// transitively-imported assets' own content, finalized, and minified when
// minified is true and the descriptor has a minify hook. It always returns
// a string, even after errors; errors are recorded, not raised. Minified
// and unminified forms are cached independently.
func (a *Asset) Content(minified bool) string {
	a.computeContent()

	min := a.effective().Minify
	if !minified || min.Handler == nil {
		return a.content
	}

	if !a.minApplied {
		a.minApplied = true
		out, err := min.Handler(a.path, a.content)
		if err != nil {
			a.addError(apperrors.ErrHandlerFailed(a.path, "minify", err))
			a.contentMin = a.content
		} else {
			a.contentMin = out
		}
	}

	return a.contentMin
}

// FinalContent is the content served and dumped for this asset: minified
// when minification was requested at creation.
func (a *Asset) FinalContent() string {
	return a.Content(a.minify)
}

// Fingerprint returns the hex-encoded 128-bit content hash of the final
// content.
func (a *Asset) Fingerprint() string {
	a.sync()
	if a.fingerprint == "" {
		a.fingerprint = fingerprintOf(a.FinalContent())
	}

	return a.fingerprint
}

func fingerprintOf(content string) string {
	h := blake3.New()
	_, _ = h.Write([]byte(content))

	var sum [16]byte
	_, _ = io.ReadFull(h.Digest(), sum[:])

	return hex.EncodeToString(sum[:])
}

// PathUnversioned returns the prefixed external path.
func (a *Asset) PathUnversioned() string {
	return a.prefix + a.path
}

// PathVersioned returns the prefixed external path with the fingerprint
// spliced in before the extension.
func (a *Asset) PathVersioned() string {
	p := a.prefix + a.path
	ext := path.Ext(p)

	return p[:len(p)-len(ext)] + "-" + a.Fingerprint() + ext
}

// Integrity returns the base64-encoded digest of the final content under
// the given algorithm, in subresource-integrity form ("sha384-..."). The
// result is cached per algorithm. An unknown algorithm is a programming
// error and panics.
func (a *Asset) Integrity(algorithm string) string {
	a.sync()
	if cached, ok := a.integrity[algorithm]; ok {
		return cached
	}

	content := []byte(a.FinalContent())

	var digest []byte
	switch algorithm {
	case "sha256":
		sum := sha256.Sum256(content)
		digest = sum[:]
	case "sha384":
		sum := sha512.Sum384(content)
		digest = sum[:]
	case "sha512":
		sum := sha512.Sum512(content)
		digest = sum[:]
	default:
		panic(fmt.Sprintf("asset: unknown integrity algorithm %q", algorithm))
	}

	result := algorithm + "-" + base64.StdEncoding.EncodeToString(digest)
	a.integrity[algorithm] = result

	return result
}

// Headers returns the HTTP headers appropriate for serving the asset:
// content type plus an immutable cache header for the versioned path, or
// an ETag carrying the raw fingerprint for the unversioned one.
func (a *Asset) Headers(versioned bool) map[string]string {
	headers := map[string]string{
		"Content-Type": a.ContentType(),
	}
	if versioned {
		headers["Cache-Control"] = "public, max-age=31536000, immutable"
	} else {
		headers["ETag"] = `"` + a.Fingerprint() + `"`
	}

	return headers
}

// Errors returns the errors accumulated during the most recent pass.
func (a *Asset) Errors() []error {
	if a.successor == nil {
		return a.errs
	}

	errs := make([]error, 0, len(a.errs)+len(a.successor.errs))
	errs = append(errs, a.errs...)
	errs = append(errs, a.successor.errs...)

	return errs
}

// HasError reports whether the most recent pass recorded any error.
func (a *Asset) HasError() bool {
	return len(a.Errors()) > 0
}

func (a *Asset) addError(err error) {
	a.errs = append(a.errs, err)
}

// joinPieces concatenates content pieces, separating adjacent non-blank
// pieces with a single blank line.
func joinPieces(pieces []string) string {
	var b strings.Builder
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if b.Len() > 0 {
			switch {
			case strings.HasSuffix(b.String(), "\n\n") || strings.HasPrefix(piece, "\n"):
				// seam already blank
			case strings.HasSuffix(b.String(), "\n"):
				b.WriteString("\n")
			default:
				b.WriteString("\n\n")
			}
		}
		b.WriteString(piece)
	}

	return b.String()
}
