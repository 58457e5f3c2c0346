// Package pipeline implements the orchestrator that owns the root
// directories, the extension→descriptor registry, and the path→asset
// manifest. It drives scan-and-reprocess cycles under a rate limit and a
// single-flight lock, detects path conflicts, and publishes versioned and
// unversioned lookup tables for entry-point assets.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/assetpipe/internal/asset"
	"github.com/conneroisu/assetpipe/internal/descriptor"
	apperrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
)

// invalidPathChars are the characters disallowed in external asset paths.
const invalidPathChars = "'\"`=<>? "

// DefaultPristine is the built-in pristine path set: well-known root files
// exempt from prefixing and default path versioning.
var DefaultPristine = []string{
	"/favicon.ico",
	"/mask-icon.svg",
	"/humans.txt",
	"/robots.txt",
}

// Options configures a Pipeline.
type Options struct {
	// Roots are the directories scanned for assets. Required. External
	// paths must be globally unique across all roots.
	Roots []string
	// Hosts are prepended to returned asset paths, round-robin per caller
	// cursor.
	Hosts []string
	// Prefix is prepended to all non-pristine external paths.
	Prefix string
	// Pristine paths, in addition to DefaultPristine.
	Pristine []string
	// Entries selects externally addressable assets: exact paths or
	// anchored regular expressions. Empty means every asset is an entry
	// point.
	Entries []string
	// Minify enables minification for entry-point assets.
	Minify bool
	// MinifiedPatterns match paths that are already minified and are
	// skipped even when Minify is set.
	MinifiedPatterns []string
	// MinProcessInterval throttles repeated scans.
	MinProcessInterval time.Duration
	// Descriptors maps file extensions (with leading dot) to behavior
	// descriptors. Only files with a registered extension are scanned.
	Descriptors map[string]*descriptor.Descriptor
	// CompileCacheSize bounds the shared compile cache; 0 uses a default.
	CompileCacheSize int

	Logger logging.Logger
}

// Pipeline owns the manifest and drives processing cycles.
type Pipeline struct {
	roots       []string
	hosts       []string
	prefix      string
	pristine    map[string]bool
	entries     *Matcher
	minify      bool
	minified    *Matcher
	minInterval time.Duration
	descriptors map[string]*descriptor.Descriptor
	cache       *asset.CompileCache
	log         logging.Logger

	generation atomic.Uint64
	hostIdx    atomic.Uint64

	// scanMu is the single-flight lock around the scan body.
	scanMu sync.Mutex
	// stateMu guards manifest, lookup tables, errors, and the throttle
	// timestamp. It is never held while an asset is processing.
	stateMu  sync.RWMutex
	lastScan time.Time
	manifest map[string]*asset.Asset
	order    []string
	// rootOf records which root contributed each path, for duplicate
	// diagnostics.
	rootOf      map[string]string
	unversioned map[string]*asset.Asset
	versioned   map[string]*asset.Asset
	errs        []error
}

// New creates a pipeline. At least one root and one descriptor are
// required.
func New(opts Options) (*Pipeline, error) {
	if len(opts.Roots) == 0 {
		return nil, fmt.Errorf("pipeline: at least one root directory is required")
	}
	if len(opts.Descriptors) == 0 {
		return nil, fmt.Errorf("pipeline: at least one descriptor is required")
	}

	entries, err := NewMatcher(opts.Entries)
	if err != nil {
		return nil, err
	}
	minified, err := NewMatcher(opts.MinifiedPatterns)
	if err != nil {
		return nil, err
	}

	cacheSize := opts.CompileCacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := asset.NewCompileCache(cacheSize)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	pristine := make(map[string]bool, len(DefaultPristine)+len(opts.Pristine))
	for _, p := range DefaultPristine {
		pristine[p] = true
	}
	for _, p := range opts.Pristine {
		pristine[p] = true
	}

	return &Pipeline{
		roots:       append([]string(nil), opts.Roots...),
		hosts:       append([]string(nil), opts.Hosts...),
		prefix:      opts.Prefix,
		pristine:    pristine,
		entries:     entries,
		minify:      opts.Minify,
		minified:    minified,
		minInterval: opts.MinProcessInterval,
		descriptors: opts.Descriptors,
		cache:       cache,
		log:         logger.WithComponent("pipeline"),
		manifest:    make(map[string]*asset.Asset),
		rootOf:      make(map[string]string),
		unversioned: make(map[string]*asset.Asset),
		versioned:   make(map[string]*asset.Asset),
	}, nil
}

// LookupAsset implements asset.Resolver.
func (p *Pipeline) LookupAsset(path string) (*asset.Asset, bool) {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()

	a, ok := p.manifest[path]
	return a, ok
}

// GenerationKey implements asset.Resolver.
func (p *Pipeline) GenerationKey() uint64 {
	return p.generation.Load()
}

// Process runs one scan-and-reprocess cycle. It returns false without
// scanning when less than the minimum interval elapsed since the last
// completed run, or when another invocation is in flight — in the latter
// case the call blocks until the in-flight run finishes and still reports
// false (no new scan was performed on its behalf). The error is non-nil
// only for fatal conditions (a missing required library at asset
// construction).
func (p *Pipeline) Process() (bool, error) {
	p.stateMu.RLock()
	last := p.lastScan
	p.stateMu.RUnlock()
	if p.minInterval > 0 && !last.IsZero() && time.Since(last) < p.minInterval {
		return false, nil
	}

	if !p.scanMu.TryLock() {
		// Bursts of concurrent calls collapse to the one in-flight scan.
		p.scanMu.Lock()
		p.scanMu.Unlock() //nolint:staticcheck // wait-then-release is the contract
		return false, nil
	}
	defer p.scanMu.Unlock()

	if err := p.scan(); err != nil {
		return false, err
	}

	p.stateMu.Lock()
	p.lastScan = time.Now()
	p.stateMu.Unlock()

	return true, nil
}

// ProcessStrict calls Process and returns the scan's aggregate errors as a
// ProcessingError when a new scan actually ran and left errors. A
// throttled or single-flight-skipped call never errors.
func (p *Pipeline) ProcessStrict() (bool, error) {
	ran, err := p.Process()
	if err != nil || !ran {
		return ran, err
	}

	errs := p.Errors()
	if len(errs) > 0 {
		return true, &apperrors.ProcessingError{Errors: errs}
	}

	return true, nil
}

// scan is the body of one processing cycle; the caller holds scanMu.
func (p *Pipeline) scan() error {
	ctx := context.Background()
	gen := p.generation.Add(1)
	started := time.Now()

	var errs []error
	found := make(map[string]string) // external path -> contributing root

	for _, root := range p.roots {
		walkErr := filepath.WalkDir(root, func(file string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			desc, ok := p.descriptors[filepath.Ext(file)]
			if !ok {
				return nil
			}

			rel, err := filepath.Rel(root, file)
			if err != nil {
				return err
			}
			path := "/" + filepath.ToSlash(rel)

			if strings.ContainsAny(path, invalidPathChars) {
				errs = append(errs, apperrors.ErrInvalidPath(path))
				return nil
			}

			if firstRoot, dup := found[path]; dup {
				// First-seen root wins.
				errs = append(errs, apperrors.ErrDuplicateAsset(path, firstRoot, root))
				return nil
			}
			found[path] = root

			return p.register(path, file, root, desc)
		})
		if walkErr != nil {
			if pe, ok := walkErr.(*apperrors.PipelineError); ok {
				return pe // fatal: missing library
			}
			errs = append(errs, walkErr)
		}
	}

	p.prune(found)

	// Process every asset sequentially, in manifest order, without holding
	// stateMu: assets call back into LookupAsset during resolution.
	p.stateMu.RLock()
	order := append([]string(nil), p.order...)
	p.stateMu.RUnlock()

	for _, path := range order {
		a, ok := p.LookupAsset(path)
		if !ok {
			continue
		}
		a.Process()
		if assetErrs := a.Errors(); len(assetErrs) > 0 {
			errs = append(errs, assetErrs...)
			p.log.Warn(ctx, assetErrs[0], "asset processed with errors",
				"path", path, "errors", len(assetErrs))
		}
	}

	p.publish(errs)

	p.log.Info(ctx, "scan complete",
		"generation", gen,
		"assets", len(found),
		"errors", len(errs),
		"duration", time.Since(started))

	return nil
}

// register creates an asset for a genuinely new path; previously-seen
// paths keep their existing asset and its caches as long as the backing
// file is unchanged. A path that migrated to a different file (another
// root) gets a fresh asset bound to the new location.
func (p *Pipeline) register(path, file, root string, desc *descriptor.Descriptor) error {
	p.stateMu.RLock()
	existing, exists := p.manifest[path]
	p.stateMu.RUnlock()
	if exists && existing.File() == file {
		return nil
	}

	entry := p.entryPoint(path)
	prefix := p.prefix
	if p.pristine[path] {
		prefix = ""
	}
	minify := p.minify && entry && !p.minified.Match(path)

	a, err := asset.New(asset.Config{
		Path:       path,
		File:       file,
		Descriptor: desc,
		Resolver:   p,
		Prefix:     prefix,
		Entry:      entry,
		Minify:     minify,
		Cache:      p.cache,
		Logger:     p.log,
	})
	if err != nil {
		return err
	}

	p.stateMu.Lock()
	if !exists {
		p.order = append(p.order, path)
	}
	p.manifest[path] = a
	p.rootOf[path] = root
	p.stateMu.Unlock()

	return nil
}

func (p *Pipeline) entryPoint(path string) bool {
	if p.pristine[path] {
		return true
	}
	if p.entries == nil {
		return true // default: everything is an entry point
	}

	return p.entries.Match(path)
}

// prune drops manifest entries whose backing file was not seen this scan.
func (p *Pipeline) prune(found map[string]string) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	kept := p.order[:0]
	for _, path := range p.order {
		if _, ok := found[path]; ok {
			kept = append(kept, path)
			continue
		}
		delete(p.manifest, path)
		delete(p.rootOf, path)
	}
	p.order = kept
}

// publish stores the scan's aggregate errors and rebuilds the lookup
// tables for entry-point assets.
func (p *Pipeline) publish(errs []error) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	p.errs = errs
	p.unversioned = make(map[string]*asset.Asset, len(p.order))
	p.versioned = make(map[string]*asset.Asset, len(p.order))

	for _, path := range p.order {
		a := p.manifest[path]
		if !a.Entry() {
			continue
		}
		p.unversioned[a.PathUnversioned()] = a
		if p.pristine[path] {
			// Pristine paths answer only to their unversioned form.
			continue
		}
		p.versioned[a.PathVersioned()] = a
	}
}

// Asset looks up an entry-point asset by either its versioned or
// unversioned external path.
func (p *Pipeline) Asset(path string) (*asset.Asset, bool) {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()

	if a, ok := p.unversioned[path]; ok {
		return a, true
	}
	a, ok := p.versioned[path]

	return a, ok
}

// PathOptions controls AssetPath.
type PathOptions struct {
	// Unversioned requests the unversioned path form.
	Unversioned bool
	// Hosts is an optional per-caller round-robin cursor; nil falls back
	// to a pipeline-wide counter.
	Hosts *HostCursor
}

// AssetPath returns the external path for a canonical manifest path,
// optionally prefixed by one of the configured hosts.
func (p *Pipeline) AssetPath(path string, opts PathOptions) (string, error) {
	a, err := p.Manifest(path)
	if err != nil {
		return "", err
	}

	var external string
	if opts.Unversioned || p.isPristine(path) {
		external = a.PathUnversioned()
	} else {
		external = a.PathVersioned()
	}

	return p.nextHost(opts.Hosts) + external, nil
}

// AssetIntegrity returns the integrity string for a canonical manifest
// path. An empty algorithm defaults to sha384.
func (p *Pipeline) AssetIntegrity(path, algorithm string) (string, error) {
	a, err := p.Manifest(path)
	if err != nil {
		return "", err
	}
	if algorithm == "" {
		algorithm = "sha384"
	}

	return a.Integrity(algorithm), nil
}

// Manifest looks up the asset registered under a canonical (internal)
// path. It returns UnrecognizedExtension when no descriptor covers the
// path's extension, AssetNotFound otherwise.
func (p *Pipeline) Manifest(path string) (*asset.Asset, error) {
	p.stateMu.RLock()
	a, ok := p.manifest[path]
	p.stateMu.RUnlock()

	if !ok {
		if _, known := p.descriptors[filepath.Ext(path)]; !known {
			return nil, apperrors.ErrUnrecognizedExtension(path)
		}
		return nil, apperrors.ErrAssetNotFound(path, "")
	}

	return a, nil
}

func (p *Pipeline) isPristine(path string) bool {
	return p.pristine[path]
}

// Errors returns the aggregate error list from the most recent scan.
func (p *Pipeline) Errors() []error {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()

	return append([]error(nil), p.errs...)
}

// Paths returns the manifest's canonical paths in insertion order.
func (p *Pipeline) Paths() []string {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()

	return append([]string(nil), p.order...)
}
