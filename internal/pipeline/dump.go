package pipeline

import (
	"os"
	"path/filepath"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
)

// DumpOptions controls Dump.
type DumpOptions struct {
	// Clear empties the target directory before writing.
	Clear bool
	// SkipPristine excludes pristine-marked entry points from the dump.
	SkipPristine bool
}

// Dump writes every entry-point asset's final content under dir, using the
// versioned path, or the unversioned path for pristine assets. It refuses
// to run while the last scan holds errors: stale output must never be
// published.
func (p *Pipeline) Dump(dir string, opts DumpOptions) error {
	if errs := p.Errors(); len(errs) > 0 {
		return apperrors.ErrDirtyDump(len(errs))
	}

	if opts.Clear {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		for _, entry := range entries {
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				return err
			}
		}
	}

	for _, path := range p.Paths() {
		a, ok := p.LookupAsset(path)
		if !ok || !a.Entry() {
			continue
		}

		external := a.PathVersioned()
		if p.isPristine(path) {
			if opts.SkipPristine {
				continue
			}
			external = a.PathUnversioned()
		}

		target := filepath.Join(dir, filepath.FromSlash(external))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(a.FinalContent()), 0o644); err != nil {
			return err
		}
	}

	return nil
}
