// Package library is the named-library registry backing descriptor hook
// requirements. Descriptor packages register the tooling they bring
// (compilers, minifiers) under a name; asset construction resolves those
// names once and fails fatally when one is absent.
package library

import (
	"sync"

	apperrors "github.com/conneroisu/assetpipe/internal/errors"
)

var (
	mu   sync.RWMutex
	libs = make(map[string]interface{})
)

// Register makes a library available under name. Registering the same name
// twice replaces the previous entry.
func Register(name string, lib interface{}) {
	mu.Lock()
	defer mu.Unlock()
	libs[name] = lib
}

// Load resolves a library by name. A miss returns a fatal MissingLibrary
// error; callers must not degrade it to a soft per-asset error.
func Load(name string) (interface{}, error) {
	mu.RLock()
	defer mu.RUnlock()

	lib, ok := libs[name]
	if !ok {
		return nil, apperrors.ErrMissingLibrary(name)
	}

	return lib, nil
}

// Available reports whether a library is registered.
func Available(name string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, ok := libs[name]
	return ok
}
