// Package optional resolves packages that a build may or may not carry.
//
// Go links everything at build time, so "installed" means "registered": a
// package that can be left out of a build registers a Factory from an init
// function (the database/sql driver pattern), usually in a file guarded by a
// build tag. Callers probe for it at startup and decide what a missing
// package means for them.
package optional

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Module is whatever a registered package hands back when it is resolved.
type Module any

// Factory resolves a registered package into its Module.
type Factory func() (Module, error)

// Status is the outcome of probing a package
type Status int

const (
	// Available means the package resolved into a Module
	Available Status = iota

	// Unavailable means the package is not part of this build
	Unavailable

	// Faulted means the package is present but failed to resolve
	Faulted
)

// String implements fmt.Stringer
func (s Status) String() string {
	switch s {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrNotInstalled is matched by every NotInstalledError
var ErrNotInstalled = errors.New("package not installed")

// NotInstalledError reports that a package is missing from the build.
// Package names the missing package, which is not necessarily the one that
// was requested: a factory may fail because one of its own dependencies is
// missing, and that is a broken install rather than an absent package.
type NotInstalledError struct {
	Package string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotInstalled.Error(), e.Package)
}

// Is makes errors.Is(err, ErrNotInstalled) hold
func (e *NotInstalledError) Is(target error) bool {
	return target == ErrNotInstalled
}

// Probe is the full result of resolving a package
type Probe struct {
	ID     string
	Status Status
	Module Module
	Err    error
}

// Loader is a registry of optional packages
type Loader struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewLoader creates an empty loader
func NewLoader() *Loader {
	return &Loader{
		factories: make(map[string]Factory),
	}
}

// Register makes a package resolvable under id. Registering the same id
// twice replaces the earlier factory.
func (l *Loader) Register(id string, factory Factory) {
	if factory == nil {
		panic("optional: Register factory is nil for " + id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[id] = factory
}

// Probe resolves id and classifies the outcome
func (l *Loader) Probe(id string) Probe {
	l.mu.RLock()
	factory, ok := l.factories[id]
	l.mu.RUnlock()

	if !ok {
		return Probe{ID: id, Status: Unavailable}
	}

	module, err := factory()
	if err != nil {
		var notInstalled *NotInstalledError
		if errors.As(err, &notInstalled) && notInstalled.Package == id {
			return Probe{ID: id, Status: Unavailable, Err: err}
		}
		return Probe{ID: id, Status: Faulted, Err: err}
	}
	if module == nil {
		return Probe{ID: id, Status: Unavailable}
	}

	return Probe{ID: id, Status: Available, Module: module}
}

// Load returns the resolved Module for id, or nil with a nil error when the
// package is not part of this build. Every other failure is returned as is.
func (l *Loader) Load(id string) (Module, error) {
	p := l.Probe(id)
	switch p.Status {
	case Available:
		return p.Module, nil
	case Unavailable:
		return nil, nil
	default:
		return nil, p.Err
	}
}

// IDs lists the registered package ids in sorted order
func (l *Loader) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.factories))
	for id := range l.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Default is the loader packages register into from their init functions
var Default = NewLoader()

// Register registers a factory with the Default loader
func Register(id string, factory Factory) {
	Default.Register(id, factory)
}

// Load resolves id through the Default loader
func Load(id string) (Module, error) {
	return Default.Load(id)
}
