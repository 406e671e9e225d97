package sieve

import (
	"fmt"
	"sort"
)

// Registry maps extension names to their tables and object names to
// objects. It is populated at startup and only read afterwards, so it can
// be shared between concurrent compilations and runs.
type Registry struct {
	extensions map[string]*Extension
}

// NewRegistry returns a registry holding the core objects and the given
// extensions.
func NewRegistry(exts ...*Extension) (*Registry, error) {
	r := &Registry{extensions: make(map[string]*Extension)}
	for _, ext := range exts {
		if err := r.Register(ext); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an extension. Registering two extensions with the same
// name is an error.
func (r *Registry) Register(ext *Extension) error {
	if ext == nil || ext.Name == "" {
		return fmt.Errorf("extension without name")
	}
	if _, ok := r.extensions[ext.Name]; ok {
		return fmt.Errorf("extension %s already registered", ext.Name)
	}
	if err := ext.validate(); err != nil {
		return err
	}
	r.extensions[ext.Name] = ext
	return nil
}

// Extension returns the named extension.
func (r *Registry) Extension(name string) (*Extension, bool) {
	ext, ok := r.extensions[name]
	return ext, ok
}

// Extensions returns the registered extension names in sorted order.
func (r *Registry) Extensions() []string {
	names := make([]string, 0, len(r.extensions))
	for name := range r.extensions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Comparator looks up a comparator by name, core comparators first.
func (r *Registry) Comparator(name string) (Comparator, bool) {
	return findObject(name, coreComparators, r.extensions, func(e *Extension) []Comparator { return e.Comparators })
}

// MatchType looks up a match type by name, core match types first.
func (r *Registry) MatchType(name string) (MatchType, bool) {
	return findObject(name, coreMatchTypes, r.extensions, func(e *Extension) []MatchType { return e.MatchTypes })
}

// AddressPart looks up an address part by name, core parts first.
func (r *Registry) AddressPart(name string) (AddressPart, bool) {
	return findObject(name, coreAddressParts, r.extensions, func(e *Extension) []AddressPart { return e.AddressParts })
}

func findObject[T Object](name string, core []T, exts map[string]*Extension, table func(*Extension) []T) (T, bool) {
	for _, o := range core {
		if any(o) != nil && o.Identifier() == name {
			return o, true
		}
	}
	for _, ext := range exts {
		for _, o := range table(ext) {
			if o.Identifier() == name {
				return o, true
			}
		}
	}
	var zero T
	return zero, false
}
