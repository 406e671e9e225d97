// Package sieve implements the extensible bytecode used to run compiled
// Sieve scripts.
//
// Every instruction, operand kind, comparator, match type and address part
// is an Object. Core objects have a fixed one-byte code; objects contributed
// by an extension are encoded as the extension marker followed by the
// program-local extension index and the object's code within that
// extension. Adding an extension therefore never changes how existing
// bytes decode.
//
// The same decoding path serves the interpreter (Runtime) and the
// disassembler (Dumper), so both always agree on instruction sizes.
package sieve

import (
	"fmt"

	"github.com/migadu/svbin/binary"
)

// Address is a position in program code.
type Address = binary.Address

// ExtensionMarker introduces a two-level (extension index, local code)
// object reference in place of a core code.
const ExtensionMarker = 0xFF

// Object is anything that can be referenced from bytecode.
type Object interface {
	// Identifier is the object's name, as used in scripts and dumps.
	Identifier() string
	// Extension is the owning extension, or nil for core objects.
	Extension() *Extension
	// Code is the core code, or the code local to the owning extension.
	Code() int
}

// ObjectDef carries the identity of an Object and is meant to be embedded.
type ObjectDef struct {
	Name string
	Ext  *Extension
	ID   int
}

func (o ObjectDef) Identifier() string    { return o.Name }
func (o ObjectDef) Extension() *Extension { return o.Ext }
func (o ObjectDef) Code() int             { return o.ID }

func coreDef(name string, code int) ObjectDef {
	return ObjectDef{Name: name, ID: code}
}

// Extension groups the objects an extension contributes. Each table is
// indexed by the objects' local codes.
type Extension struct {
	Name         string
	Operations   []Operation
	Operands     []Operand
	Comparators  []Comparator
	MatchTypes   []MatchType
	AddressParts []AddressPart
}

// NewExtension returns an empty extension with the given name.
func NewExtension(name string) *Extension {
	return &Extension{Name: name}
}

// Def returns the identity for an object with the given local code in e.
func (e *Extension) Def(name string, code int) ObjectDef {
	return ObjectDef{Name: name, Ext: e, ID: code}
}

func (e *Extension) String() string {
	return e.Name
}

// validate checks that every object sits at the index matching its code and
// points back to e.
func (e *Extension) validate() error {
	check := func(kind string, i int, o Object) error {
		if o == nil {
			return fmt.Errorf("extension %s: %s %d is nil", e.Name, kind, i)
		}
		if o.Extension() != e {
			return fmt.Errorf("extension %s: %s %q belongs to another extension", e.Name, kind, o.Identifier())
		}
		if o.Code() != i {
			return fmt.Errorf("extension %s: %s %q has code %d at index %d", e.Name, kind, o.Identifier(), o.Code(), i)
		}
		return nil
	}
	for i, o := range e.Operations {
		if err := check("operation", i, o); err != nil {
			return err
		}
	}
	for i, o := range e.Operands {
		if err := check("operand", i, o); err != nil {
			return err
		}
	}
	for i, o := range e.Comparators {
		if err := check("comparator", i, o); err != nil {
			return err
		}
	}
	for i, o := range e.MatchTypes {
		if err := check("match type", i, o); err != nil {
			return err
		}
	}
	for i, o := range e.AddressParts {
		if err := check("address part", i, o); err != nil {
			return err
		}
	}
	return nil
}

// lookupObject resolves a code against a core table or an extension table.
func lookupObject[T Object](kind string, core []T, ext *Extension, table []T, code int) (T, error) {
	var zero T
	if ext == nil {
		if code <= 0 || code >= len(core) || any(core[code]) == nil {
			return zero, corruptf("invalid core %s code %d", kind, code)
		}
		return core[code], nil
	}
	if code < 0 || code >= len(table) {
		return zero, corruptf("invalid %s code %d for extension %s", kind, code, ext.Name)
	}
	return table[code], nil
}
