package sieve

import (
	"fmt"

	"github.com/migadu/svbin/binary"
)

// Program is a sealed, read-only compiled script bound to the extension
// tables of the running system. One Program may be run and dumped by any
// number of goroutines at once.
type Program struct {
	bin  *binary.Binary
	exts []*Extension
}

// NewProgram binds bin to the extensions known to reg. Extensions the
// registry does not know are not an error here; decoding fails only when
// an instruction actually refers to one.
func NewProgram(bin *binary.Binary, reg *Registry) *Program {
	names := bin.Extensions()
	p := &Program{
		bin:  bin,
		exts: make([]*Extension, len(names)),
	}
	for i, name := range names {
		if ext, ok := reg.Extension(name); ok {
			p.exts[i] = ext
		}
	}
	return p
}

// Binary returns the underlying code buffer.
func (p *Program) Binary() *binary.Binary {
	return p.bin
}

// Len returns the code size.
func (p *Program) Len() Address {
	return p.bin.Len()
}

// Missing returns the names of referenced extensions that are not
// available.
func (p *Program) Missing() []string {
	var missing []string
	for i, ext := range p.exts {
		if ext == nil {
			name, _ := p.bin.Extension(i)
			missing = append(missing, name)
		}
	}
	return missing
}

func (p *Program) extension(index int) (*Extension, error) {
	if index < 0 || index >= len(p.exts) {
		return nil, fmt.Errorf("%w: index %d not in program", ErrUnknownExtension, index)
	}
	if p.exts[index] == nil {
		name, _ := p.bin.Extension(index)
		return nil, fmt.Errorf("%w: %s", ErrUnknownExtension, name)
	}
	return p.exts[index], nil
}

// readObjectCode reads a core code or an extension reference. A nil
// extension means the code is a core code.
func (p *Program) readObjectCode(addr *Address) (*Extension, int, error) {
	b, err := p.bin.ReadUint8(addr)
	if err != nil {
		return nil, 0, err
	}
	if b != ExtensionMarker {
		return nil, int(b), nil
	}
	idx, err := p.bin.ReadInt(addr)
	if err != nil {
		return nil, 0, err
	}
	code, err := p.bin.ReadInt(addr)
	if err != nil {
		return nil, 0, err
	}
	ext, err := p.extension(idx)
	if err != nil {
		return nil, 0, err
	}
	return ext, code, nil
}

// ReadOperation decodes the instruction code at *addr.
func (p *Program) ReadOperation(addr *Address) (Operation, error) {
	ext, code, err := p.readObjectCode(addr)
	if err != nil {
		return nil, err
	}
	var table []Operation
	if ext != nil {
		table = ext.Operations
	}
	return lookupObject("operation", coreOperations, ext, table, code)
}

// ReadOperand decodes an operand tag at *addr. The optional marker yields
// a nil Operand.
func (p *Program) ReadOperand(addr *Address) (Operand, error) {
	ext, code, err := p.readObjectCode(addr)
	if err != nil {
		return nil, err
	}
	if ext == nil && code == OperandOptional {
		return nil, nil
	}
	var table []Operand
	if ext != nil {
		table = ext.Operands
	}
	return lookupObject("operand", coreOperands, ext, table, code)
}

// ReadNumber reads a number operand.
func (p *Program) ReadNumber(addr *Address) (uint64, error) {
	opr, err := p.ReadOperand(addr)
	if err != nil {
		return 0, err
	}
	n, ok := opr.(NumberOperand)
	if !ok {
		return 0, corruptf("expected number operand, found %s", operandName(opr))
	}
	return n.ReadNumber(p, addr)
}

// ReadString reads a string operand.
func (p *Program) ReadString(addr *Address) (string, error) {
	opr, err := p.ReadOperand(addr)
	if err != nil {
		return "", err
	}
	s, ok := opr.(StringOperand)
	if !ok {
		return "", corruptf("expected string operand, found %s", operandName(opr))
	}
	return s.ReadString(p, addr)
}

// ReadStringList reads a string-list operand. A lone string operand is
// accepted as a list of one.
func (p *Program) ReadStringList(addr *Address) (*StringList, error) {
	opr, err := p.ReadOperand(addr)
	if err != nil {
		return nil, err
	}
	switch o := opr.(type) {
	case StringListOperand:
		return o.ReadStringList(p, addr)
	case StringOperand:
		s, err := o.ReadString(p, addr)
		if err != nil {
			return nil, err
		}
		return NewStringList(s), nil
	default:
		return nil, corruptf("expected string-list operand, found %s", operandName(opr))
	}
}

// ReadComparator reads a comparator operand.
func (p *Program) ReadComparator(addr *Address) (Comparator, error) {
	obj, err := p.readObjectOperand(addr, OperandComparator, ClassComparator)
	if err != nil {
		return nil, err
	}
	return obj.(Comparator), nil
}

// ReadMatchType reads a match-type operand.
func (p *Program) ReadMatchType(addr *Address) (MatchType, error) {
	obj, err := p.readObjectOperand(addr, OperandMatchType, ClassMatchType)
	if err != nil {
		return nil, err
	}
	return obj.(MatchType), nil
}

// ReadAddressPart reads an address-part operand.
func (p *Program) ReadAddressPart(addr *Address) (AddressPart, error) {
	obj, err := p.readObjectOperand(addr, OperandAddressPart, ClassAddressPart)
	if err != nil {
		return nil, err
	}
	return obj.(AddressPart), nil
}

// classObject resolves an object code of the given operand class.
func (p *Program) classObject(class OperandClass, ext *Extension, code int) (Object, error) {
	switch class {
	case ClassComparator:
		var table []Comparator
		if ext != nil {
			table = ext.Comparators
		}
		return lookupObject("comparator", coreComparators, ext, table, code)
	case ClassMatchType:
		var table []MatchType
		if ext != nil {
			table = ext.MatchTypes
		}
		return lookupObject("match type", coreMatchTypes, ext, table, code)
	case ClassAddressPart:
		var table []AddressPart
		if ext != nil {
			table = ext.AddressParts
		}
		return lookupObject("address part", coreAddressParts, ext, table, code)
	}
	return nil, corruptf("operand class %s has no objects", class)
}

// readObjectOperand reads the operand tag, which must be the core tag of
// the expected object class, followed by the object's code.
func (p *Program) readObjectOperand(addr *Address, tag int, class OperandClass) (Object, error) {
	opr, err := p.ReadOperand(addr)
	if err != nil {
		return nil, err
	}
	if opr == nil || opr.Extension() != nil || opr.Code() != tag {
		return nil, corruptf("expected %s operand, found %s", class, operandName(opr))
	}
	ext, code, err := p.readObjectCode(addr)
	if err != nil {
		return nil, err
	}
	return p.classObject(class, ext, code)
}

func operandName(opr Operand) string {
	if opr == nil {
		return "optional marker"
	}
	return opr.Identifier()
}
