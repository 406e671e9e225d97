package sieve

import (
	"fmt"
	"strings"
)

// Core operand tags.
const (
	OperandOptional    = 0
	OperandNumber      = 1
	OperandString      = 2
	OperandStringList  = 3
	OperandComparator  = 4
	OperandMatchType   = 5
	OperandAddressPart = 6
)

// OperandClass tells which reader interface an operand implements.
type OperandClass int

const (
	ClassNumber OperandClass = iota + 1
	ClassString
	ClassStringList
	ClassComparator
	ClassMatchType
	ClassAddressPart
	ClassCustom
)

func (c OperandClass) String() string {
	switch c {
	case ClassNumber:
		return "number"
	case ClassString:
		return "string"
	case ClassStringList:
		return "string-list"
	case ClassComparator:
		return "comparator"
	case ClassMatchType:
		return "match-type"
	case ClassAddressPart:
		return "address-part"
	default:
		return "custom"
	}
}

// Operand is an operand kind. The tag identifying it has already been
// consumed when Dump is called; Dump renders the payload and advances the
// cursor past it.
type Operand interface {
	Object
	Class() OperandClass
	Dump(d *Dumper, addr *Address, field string) error
}

// NumberOperand is an operand kind that decodes to a number.
type NumberOperand interface {
	Operand
	ReadNumber(p *Program, addr *Address) (uint64, error)
}

// StringOperand is an operand kind that decodes to a string.
type StringOperand interface {
	Operand
	ReadString(p *Program, addr *Address) (string, error)
}

// StringListOperand is an operand kind that decodes to a string list.
type StringListOperand interface {
	Operand
	ReadStringList(p *Program, addr *Address) (*StringList, error)
}

// Core operand kinds, shared by the generator and the readers.
var (
	numberOperand      = &numberOpr{coreDef("number", OperandNumber)}
	stringOperand      = &stringOpr{coreDef("string", OperandString)}
	stringListOperand  = &stringListOpr{coreDef("string-list", OperandStringList)}
	comparatorOperand  = &objectOpr{coreDef("comparator", OperandComparator), ClassComparator}
	matchTypeOperand   = &objectOpr{coreDef("match-type", OperandMatchType), ClassMatchType}
	addressPartOperand = &objectOpr{coreDef("address-part", OperandAddressPart), ClassAddressPart}
)

// coreOperands maps core operand tags to their kinds. Tag 0 is the
// optional-block marker and has no kind.
var coreOperands = []Operand{
	nil,
	numberOperand,
	stringOperand,
	stringListOperand,
	comparatorOperand,
	matchTypeOperand,
	addressPartOperand,
}

type numberOpr struct{ ObjectDef }

func (o *numberOpr) Class() OperandClass { return ClassNumber }

func (o *numberOpr) ReadNumber(p *Program, addr *Address) (uint64, error) {
	return p.bin.ReadInteger(addr)
}

func (o *numberOpr) Dump(d *Dumper, addr *Address, field string) error {
	start := *addr
	n, err := o.ReadNumber(d.program, addr)
	if err != nil {
		return err
	}
	d.Line(start, "%sNUM: %d", fieldPrefix(field), n)
	return nil
}

type stringOpr struct{ ObjectDef }

func (o *stringOpr) Class() OperandClass { return ClassString }

func (o *stringOpr) ReadString(p *Program, addr *Address) (string, error) {
	return p.bin.ReadString(addr)
}

func (o *stringOpr) Dump(d *Dumper, addr *Address, field string) error {
	start := *addr
	s, err := o.ReadString(d.program, addr)
	if err != nil {
		return err
	}
	d.Line(start, "%s%s", fieldPrefix(field), dumpString(s))
	return nil
}

type stringListOpr struct{ ObjectDef }

func (o *stringListOpr) Class() OperandClass { return ClassStringList }

func (o *stringListOpr) ReadStringList(p *Program, addr *Address) (*StringList, error) {
	return readStringList(p, addr)
}

func (o *stringListOpr) Dump(d *Dumper, addr *Address, field string) error {
	start := *addr
	end, err := d.program.bin.ReadOffsetTarget(addr)
	if err != nil {
		return err
	}
	count, err := d.program.bin.ReadInt(addr)
	if err != nil {
		return err
	}
	if end < *addr || count > int(end-*addr) {
		return corruptf("string list at %08x claims %d items ending at %08x", int(start), count, int(end))
	}
	d.Line(start, "%sSTRLIST [%d] (END %08x)", fieldPrefix(field), count, int(end))

	d.Descend()
	defer d.Ascend()
	for i := 0; i < count; i++ {
		itemAddr := *addr
		s, err := d.program.bin.ReadString(addr)
		if err != nil {
			return err
		}
		d.Line(itemAddr, "%s", dumpString(s))
	}
	if *addr != end {
		return corruptf("string list end %08x does not match contents ending at %08x", int(end), int(*addr))
	}
	return nil
}

// objectOpr is the operand kind wrapping a comparator, match type or
// address part reference.
type objectOpr struct {
	ObjectDef
	class OperandClass
}

func (o *objectOpr) Class() OperandClass { return o.class }

func (o *objectOpr) Dump(d *Dumper, addr *Address, field string) error {
	start := *addr
	ext, code, err := d.program.readObjectCode(addr)
	if err != nil {
		return err
	}
	obj, err := d.program.classObject(o.class, ext, code)
	if err != nil {
		return err
	}
	d.Line(start, "%s%s: %s", fieldPrefix(field), o.class, obj.Identifier())
	return nil
}

func fieldPrefix(field string) string {
	if field == "" {
		return ""
	}
	return field + ": "
}

const maxDumpString = 80

// dumpString renders a string for dumps, cut at 80 bytes, with control
// characters replaced.
func dumpString(s string) string {
	n := len(s)
	suffix := ""
	if len(s) > maxDumpString {
		s = s[:maxDumpString]
		suffix = "..."
	}
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '?'
		}
		return r
	}, s)
	return fmt.Sprintf("STR[%d]: \"%s%s\"", n, s, suffix)
}
