package sieve

import (
	"fmt"
	"io"
	"strings"
)

// Dumper renders a Program as text. It decodes instructions exactly as the
// Runtime does, so a successful dump proves every instruction has the size
// the interpreter expects.
type Dumper struct {
	program *Program
	w       io.Writer
	indent  int
}

// NewDumper returns a dumper writing p to w.
func NewDumper(p *Program, w io.Writer) *Dumper {
	return &Dumper{program: p, w: w}
}

// Program returns the program being dumped.
func (d *Dumper) Program() *Program {
	return d.program
}

// Line writes one line for the item at addr at the current indentation.
func (d *Dumper) Line(addr Address, format string, args ...any) {
	fmt.Fprintf(d.w, "%08x: %s", int(addr), strings.Repeat("  ", d.indent))
	fmt.Fprintf(d.w, format, args...)
	fmt.Fprintln(d.w)
}

// Descend indents the lines that follow.
func (d *Dumper) Descend() { d.indent++ }

// Ascend undoes one Descend.
func (d *Dumper) Ascend() {
	if d.indent > 0 {
		d.indent--
	}
}

// Dump writes the extension table and every instruction. It stops at the
// first instruction that cannot be decoded, reporting it in the output and
// returning the error.
func (d *Dumper) Dump() error {
	exts := d.program.bin.Extensions()
	fmt.Fprintf(d.w, "Extensions: %d\n", len(exts))
	for i, name := range exts {
		status := ""
		if d.program.exts[i] == nil {
			status = " (unavailable)"
		}
		fmt.Fprintf(d.w, "  %d: %s%s\n", i, name, status)
	}
	fmt.Fprintf(d.w, "Code: %d bytes\n", int(d.program.Len()))

	addr := Address(0)
	for addr < d.program.Len() {
		if err := d.DumpOperation(&addr); err != nil {
			return err
		}
	}
	return nil
}

// DumpOperation dumps the instruction at *addr and advances past it.
func (d *Dumper) DumpOperation(addr *Address) error {
	start := *addr
	d.indent = 0
	op, err := d.program.ReadOperation(addr)
	if err != nil {
		d.Line(start, "[ERROR: %v]", err)
		return &DecodeError{Address: start, Err: err}
	}
	d.Line(start, "%s", op.Identifier())

	d.Descend()
	err = op.Dump(d, addr)
	d.indent = 0
	if err != nil {
		d.Line(*addr, "[ERROR: %v]", err)
		return &DecodeError{Address: start, Op: op.Identifier(), Err: err}
	}
	return nil
}

// DumpOperand dumps one operand of the given class, prefixed with field
// when it is not empty. It accepts the same operands the Program readers
// do: a string in a string-list slot, and only the core tag for object
// classes.
func (d *Dumper) DumpOperand(addr *Address, field string, class OperandClass) error {
	start := *addr
	opr, err := d.program.ReadOperand(addr)
	if err != nil {
		return err
	}
	if opr == nil {
		return corruptf("unexpected optional marker at %08x", int(start))
	}
	if !operandFits(opr, class) {
		return corruptf("expected %s operand at %08x, found %s", class, int(start), opr.Identifier())
	}
	return opr.Dump(d, addr, field)
}

// operandFits reports whether opr may appear where class is expected.
func operandFits(opr Operand, class OperandClass) bool {
	switch class {
	case ClassNumber:
		_, ok := opr.(NumberOperand)
		return ok
	case ClassString:
		_, ok := opr.(StringOperand)
		return ok
	case ClassStringList:
		switch opr.(type) {
		case StringListOperand, StringOperand:
			return true
		}
		return false
	case ClassComparator:
		return opr.Extension() == nil && opr.Code() == OperandComparator
	case ClassMatchType:
		return opr.Extension() == nil && opr.Code() == OperandMatchType
	case ClassAddressPart:
		return opr.Extension() == nil && opr.Code() == OperandAddressPart
	}
	return opr.Class() == class
}

// DumpSourceLine dumps the raw source line that follows a test opcode.
func (d *Dumper) DumpSourceLine(addr *Address) error {
	start := *addr
	line, err := d.program.bin.ReadInt(addr)
	if err != nil {
		return err
	}
	d.Line(start, "(source line: %d)", line)
	return nil
}

// DumpJump dumps a jump offset as its relative value and absolute target.
func (d *Dumper) DumpJump(addr *Address) error {
	start := *addr
	off, err := d.program.bin.ReadOffset(addr)
	if err != nil {
		return err
	}
	target := int64(start) + int64(off)
	if target < 0 || target > int64(d.program.Len()) {
		return corruptf("jump at %08x leaves the program (target %d)", int(start), target)
	}
	d.Line(start, "offset %d [%08x]", off, target)
	return nil
}
