package sieve

import (
	"fmt"

	"github.com/migadu/svbin/binary"
)

// Generator is the emission API used by code generators. It owns the code
// buffer until Program seals it.
type Generator struct {
	bin *binary.Binary
}

// NewGenerator returns a generator writing into a fresh code buffer.
func NewGenerator() *Generator {
	return &Generator{bin: binary.New()}
}

// Binary returns the code buffer being written.
func (g *Generator) Binary() *binary.Binary {
	return g.bin
}

// Address returns the address the next emitted byte will get.
func (g *Generator) Address() Address {
	return g.bin.Len()
}

// emitObjectCode writes a core code, or the extension marker followed by the
// extension index and local code.
func (g *Generator) emitObjectCode(o Object) Address {
	ext := o.Extension()
	if ext == nil {
		return g.bin.EmitByte(byte(o.Code()))
	}
	addr := g.bin.EmitByte(ExtensionMarker)
	g.bin.EmitInteger(uint64(g.bin.ExtensionIndex(ext.Name)))
	g.bin.EmitInteger(uint64(o.Code()))
	return addr
}

// UseExtension records ext in the program's extension table without
// emitting any code.
func (g *Generator) UseExtension(ext *Extension) int {
	return g.bin.ExtensionIndex(ext.Name)
}

// EmitOperation writes an instruction code and returns its address.
func (g *Generator) EmitOperation(op Operation) Address {
	return g.emitObjectCode(op)
}

// EmitOperand writes an operand tag.
func (g *Generator) EmitOperand(opr Operand) Address {
	return g.emitObjectCode(opr)
}

// EmitNumber writes a number operand.
func (g *Generator) EmitNumber(n uint64) Address {
	addr := g.EmitOperand(numberOperand)
	g.bin.EmitInteger(n)
	return addr
}

// EmitString writes a string operand.
func (g *Generator) EmitString(s string) Address {
	addr := g.EmitOperand(stringOperand)
	g.bin.EmitString(s)
	return addr
}

// EmitStringList writes a string-list operand. A list of exactly one item
// is written as a bare string operand.
func (g *Generator) EmitStringList(items []string) (Address, error) {
	if len(items) == 1 {
		return g.EmitString(items[0]), nil
	}
	addr := g.Address()
	list := g.EmitStringListStart(len(items))
	for _, item := range items {
		g.EmitStringListItem(item)
	}
	return addr, g.EmitStringListEnd(list)
}

// EmitStringListStart writes the string-list header and returns the
// address of its skip offset, to be passed to EmitStringListEnd.
func (g *Generator) EmitStringListStart(count int) Address {
	g.EmitOperand(stringListOperand)
	end := g.bin.EmitOffset()
	g.bin.EmitInteger(uint64(count))
	return end
}

// EmitStringListItem writes one item of a string list.
func (g *Generator) EmitStringListItem(s string) {
	g.bin.EmitString(s)
}

// EmitStringListEnd resolves the skip offset of the list started at end.
func (g *Generator) EmitStringListEnd(end Address) error {
	return g.bin.ResolveOffset(end)
}

// EmitComparator writes a comparator operand.
func (g *Generator) EmitComparator(cmp Comparator) Address {
	addr := g.EmitOperand(comparatorOperand)
	g.emitObjectCode(cmp)
	return addr
}

// EmitMatchType writes a match-type operand.
func (g *Generator) EmitMatchType(mt MatchType) Address {
	addr := g.EmitOperand(matchTypeOperand)
	g.emitObjectCode(mt)
	return addr
}

// EmitAddressPart writes an address-part operand.
func (g *Generator) EmitAddressPart(part AddressPart) Address {
	addr := g.EmitOperand(addressPartOperand)
	g.emitObjectCode(part)
	return addr
}

// EmitSourceLine writes the raw source line that follows a test opcode.
func (g *Generator) EmitSourceLine(line int) {
	if line < 0 {
		line = 0
	}
	g.bin.EmitInteger(uint64(line))
}

// EmitOptionalStart opens an optional-operand block.
func (g *Generator) EmitOptionalStart() {
	g.bin.EmitByte(OperandOptional)
}

// EmitOptionalCode introduces the next optional operand.
func (g *Generator) EmitOptionalCode(code byte) {
	g.bin.EmitByte(code)
}

// EmitOptionalEnd closes an optional-operand block.
func (g *Generator) EmitOptionalEnd() {
	g.bin.EmitByte(OptEnd)
}

// EmitJump writes a jump instruction with an unresolved offset and returns
// the offset's address for Resolve.
func (g *Generator) EmitJump(op Operation) Address {
	g.EmitOperation(op)
	return g.bin.EmitOffset()
}

// EmitJumpTo writes a jump instruction branching to a known target.
func (g *Generator) EmitJumpTo(op Operation, target Address) error {
	return g.ResolveTo(g.EmitJump(op), target)
}

// Resolve points the jump at patch to the current address.
func (g *Generator) Resolve(patch Address) error {
	return g.bin.ResolveOffset(patch)
}

// ResolveTo points the jump at patch to target.
func (g *Generator) ResolveTo(patch, target Address) error {
	return g.bin.ResolveOffsetTo(patch, target)
}

// Program seals the generated code into a Program bound to reg. It fails
// if any offset is still unresolved.
func (g *Generator) Program(reg *Registry) (*Program, error) {
	if n := g.bin.Pending(); n > 0 {
		return nil, fmt.Errorf("%w: %d offsets pending", ErrUnresolvedJump, n)
	}
	return NewProgram(g.bin, reg), nil
}

// JumpList collects jumps that all branch to the same, not yet known,
// target. It exists only while generating code.
type JumpList struct {
	patches []Address
}

// Add appends a jump offset address to the list.
func (l *JumpList) Add(patch Address) {
	l.patches = append(l.patches, patch)
}

// Len returns the number of collected jumps.
func (l *JumpList) Len() int {
	return len(l.patches)
}

// Resolve points every collected jump to the generator's current address
// and empties the list.
func (l *JumpList) Resolve(g *Generator) error {
	return l.ResolveTo(g, g.Address())
}

// ResolveTo points every collected jump to target and empties the list.
func (l *JumpList) ResolveTo(g *Generator, target Address) error {
	for _, patch := range l.patches {
		if err := g.ResolveTo(patch, target); err != nil {
			return err
		}
	}
	l.patches = l.patches[:0]
	return nil
}
