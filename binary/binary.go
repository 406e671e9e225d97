// Package binary implements the code buffer that backs a compiled Sieve
// program.
//
// A Binary is an append-only byte store plus the ordered table of
// extensions the program references. The generator appends to it through
// the Emit* methods and patches forward references with ResolveOffset;
// the interpreter and the disassembler read it back through the Read*
// methods, which are bounds-checked against the current code size and
// never trust an embedded length without checking it first.
package binary

import (
	stdbinary "encoding/binary"
	"errors"
	"fmt"
	"math"
)

// OffsetSize is the width in bytes of an offset field.
const OffsetSize = 4

var (
	// ErrOutOfBounds is returned when a read would go past the end of the code.
	ErrOutOfBounds = errors.New("read past end of code")

	// ErrMalformed is returned for values that cannot be decoded, such as an
	// overflowing integer or a string length larger than the remaining code.
	ErrMalformed = errors.New("malformed code")
)

// Address is a position in the code of a Binary.
type Address int

// Binary is the code buffer of one compiled program.
//
// A Binary is owned by the generator that builds it. Once it has been
// handed to a program it is only read, so multiple interpreter runs may
// share it.
type Binary struct {
	code       []byte
	extensions []string
	extIndex   map[string]int
	pending    map[Address]struct{}
}

// New returns an empty Binary.
func New() *Binary {
	return &Binary{
		code:     make([]byte, 0, 256),
		extIndex: make(map[string]int),
		pending:  make(map[Address]struct{}),
	}
}

// FromCode returns a Binary wrapping existing code and its extension table,
// as read back from storage. The slices are not copied.
func FromCode(code []byte, extensions []string) *Binary {
	b := &Binary{
		code:       code,
		extensions: extensions,
		extIndex:   make(map[string]int, len(extensions)),
		pending:    make(map[Address]struct{}),
	}
	for i, name := range extensions {
		if _, ok := b.extIndex[name]; !ok {
			b.extIndex[name] = i
		}
	}
	return b
}

// Code returns the raw code. The caller must not modify it.
func (b *Binary) Code() []byte {
	return b.code
}

// Len returns the current code size, which is also the address the next
// emitted byte will get.
func (b *Binary) Len() Address {
	return Address(len(b.code))
}

// Extensions returns the names of the extensions used by this program,
// in the order their indexes were assigned.
func (b *Binary) Extensions() []string {
	return b.extensions
}

// ExtensionIndex returns the program-local index of the named extension,
// assigning the next free index on first use.
func (b *Binary) ExtensionIndex(name string) int {
	if idx, ok := b.extIndex[name]; ok {
		return idx
	}
	idx := len(b.extensions)
	b.extensions = append(b.extensions, name)
	b.extIndex[name] = idx
	return idx
}

// Extension returns the name of the extension with the given index.
func (b *Binary) Extension(index int) (string, bool) {
	if index < 0 || index >= len(b.extensions) {
		return "", false
	}
	return b.extensions[index], true
}

// Pending returns the number of offset fields that were emitted but not yet
// resolved.
func (b *Binary) Pending() int {
	return len(b.pending)
}

// EmitByte appends a single byte and returns its address.
func (b *Binary) EmitByte(v byte) Address {
	addr := b.Len()
	b.code = append(b.code, v)
	return addr
}

// EmitInteger appends v as an unsigned varint and returns its address.
func (b *Binary) EmitInteger(v uint64) Address {
	addr := b.Len()
	b.code = stdbinary.AppendUvarint(b.code, v)
	return addr
}

// EmitString appends a length-prefixed string and returns its address.
func (b *Binary) EmitString(s string) Address {
	addr := b.EmitInteger(uint64(len(s)))
	b.code = append(b.code, s...)
	return addr
}

// EmitOffset reserves an offset field and returns its address. The field
// must be resolved with ResolveOffset or ResolveOffsetTo before the code is
// considered complete.
func (b *Binary) EmitOffset() Address {
	addr := b.Len()
	b.code = append(b.code, 0xFF, 0xFF, 0xFF, 0xFF)
	b.pending[addr] = struct{}{}
	return addr
}

// ResolveOffset points the offset field at addr to the current end of code.
func (b *Binary) ResolveOffset(addr Address) error {
	return b.ResolveOffsetTo(addr, b.Len())
}

// ResolveOffsetTo points the offset field at addr to target. The stored
// value is relative to the field's own address.
func (b *Binary) ResolveOffsetTo(addr, target Address) error {
	if addr < 0 || int(addr)+OffsetSize > len(b.code) {
		return fmt.Errorf("resolve offset at %08x: %w", int(addr), ErrOutOfBounds)
	}
	delta := int64(target) - int64(addr)
	if delta < math.MinInt32 || delta > math.MaxInt32 {
		return fmt.Errorf("resolve offset at %08x: distance %d: %w", int(addr), delta, ErrMalformed)
	}
	stdbinary.BigEndian.PutUint32(b.code[addr:], uint32(int32(delta)))
	delete(b.pending, addr)
	return nil
}

// ReadUint8 reads one byte at *addr and advances the cursor.
func (b *Binary) ReadUint8(addr *Address) (byte, error) {
	if *addr < 0 || int(*addr) >= len(b.code) {
		return 0, ErrOutOfBounds
	}
	v := b.code[*addr]
	*addr++
	return v, nil
}

// PeekUint8 returns the byte at addr without moving any cursor.
func (b *Binary) PeekUint8(addr Address) (byte, error) {
	return b.ReadUint8(&addr)
}

// ReadInteger reads an unsigned varint at *addr and advances the cursor.
func (b *Binary) ReadInteger(addr *Address) (uint64, error) {
	if *addr < 0 || int(*addr) >= len(b.code) {
		return 0, ErrOutOfBounds
	}
	v, n := stdbinary.Uvarint(b.code[*addr:])
	switch {
	case n == 0:
		return 0, ErrOutOfBounds
	case n < 0:
		return 0, fmt.Errorf("integer overflow: %w", ErrMalformed)
	}
	*addr += Address(n)
	return v, nil
}

// ReadInt reads an unsigned varint that must fit into an int.
func (b *Binary) ReadInt(addr *Address) (int, error) {
	v, err := b.ReadInteger(addr)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("integer %d too large: %w", v, ErrMalformed)
	}
	return int(v), nil
}

// ReadOffset reads the offset field at *addr, advances the cursor past it
// and returns the raw relative value.
func (b *Binary) ReadOffset(addr *Address) (int32, error) {
	if *addr < 0 || int(*addr)+OffsetSize > len(b.code) {
		return 0, ErrOutOfBounds
	}
	v := int32(stdbinary.BigEndian.Uint32(b.code[*addr:]))
	*addr += OffsetSize
	return v, nil
}

// ReadOffsetTarget reads the offset field at *addr and returns the absolute
// address it points to. The target is checked to lie within the code; the
// end of code itself is a valid target.
func (b *Binary) ReadOffsetTarget(addr *Address) (Address, error) {
	field := *addr
	off, err := b.ReadOffset(addr)
	if err != nil {
		return 0, err
	}
	target := int64(field) + int64(off)
	if target < 0 || target > int64(len(b.code)) {
		return 0, fmt.Errorf("offset at %08x points to %d: %w", int(field), target, ErrOutOfBounds)
	}
	return Address(target), nil
}

// ReadString reads a length-prefixed string at *addr and advances the
// cursor.
func (b *Binary) ReadString(addr *Address) (string, error) {
	start := *addr
	n, err := b.ReadInteger(&start)
	if err != nil {
		return "", err
	}
	if n > uint64(len(b.code)-int(start)) {
		return "", fmt.Errorf("string length %d exceeds code: %w", n, ErrMalformed)
	}
	end := int(start) + int(n)
	s := string(b.code[start:end])
	*addr = Address(end)
	return s, nil
}
