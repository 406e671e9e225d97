package binary

import (
	"bytes"
	stdbinary "encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"lukechampine.com/blake3"
)

// Version is the current on-disk format version.
const Version uint16 = 1

// Magic identifies a compiled program file.
var Magic = []byte{'S', 'V', 'B', 'N'}

var (
	ErrBadMagic = errors.New("not a compiled sieve program")
	ErrVersion  = errors.New("unsupported program version")
	ErrChecksum = errors.New("program checksum mismatch")
)

const checksumSize = 32

// Marshal serializes the Binary with its extension table and a BLAKE3
// checksum. Pending offsets are not checked here; the generator refuses to
// hand out programs that still have them.
func (b *Binary) Marshal() []byte {
	var buf bytes.Buffer
	buf.Write(Magic)
	var ver [2]byte
	stdbinary.BigEndian.PutUint16(ver[:], Version)
	buf.Write(ver[:])

	writeUvarint(&buf, uint64(len(b.extensions)))
	for _, name := range b.extensions {
		writeUvarint(&buf, uint64(len(name)))
		buf.WriteString(name)
	}
	writeUvarint(&buf, uint64(len(b.code)))
	buf.Write(b.code)

	sum := blake3.Sum256(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes()
}

// Unmarshal parses data produced by Marshal. Extension names are taken as
// they are; whether the running system supports them is decided when the
// program is loaded.
func Unmarshal(data []byte) (*Binary, error) {
	if len(data) < len(Magic)+2+checksumSize {
		return nil, fmt.Errorf("program file too short (%d bytes): %w", len(data), ErrOutOfBounds)
	}
	if !bytes.Equal(data[:len(Magic)], Magic) {
		return nil, ErrBadMagic
	}

	body := data[:len(data)-checksumSize]
	sum := blake3.Sum256(body)
	if !bytes.Equal(sum[:], data[len(body):]) {
		return nil, ErrChecksum
	}

	hdr := FromCode(body, nil)
	pos := Address(len(Magic))
	hi, _ := hdr.ReadUint8(&pos)
	lo, _ := hdr.ReadUint8(&pos)
	if v := uint16(hi)<<8 | uint16(lo); v != Version {
		return nil, fmt.Errorf("version %d: %w", v, ErrVersion)
	}

	count, err := hdr.ReadInt(&pos)
	if err != nil {
		return nil, fmt.Errorf("reading extension count: %w", err)
	}
	if count > len(body) {
		return nil, fmt.Errorf("extension count %d: %w", count, ErrMalformed)
	}
	exts := make([]string, 0, count)
	for i := 0; i < count; i++ {
		name, err := hdr.ReadString(&pos)
		if err != nil {
			return nil, fmt.Errorf("reading extension %d: %w", i, err)
		}
		exts = append(exts, name)
	}

	codeLen, err := hdr.ReadInt(&pos)
	if err != nil {
		return nil, fmt.Errorf("reading code length: %w", err)
	}
	if int(pos)+codeLen != len(body) {
		return nil, fmt.Errorf("code length %d does not match file: %w", codeLen, ErrMalformed)
	}
	code := make([]byte, codeLen)
	copy(code, body[pos:])
	return FromCode(code, exts), nil
}

// Save writes the marshalled Binary to path, replacing it atomically.
func (b *Binary) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".svbin-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b.Marshal()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write program: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close program file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads a program file written by Save.
func Load(path string) (*Binary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// IsProgram reports whether data starts with the program file magic.
func IsProgram(data []byte) bool {
	return bytes.HasPrefix(data, Magic)
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [stdbinary.MaxVarintLen64]byte
	n := stdbinary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}
