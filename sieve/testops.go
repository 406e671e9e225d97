package sieve

import (
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"
)

// Optional operand codes inside an optional block.
const (
	OptEnd         = 0
	OptComparator  = 1
	OptMatchType   = 2
	OptAddressPart = 3
)

// MatchOptions are the optional operands of a matching test.
type MatchOptions struct {
	Comparator  Comparator
	MatchType   MatchType
	AddressPart AddressPart
}

// DefaultMatchOptions returns the options of a test that names none:
// i;ascii-casemap, :is and :all.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{
		Comparator:  ASCIICasemap,
		MatchType:   Is,
		AddressPart: All,
	}
}

// EmitMatchOptions writes an optional block holding the options that
// differ from the defaults. Nothing is written when all are defaults.
func (g *Generator) EmitMatchOptions(opts MatchOptions) {
	def := DefaultMatchOptions()
	cmp := opts.Comparator != nil && opts.Comparator != def.Comparator
	mt := opts.MatchType != nil && opts.MatchType != def.MatchType
	part := opts.AddressPart != nil && opts.AddressPart != def.AddressPart
	if !cmp && !mt && !part {
		return
	}
	g.EmitOptionalStart()
	if cmp {
		g.EmitOptionalCode(OptComparator)
		g.EmitComparator(opts.Comparator)
	}
	if mt {
		g.EmitOptionalCode(OptMatchType)
		g.EmitMatchType(opts.MatchType)
	}
	if part {
		g.EmitOptionalCode(OptAddressPart)
		g.EmitAddressPart(opts.AddressPart)
	}
	g.EmitOptionalEnd()
}

// ReadMatchOptions reads the optional block at *addr, if there is one.
func (p *Program) ReadMatchOptions(addr *Address) (MatchOptions, error) {
	opts := DefaultMatchOptions()
	b, err := p.bin.PeekUint8(*addr)
	if err != nil || b != OperandOptional {
		return opts, err
	}
	*addr++
	for {
		code, err := p.bin.ReadUint8(addr)
		if err != nil {
			return opts, err
		}
		switch code {
		case OptEnd:
			return opts, nil
		case OptComparator:
			opts.Comparator, err = p.ReadComparator(addr)
		case OptMatchType:
			opts.MatchType, err = p.ReadMatchType(addr)
		case OptAddressPart:
			opts.AddressPart, err = p.ReadAddressPart(addr)
		default:
			return opts, corruptf("invalid optional operand code %d", code)
		}
		if err != nil {
			return opts, err
		}
	}
}

// DumpMatchOptions dumps the optional block at *addr, if there is one.
func (d *Dumper) DumpMatchOptions(addr *Address) error {
	b, err := d.program.bin.PeekUint8(*addr)
	if err != nil || b != OperandOptional {
		return err
	}
	*addr++
	for {
		code, err := d.program.bin.ReadUint8(addr)
		if err != nil {
			return err
		}
		switch code {
		case OptEnd:
			return nil
		case OptComparator:
			err = d.DumpOperand(addr, "", ClassComparator)
		case OptMatchType:
			err = d.DumpOperand(addr, "", ClassMatchType)
		case OptAddressPart:
			err = d.DumpOperand(addr, "", ClassAddressPart)
		default:
			return corruptf("invalid optional operand code %d", code)
		}
		if err != nil {
			return err
		}
	}
}

// ReadSourceLine reads the raw source line that follows a test opcode.
func (p *Program) ReadSourceLine(addr *Address) (int, error) {
	return p.bin.ReadInt(addr)
}

// MatchAddress matches the selected part of a bare address. Addresses
// lacking the part do not match.
func MatchAddress(mc *MatchContext, part AddressPart, address string) (bool, error) {
	v, ok := part.Extract(address)
	if !ok {
		return false, nil
	}
	return mc.Value(v)
}

type headerOperation struct{ ObjectDef }

func (op *headerOperation) Dump(d *Dumper, addr *Address) error {
	if err := d.DumpSourceLine(addr); err != nil {
		return err
	}
	if err := d.DumpMatchOptions(addr); err != nil {
		return err
	}
	if err := d.DumpOperand(addr, "header names", ClassStringList); err != nil {
		return err
	}
	return d.DumpOperand(addr, "key list", ClassStringList)
}

func (op *headerOperation) Execute(r *Runtime, addr *Address) error {
	p := r.Program()
	line, err := p.ReadSourceLine(addr)
	if err != nil {
		return err
	}
	opts, err := p.ReadMatchOptions(addr)
	if err != nil {
		return err
	}
	names, err := p.ReadStringList(addr)
	if err != nil {
		return err
	}
	keys, err := p.ReadStringList(addr)
	if err != nil {
		return err
	}
	r.Tracef(TraceTests, "  header test (line %d)", line)

	mc := NewMatchContext(r, opts.MatchType, opts.Comparator, keys)
	matched := false
	for !matched {
		name, ok, err := names.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		values, err := r.Message().HeaderGet(name)
		if err != nil {
			return fmt.Errorf("line %d: reading header %s: %w", line, name, err)
		}
		for _, v := range values {
			if matched, err = mc.Value(v); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			} else if matched {
				break
			}
		}
	}
	r.SetTestResult(mc.End())
	return nil
}

type addressOperation struct{ ObjectDef }

func (op *addressOperation) Dump(d *Dumper, addr *Address) error {
	if err := d.DumpSourceLine(addr); err != nil {
		return err
	}
	if err := d.DumpMatchOptions(addr); err != nil {
		return err
	}
	if err := d.DumpOperand(addr, "header list", ClassStringList); err != nil {
		return err
	}
	return d.DumpOperand(addr, "key list", ClassStringList)
}

func (op *addressOperation) Execute(r *Runtime, addr *Address) error {
	p := r.Program()
	line, err := p.ReadSourceLine(addr)
	if err != nil {
		return err
	}
	opts, err := p.ReadMatchOptions(addr)
	if err != nil {
		return err
	}
	headers, err := p.ReadStringList(addr)
	if err != nil {
		return err
	}
	keys, err := p.ReadStringList(addr)
	if err != nil {
		return err
	}
	r.Tracef(TraceTests, "  address test (line %d)", line)

	mc := NewMatchContext(r, opts.MatchType, opts.Comparator, keys)
	matched := false
	for !matched {
		name, ok, err := headers.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		values, err := r.Message().HeaderGet(name)
		if err != nil {
			return fmt.Errorf("line %d: reading header %s: %w", line, name, err)
		}
		for _, v := range values {
			if matched, err = matchAddressHeader(mc, opts.AddressPart, v); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			} else if matched {
				break
			}
		}
	}
	r.SetTestResult(mc.End())
	return nil
}

// matchAddressHeader matches every address in a header value. A value that
// does not parse as an address list can still match as a whole under :all.
func matchAddressHeader(mc *MatchContext, part AddressPart, value string) (bool, error) {
	list, err := mail.ParseAddressList(value)
	if err != nil {
		if part.Extension() == nil && part.Code() == AddressAll {
			return mc.Value(strings.TrimSpace(value))
		}
		return false, nil
	}
	for _, a := range list {
		ok, err := MatchAddress(mc, part, a.Address)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

type existsOperation struct{ ObjectDef }

func (op *existsOperation) Dump(d *Dumper, addr *Address) error {
	if err := d.DumpSourceLine(addr); err != nil {
		return err
	}
	return d.DumpOperand(addr, "header names", ClassStringList)
}

func (op *existsOperation) Execute(r *Runtime, addr *Address) error {
	p := r.Program()
	line, err := p.ReadSourceLine(addr)
	if err != nil {
		return err
	}
	names, err := p.ReadStringList(addr)
	if err != nil {
		return err
	}
	r.Tracef(TraceTests, "  exists test (line %d)", line)

	result := true
	for {
		name, ok, err := names.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if !result {
			continue
		}
		values, err := r.Message().HeaderGet(name)
		if err != nil {
			return fmt.Errorf("line %d: reading header %s: %w", line, name, err)
		}
		if len(values) == 0 {
			result = false
		}
	}
	r.SetTestResult(result)
	return nil
}

type sizeOperation struct {
	ObjectDef
	over bool
}

func (op *sizeOperation) Dump(d *Dumper, addr *Address) error {
	if err := d.DumpSourceLine(addr); err != nil {
		return err
	}
	return d.DumpOperand(addr, "limit", ClassNumber)
}

func (op *sizeOperation) Execute(r *Runtime, addr *Address) error {
	p := r.Program()
	line, err := p.ReadSourceLine(addr)
	if err != nil {
		return err
	}
	limit, err := p.ReadNumber(addr)
	if err != nil {
		return err
	}
	size := uint64(r.Message().MessageSize())
	r.Tracef(TraceTests, "  size test (line %d): %d against limit %d", line, size, limit)

	if op.over {
		r.SetTestResult(size > limit)
	} else {
		r.SetTestResult(size < limit)
	}
	return nil
}
