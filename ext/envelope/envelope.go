// Package envelope implements the Sieve envelope test (RFC 5228 section
// 5.4).
package envelope

import (
	"fmt"
	"strings"

	"github.com/migadu/svbin/sieve"
)

const Name = "envelope"

var (
	Extension = sieve.NewExtension(Name)
	Operation = &envelopeOperation{Extension.Def("ENVELOPE", 0)}
)

func init() {
	Extension.Operations = []sieve.Operation{Operation}
}

// Parts lists the envelope parts a script may name.
var Parts = []string{"from", "to", "auth"}

// ValidPart reports whether name is a supported envelope part.
func ValidPart(name string) bool {
	for _, p := range Parts {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

type envelopeOperation struct{ sieve.ObjectDef }

func (op *envelopeOperation) Dump(d *sieve.Dumper, addr *sieve.Address) error {
	if err := d.DumpSourceLine(addr); err != nil {
		return err
	}
	if err := d.DumpMatchOptions(addr); err != nil {
		return err
	}
	if err := d.DumpOperand(addr, "envelope part", sieve.ClassStringList); err != nil {
		return err
	}
	return d.DumpOperand(addr, "key list", sieve.ClassStringList)
}

func (op *envelopeOperation) Execute(r *sieve.Runtime, addr *sieve.Address) error {
	p := r.Program()
	line, err := p.ReadSourceLine(addr)
	if err != nil {
		return err
	}
	opts, err := p.ReadMatchOptions(addr)
	if err != nil {
		return err
	}
	parts, err := p.ReadStringList(addr)
	if err != nil {
		return err
	}
	keys, err := p.ReadStringList(addr)
	if err != nil {
		return err
	}
	r.Tracef(sieve.TraceTests, "  envelope test (line %d)", line)

	env := r.Envelope()
	mc := sieve.NewMatchContext(r, opts.MatchType, opts.Comparator, keys)
	matched := false
	for !matched {
		part, ok, err := parts.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if env == nil {
			continue
		}
		value, err := partValue(env, part)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if matched, err = sieve.MatchAddress(mc, opts.AddressPart, value); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	r.SetTestResult(mc.End())
	return nil
}

func partValue(env sieve.Envelope, part string) (string, error) {
	var v string
	switch strings.ToLower(part) {
	case "from":
		v = env.EnvelopeFrom()
	case "to":
		v = env.EnvelopeTo()
	case "auth":
		v = env.AuthUsername()
	default:
		return "", fmt.Errorf("unknown envelope part %q", part)
	}
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "<")
	v = strings.TrimSuffix(v, ">")
	return v, nil
}
