package sieve

import "strings"

// ComparatorFlags describes what a comparator supports.
type ComparatorFlags uint8

const (
	FlagOrdering ComparatorFlags = 1 << iota
	FlagEquality
	FlagSubstringMatch
)

// Comparator compares a message value against a key. Compare returns a
// negative, zero or positive value; only zero is meaningful unless the
// comparator has FlagOrdering.
type Comparator interface {
	Object
	Flags() ComparatorFlags
	Compare(value, key string) int
}

// SubstringComparator can match values piecewise, which the contains and
// matches match types need.
type SubstringComparator interface {
	Comparator

	// CharMatch matches key[*kp:kend] against the front of value[*vp:vend].
	// On success both cursors are advanced past the matched text; on
	// failure neither moves.
	CharMatch(value string, vp *int, vend int, key string, kp *int, kend int) bool

	// CharSkip advances the value cursor by one unit. It reports false when
	// the cursor is already at vend.
	CharSkip(value string, vp *int, vend int) bool
}

// Core comparator codes.
const (
	ComparatorOctet        = 1
	ComparatorASCIICasemap = 2
)

var (
	// Octet compares byte by byte.
	Octet Comparator = &octetComparator{coreDef("i;octet", ComparatorOctet)}
	// ASCIICasemap compares bytes with ASCII letters folded to lower case.
	ASCIICasemap Comparator = &casemapComparator{coreDef("i;ascii-casemap", ComparatorASCIICasemap)}
)

var coreComparators = []Comparator{nil, Octet, ASCIICasemap}

type octetComparator struct{ ObjectDef }

func (c *octetComparator) Flags() ComparatorFlags {
	return FlagOrdering | FlagEquality | FlagSubstringMatch
}

func (c *octetComparator) Compare(value, key string) int {
	return strings.Compare(value, key)
}

func (c *octetComparator) CharMatch(value string, vp *int, vend int, key string, kp *int, kend int) bool {
	n := kend - *kp
	if vend-*vp < n || value[*vp:*vp+n] != key[*kp:kend] {
		return false
	}
	*vp += n
	*kp = kend
	return true
}

func (c *octetComparator) CharSkip(value string, vp *int, vend int) bool {
	if *vp >= vend {
		return false
	}
	*vp++
	return true
}

type casemapComparator struct{ ObjectDef }

func (c *casemapComparator) Flags() ComparatorFlags {
	return FlagOrdering | FlagEquality | FlagSubstringMatch
}

func (c *casemapComparator) Compare(value, key string) int {
	n := min(len(value), len(key))
	for i := 0; i < n; i++ {
		a, b := lowerASCII(value[i]), lowerASCII(key[i])
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(value) < len(key):
		return -1
	case len(value) > len(key):
		return 1
	}
	return 0
}

func (c *casemapComparator) CharMatch(value string, vp *int, vend int, key string, kp *int, kend int) bool {
	n := kend - *kp
	if vend-*vp < n {
		return false
	}
	for i := 0; i < n; i++ {
		if lowerASCII(value[*vp+i]) != lowerASCII(key[*kp+i]) {
			return false
		}
	}
	*vp += n
	*kp = kend
	return true
}

func (c *casemapComparator) CharSkip(value string, vp *int, vend int) bool {
	if *vp >= vend {
		return false
	}
	*vp++
	return true
}

func lowerASCII(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
