// Package numeric provides the i;ascii-numeric comparator (RFC 4790).
package numeric

import "github.com/migadu/svbin/sieve"

// Name is the capability scripts require to use the comparator.
const Name = "comparator-i;ascii-numeric"

var (
	Extension  = sieve.NewExtension(Name)
	Comparator = &asciiNumeric{Extension.Def("i;ascii-numeric", 0)}
)

func init() {
	Extension.Comparators = []sieve.Comparator{Comparator}
}

type asciiNumeric struct{ sieve.ObjectDef }

func (c *asciiNumeric) Flags() sieve.ComparatorFlags {
	return sieve.FlagOrdering | sieve.FlagEquality
}

// Compare orders strings by the value of their leading digits. A string
// that does not start with a digit is positive infinity; all such strings
// are equal to each other.
func (c *asciiNumeric) Compare(value, key string) int {
	v, vok := digits(value)
	k, kok := digits(key)
	switch {
	case !vok && !kok:
		return 0
	case !vok:
		return 1
	case !kok:
		return -1
	}
	if len(v) != len(k) {
		if len(v) < len(k) {
			return -1
		}
		return 1
	}
	switch {
	case v < k:
		return -1
	case v > k:
		return 1
	}
	return 0
}

// digits returns the leading digit run of s without leading zeros. ok is
// false when s does not start with a digit.
func digits(s string) (string, bool) {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	if n == 0 {
		return "", false
	}
	d := s[:n]
	for len(d) > 1 && d[0] == '0' {
		d = d[1:]
	}
	return d, true
}
