// Package regex provides the :regex match type. Patterns are POSIX-style
// extended regular expressions evaluated over raw bytes.
package regex

import (
	"fmt"

	"rsc.io/binaryregexp"

	"github.com/migadu/svbin/sieve"
)

const Name = "regex"

var (
	Extension = sieve.NewExtension(Name)
	MatchType = &regexMatch{Extension.Def("regex", 0)}
)

func init() {
	Extension.MatchTypes = []sieve.MatchType{MatchType}
}

type regexMatch struct{ sieve.ObjectDef }

func (m *regexMatch) IsIterative() bool { return true }

// ValidateContext accepts only i;octet and i;ascii-casemap and requires
// every key to compile.
func (m *regexMatch) ValidateContext(cmp sieve.Comparator, keys []string) error {
	if cmp != sieve.Octet && cmp != sieve.ASCIICasemap {
		return fmt.Errorf("regex match type cannot be used with comparator %s", cmp.Identifier())
	}
	for _, key := range keys {
		if _, err := compile(cmp, key); err != nil {
			return err
		}
	}
	return nil
}

func (m *regexMatch) Match(mc *sieve.MatchContext, value, key string, _ int) (bool, error) {
	cache, _ := mc.State.(map[string]*binaryregexp.Regexp)
	if cache == nil {
		cache = make(map[string]*binaryregexp.Regexp)
		mc.State = cache
	}
	re, ok := cache[key]
	if !ok {
		var err error
		if re, err = compile(mc.Comparator, key); err != nil {
			return false, err
		}
		cache[key] = re
	}
	return re.MatchString(value), nil
}

func compile(cmp sieve.Comparator, key string) (*binaryregexp.Regexp, error) {
	expr := key
	if cmp == sieve.ASCIICasemap {
		expr = "(?i)" + key
	}
	re, err := binaryregexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression %q: %w", key, err)
	}
	return re, nil
}
