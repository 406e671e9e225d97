package sieve

import "fmt"

// MatchType decides whether a value matches a key under a comparator.
type MatchType interface {
	Object

	// IsIterative reports whether Match is called once per key. A match
	// type that is not iterative is called once per value with an empty key
	// and key index -1.
	IsIterative() bool

	Match(mc *MatchContext, value, key string, keyIndex int) (bool, error)
}

// ContextValidator is implemented by match types that restrict the
// comparator or the keys they can be used with. It is consulted at compile
// time; keys holds the constant keys of the test.
type ContextValidator interface {
	ValidateContext(cmp Comparator, keys []string) error
}

// Core match type codes.
const (
	MatchIs       = 1
	MatchContains = 2
	MatchMatches  = 3
)

// Core match types.
var (
	Is       MatchType = &isMatch{coreDef("is", MatchIs)}
	Contains MatchType = &containsMatch{coreDef("contains", MatchContains)}
	Matches  MatchType = &matchesMatch{coreDef("matches", MatchMatches)}
)

var coreMatchTypes = []MatchType{nil, Is, Contains, Matches}

// MatchContext holds the state of one test's matching: the match type, the
// comparator and the key list. It is created for a single test evaluation
// and dropped afterwards.
type MatchContext struct {
	MatchType  MatchType
	Comparator Comparator
	Keys       *StringList

	// State is scratch space for the match type, such as compiled
	// patterns. It lives as long as the context.
	State any

	runtime *Runtime
	matched bool
}

// NewMatchContext starts a match. r may be nil when matching outside of a
// program run.
func NewMatchContext(r *Runtime, mt MatchType, cmp Comparator, keys *StringList) *MatchContext {
	return &MatchContext{
		MatchType:  mt,
		Comparator: cmp,
		Keys:       keys,
		runtime:    r,
	}
}

// Value matches one value against the keys and reports whether any key
// matched.
func (mc *MatchContext) Value(value string) (bool, error) {
	if !mc.MatchType.IsIterative() {
		ok, err := mc.MatchType.Match(mc, value, "", -1)
		if err != nil {
			return false, err
		}
		mc.traceMatch(value, "", ok)
		mc.matched = mc.matched || ok
		return ok, nil
	}

	mc.Keys.Reset()
	for {
		idx := mc.Keys.Index()
		key, more, err := mc.Keys.Next()
		if err != nil {
			return false, err
		}
		if !more {
			return false, nil
		}
		ok, err := mc.MatchType.Match(mc, value, key, idx)
		if err != nil {
			return false, err
		}
		mc.traceMatch(value, key, ok)
		if ok {
			mc.matched = true
			return true, nil
		}
	}
}

// End finishes the match and reports whether any value matched.
func (mc *MatchContext) End() bool {
	return mc.matched
}

func (mc *MatchContext) traceMatch(value, key string, ok bool) {
	if mc.runtime == nil {
		return
	}
	mc.runtime.Tracef(TraceMatching, "    %s %s: value %q key %q => %t",
		mc.MatchType.Identifier(), mc.Comparator.Identifier(), value, key, ok)
}

func substringComparator(mt MatchType, cmp Comparator) (SubstringComparator, error) {
	sc, ok := cmp.(SubstringComparator)
	if !ok || cmp.Flags()&FlagSubstringMatch == 0 {
		return nil, fmt.Errorf("match type %s cannot be used with comparator %s", mt.Identifier(), cmp.Identifier())
	}
	return sc, nil
}

type isMatch struct{ ObjectDef }

func (m *isMatch) IsIterative() bool { return true }

func (m *isMatch) ValidateContext(cmp Comparator, _ []string) error {
	if cmp.Flags()&FlagEquality == 0 {
		return fmt.Errorf("match type is cannot be used with comparator %s", cmp.Identifier())
	}
	return nil
}

func (m *isMatch) Match(mc *MatchContext, value, key string, _ int) (bool, error) {
	return mc.Comparator.Compare(value, key) == 0, nil
}

type containsMatch struct{ ObjectDef }

func (m *containsMatch) IsIterative() bool { return true }

func (m *containsMatch) ValidateContext(cmp Comparator, _ []string) error {
	_, err := substringComparator(m, cmp)
	return err
}

func (m *containsMatch) Match(mc *MatchContext, value, key string, _ int) (bool, error) {
	cmp, err := substringComparator(m, mc.Comparator)
	if err != nil {
		return false, err
	}
	return containsString(cmp, value, key), nil
}

// containsString scans value for key by trying every start position. The
// scan is quadratic in the worst case, which is fine for header values.
func containsString(cmp SubstringComparator, value, key string) bool {
	if key == "" {
		return true
	}
	vend, kend := len(value), len(key)
	vp := 0
	for vp < vend {
		v, k := vp, 0
		if cmp.CharMatch(value, &v, vend, key, &k, kend) {
			return true
		}
		if !cmp.CharSkip(value, &vp, vend) {
			break
		}
	}
	return false
}

type matchesMatch struct{ ObjectDef }

func (m *matchesMatch) IsIterative() bool { return true }

func (m *matchesMatch) ValidateContext(cmp Comparator, _ []string) error {
	_, err := substringComparator(m, cmp)
	return err
}

func (m *matchesMatch) Match(mc *MatchContext, value, key string, _ int) (bool, error) {
	cmp, err := substringComparator(m, mc.Comparator)
	if err != nil {
		return false, err
	}
	return globMatch(cmp, value, key), nil
}

// globToken is a literal run or, when any is set, a single '?'.
type globToken struct {
	lit string
	any bool
}

// parseGlob splits a pattern at every unescaped '*'. A backslash escapes
// only '*' and '?'; anywhere else it is a literal backslash.
func parseGlob(pattern string) [][]globToken {
	var (
		sections [][]globToken
		section  []globToken
		lit      []byte
	)
	flush := func() {
		if len(lit) > 0 {
			section = append(section, globToken{lit: string(lit)})
			lit = lit[:0]
		}
	}
	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern) && (pattern[i+1] == '*' || pattern[i+1] == '?'):
			lit = append(lit, pattern[i+1])
			i += 2
		case c == '*':
			flush()
			sections = append(sections, section)
			section = nil
			i++
		case c == '?':
			flush()
			section = append(section, globToken{any: true})
			i++
		default:
			lit = append(lit, c)
			i++
		}
	}
	flush()
	return append(sections, section)
}

// matchSection matches one star-free section at vp and returns the
// position after it.
func matchSection(cmp SubstringComparator, value string, vp, vend int, section []globToken) (int, bool) {
	for _, tok := range section {
		if tok.any {
			if !cmp.CharSkip(value, &vp, vend) {
				return 0, false
			}
			continue
		}
		k := 0
		if !cmp.CharMatch(value, &vp, vend, tok.lit, &k, len(tok.lit)) {
			return 0, false
		}
	}
	return vp, true
}

// globMatch reports whether the whole value matches the pattern. The first
// section is anchored at the start of the value and the last at its end;
// every section in between is matched at the leftmost position where it
// fits, which is always safe because sections have a fixed width.
func globMatch(cmp SubstringComparator, value, pattern string) bool {
	sections := parseGlob(pattern)
	vend := len(value)

	if len(sections) == 1 {
		end, ok := matchSection(cmp, value, 0, vend, sections[0])
		return ok && end == vend
	}

	vp, ok := matchSection(cmp, value, 0, vend, sections[0])
	if !ok {
		return false
	}

	for _, section := range sections[1 : len(sections)-1] {
		if len(section) == 0 {
			continue
		}
		found := false
		for start := vp; ; {
			if end, ok := matchSection(cmp, value, start, vend, section); ok {
				vp = end
				found = true
				break
			}
			if !cmp.CharSkip(value, &start, vend) {
				break
			}
		}
		if !found {
			return false
		}
	}

	last := sections[len(sections)-1]
	if len(last) == 0 {
		return true
	}
	for start := vp; ; {
		if end, ok := matchSection(cmp, value, start, vend, last); ok && end == vend {
			return true
		}
		if !cmp.CharSkip(value, &start, vend) {
			return false
		}
	}
}
