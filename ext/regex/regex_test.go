package regex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"rsc.io/binaryregexp"

	"github.com/migadu/svbin/ext/numeric"
	"github.com/migadu/svbin/sieve"
)

func match(t *testing.T, cmp sieve.Comparator, value string, keys ...string) bool {
	t.Helper()
	mc := sieve.NewMatchContext(nil, MatchType, cmp, sieve.NewStringList(keys...))
	ok, err := mc.Value(value)
	require.NoError(t, err)
	return ok
}

func TestRegexMatch(t *testing.T) {
	tests := []struct {
		name  string
		cmp   sieve.Comparator
		value string
		keys  []string
		want  bool
	}{
		{"anchored", sieve.Octet, "[SPAM] buy", []string{`^\[SPAM\]`}, true},
		{"unanchored", sieve.Octet, "re: invoice 42", []string{`invoice [0-9]+`}, true},
		{"octet is case sensitive", sieve.Octet, "INVOICE", []string{`invoice`}, false},
		{"casemap ignores case", sieve.ASCIICasemap, "INVOICE", []string{`invoice`}, true},
		{"second key", sieve.Octet, "abc", []string{`^x`, `c$`}, true},
		{"raw bytes", sieve.Octet, "caf\xe9", []string{"\xe9$"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, match(t, tt.cmp, tt.value, tt.keys...))
		})
	}
}

func TestValidateContext(t *testing.T) {
	assert.NoError(t, MatchType.ValidateContext(sieve.Octet, []string{`^a+$`}))
	assert.NoError(t, MatchType.ValidateContext(sieve.ASCIICasemap, nil))
	assert.Error(t, MatchType.ValidateContext(numeric.Comparator, nil))
	assert.Error(t, MatchType.ValidateContext(sieve.Octet, []string{`(unclosed`}))
}

func TestInvalidPatternAtRuntime(t *testing.T) {
	mc := sieve.NewMatchContext(nil, MatchType, sieve.Octet, sieve.NewStringList(`[`))
	_, err := mc.Value("x")
	assert.Error(t, err)
}

func TestCompiledPatternsCached(t *testing.T) {
	mc := sieve.NewMatchContext(nil, MatchType, sieve.Octet, sieve.NewStringList(`b`))
	for _, v := range []string{"abc", "xyz", "b"} {
		_, err := mc.Value(v)
		require.NoError(t, err)
	}
	cache, ok := mc.State.(map[string]*binaryregexp.Regexp)
	require.True(t, ok)
	assert.Len(t, cache, 1)
}
