package numeric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migadu/svbin/sieve"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		value string
		key   string
		want  int
	}{
		{"007", "7", 0},
		{"7", "007", 0},
		{"0", "000", 0},
		{"10", "9", 1},
		{"9", "10", -1},
		{"123abc", "123", 0},
		{"42", "abc", -1},
		{"abc", "42", 1},
		{"abc", "xyz", 0},
		{"", "abc", 0},
		{"", "0", 1},
		{"99999999999999999999999", "99999999999999999999998", 1},
	}

	for _, tt := range tests {
		t.Run(tt.value+"_"+tt.key, func(t *testing.T) {
			got := Comparator.Compare(tt.value, tt.key)
			switch {
			case tt.want < 0:
				assert.Negative(t, got)
			case tt.want > 0:
				assert.Positive(t, got)
			default:
				assert.Zero(t, got)
			}
		})
	}
}

func TestNotUsableForSubstrings(t *testing.T) {
	_, ok := sieve.Comparator(Comparator).(sieve.SubstringComparator)
	assert.False(t, ok)

	v := sieve.Contains.(sieve.ContextValidator)
	assert.Error(t, v.ValidateContext(Comparator, nil))
	assert.NoError(t, sieve.Is.(sieve.ContextValidator).ValidateContext(Comparator, nil))
}

func TestRegisteredByName(t *testing.T) {
	reg, err := sieve.NewRegistry(Extension)
	require.NoError(t, err)

	cmp, ok := reg.Comparator("i;ascii-numeric")
	require.True(t, ok)
	assert.Equal(t, sieve.Comparator(Comparator), cmp)
	assert.Equal(t, Extension, cmp.Extension())
}

func TestIsMatchInProgram(t *testing.T) {
	mc := sieve.NewMatchContext(nil, sieve.Is, Comparator, sieve.NewStringList("3", "0042"))
	ok, err := mc.Value("42")
	require.NoError(t, err)
	assert.True(t, ok)
}
