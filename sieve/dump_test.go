package sieve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpProgram(t *testing.T) {
	g := NewGenerator()
	g.EmitOperation(HeaderTest)
	g.EmitSourceLine(7)
	g.EmitMatchOptions(MatchOptions{Comparator: Octet, MatchType: Contains})
	_, err := g.EmitStringList([]string{"Subject", "X-Spam-Flag"})
	require.NoError(t, err)
	_, err = g.EmitStringList([]string{"YES"})
	require.NoError(t, err)
	skip := g.EmitJump(JmpFalse)
	g.EmitOperation(testMark)
	g.EmitString("Junk")
	require.NoError(t, g.Resolve(skip))
	g.EmitOperation(Keep)

	p, err := g.Program(testRegistry(t, testExt))
	require.NoError(t, err)

	var out strings.Builder
	require.NoError(t, NewDumper(p, &out).Dump())
	dump := out.String()

	for _, want := range []string{
		"Extensions: 1",
		"  0: vnd.test",
		"00000000: HEADER",
		"00000001:   (source line: 7)",
		"comparator: i;octet",
		"match-type: contains",
		"header names: STRLIST [2] (END ",
		"    STR[7]: \"Subject\"",
		"key list: STR[3]: \"YES\"",
		"JMPFALSE",
		"MARK",
		"mailbox: STR[4]: \"Junk\"",
		"KEEP",
	} {
		assert.Contains(t, dump, want)
	}

	lines := strings.Split(strings.TrimSpace(dump), "\n")
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], ": KEEP"))
}

func TestDumpJumpShowsTarget(t *testing.T) {
	g := NewGenerator()
	g.EmitOperation(Keep)
	require.NoError(t, g.EmitJumpTo(Jmp, 0))
	p, err := g.Program(testRegistry(t))
	require.NoError(t, err)

	var out strings.Builder
	require.NoError(t, NewDumper(p, &out).Dump())
	assert.Contains(t, out.String(), "00000002:   offset -2 [00000000]")
}

func TestDumpString(t *testing.T) {
	assert.Equal(t, `STR[5]: "a?b?c"`, dumpString("a\nb\tc"))

	long := strings.Repeat("x", 100)
	got := dumpString(long)
	assert.True(t, strings.HasPrefix(got, "STR[100]: \""))
	assert.True(t, strings.HasSuffix(got, "...\""))
	assert.Len(t, got, len(`STR[100]: ""`)+maxDumpString+3)
}
