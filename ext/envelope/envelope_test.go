package envelope

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migadu/svbin/sieve"
)

type testEnvelope struct {
	from, to, auth string
}

func (e testEnvelope) EnvelopeFrom() string { return e.from }
func (e testEnvelope) EnvelopeTo() string   { return e.to }
func (e testEnvelope) AuthUsername() string { return e.auth }

type emptyMessage struct{}

func (emptyMessage) HeaderGet(string) ([]string, error) { return nil, nil }
func (emptyMessage) MessageSize() int                   { return 0 }

func envelopeProgram(t *testing.T, opts sieve.MatchOptions, parts, keys []string) *sieve.Program {
	t.Helper()
	g := sieve.NewGenerator()
	g.EmitOperation(Operation)
	g.EmitSourceLine(1)
	g.EmitMatchOptions(opts)
	_, err := g.EmitStringList(parts)
	require.NoError(t, err)
	_, err = g.EmitStringList(keys)
	require.NoError(t, err)
	skip := g.EmitJump(sieve.JmpFalse)
	g.EmitOperation(sieve.Discard)
	require.NoError(t, g.Resolve(skip))

	reg, err := sieve.NewRegistry(Extension)
	require.NoError(t, err)
	p, err := g.Program(reg)
	require.NoError(t, err)
	return p
}

func TestEnvelopeTest(t *testing.T) {
	env := testEnvelope{from: "<Bounce@Lists.Example.org>", to: "user@example.com", auth: "user"}

	tests := []struct {
		name  string
		opts  sieve.MatchOptions
		parts []string
		keys  []string
		env   sieve.Envelope
		want  bool
	}{
		{"from domain", sieve.MatchOptions{AddressPart: sieve.Domain}, []string{"from"}, []string{"lists.example.org"}, env, true},
		{"to localpart", sieve.MatchOptions{AddressPart: sieve.Localpart}, []string{"to"}, []string{"user"}, env, true},
		{"auth", sieve.MatchOptions{}, []string{"auth"}, []string{"user"}, env, true},
		{"either part", sieve.MatchOptions{MatchType: sieve.Contains}, []string{"from", "to"}, []string{"example.com"}, env, true},
		{"no match", sieve.MatchOptions{}, []string{"to"}, []string{"other@example.com"}, env, false},
		{"null sender", sieve.MatchOptions{}, []string{"from"}, []string{""}, testEnvelope{from: "<>"}, true},
		{"no envelope", sieve.MatchOptions{}, []string{"from"}, []string{""}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := envelopeProgram(t, tt.opts, tt.parts, tt.keys)
			res, err := sieve.NewRuntime(p, emptyMessage{}, tt.env).Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Discarded)
		})
	}
}

func TestEnvelopeUnknownPart(t *testing.T) {
	p := envelopeProgram(t, sieve.MatchOptions{}, []string{"bogus"}, []string{"x"})
	_, err := sieve.NewRuntime(p, emptyMessage{}, testEnvelope{}).Run(context.Background())
	assert.ErrorContains(t, err, "unknown envelope part")
}

func TestEnvelopeDump(t *testing.T) {
	p := envelopeProgram(t, sieve.MatchOptions{AddressPart: sieve.Domain}, []string{"from", "to"}, []string{"x"})
	var out strings.Builder
	require.NoError(t, sieve.NewDumper(p, &out).Dump())
	assert.Contains(t, out.String(), "0: envelope")
	assert.Contains(t, out.String(), "ENVELOPE")
	assert.Contains(t, out.String(), "address-part: domain")
	assert.Contains(t, out.String(), "envelope part: STRLIST [2]")
}

func TestValidPart(t *testing.T) {
	assert.True(t, ValidPart("FROM"))
	assert.True(t, ValidPart("auth"))
	assert.False(t, ValidPart("cc"))
}
