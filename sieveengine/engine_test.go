package sieveengine

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migadu/svbin/binstore"
	"github.com/migadu/svbin/compiler"
	"github.com/migadu/svbin/config"
	"github.com/migadu/svbin/pkg/metrics"
	"github.com/migadu/svbin/sieve"
)

const workScript = `require "fileinto";
if header :contains "subject" "report" {
	fileinto "Work";
}`

func testEngineConfig() config.EngineConfig {
	return config.NewDefaultConfig().Engine
}

// countingStore wraps a Store and counts calls.
type countingStore struct {
	binstore.Store
	gets, puts int
}

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.gets++
	return s.Store.Get(ctx, key)
}

func (s *countingStore) Put(ctx context.Context, key string, data []byte) error {
	s.puts++
	return s.Store.Put(ctx, key, data)
}

func newSQLiteStore(t *testing.T) *countingStore {
	t.Helper()
	s, err := binstore.NewSQLiteStore(filepath.Join(t.TempDir(), "programs.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return &countingStore{Store: s}
}

func TestEngineEvaluate(t *testing.T) {
	e, err := NewEngine(testEngineConfig(), nil, nil)
	require.NoError(t, err)

	result, err := e.Evaluate(context.Background(), workScript, Context{
		Header: map[string][]string{"Subject": {"Monthly Report"}},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionFileInto, result.Action)
	assert.Equal(t, "Work", result.Mailbox)
}

func TestEngineInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.EngineConfig)
	}{
		{"unknown extension", func(c *config.EngineConfig) { c.EnabledExtensions = []string{"vacation"} }},
		{"bad script size", func(c *config.EngineConfig) { c.MaxScriptSize = "lots" }},
		{"bad trace level", func(c *config.EngineConfig) { c.TraceLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testEngineConfig()
			tt.modify(&cfg)
			_, err := NewEngine(cfg, nil, nil)
			assert.Error(t, err)
		})
	}
}

func TestEngineScriptTooLarge(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxScriptSize = "16B"
	e, err := NewEngine(cfg, nil, nil)
	require.NoError(t, err)

	_, err = e.Compile(workScript)
	assert.ErrorIs(t, err, ErrScriptTooLarge)

	_, err = e.Compile("keep;")
	assert.NoError(t, err)
}

func TestEngineInstructionLimit(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxInstructions = 3
	e, err := NewEngine(cfg, nil, nil)
	require.NoError(t, err)

	result, err := e.Evaluate(context.Background(), strings.Repeat("keep;\n", 10), Context{})
	assert.ErrorIs(t, err, sieve.ErrInstructionLimit)
	assert.Equal(t, ActionKeep, result.Action)
}

func TestEngineCompileErrors(t *testing.T) {
	e, err := NewEngine(testEngineConfig(), nil, nil)
	require.NoError(t, err)

	metrics.CompileTotal.Reset()

	_, err = e.Compile(`keep "unterminated;`)
	assert.ErrorIs(t, err, compiler.ErrSyntax)

	_, err = e.Compile(`fileinto "X";`)
	assert.ErrorIs(t, err, compiler.ErrValidation)

	_, err = e.Compile(`keep;`)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CompileTotal.WithLabelValues("syntax_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CompileTotal.WithLabelValues("validation_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CompileTotal.WithLabelValues("success")))
}

func TestEngineUsesCache(t *testing.T) {
	cache := NewSieveScriptCache(10, time.Minute)
	e, err := NewEngine(testEngineConfig(), cache, nil)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := e.Executor(ctx, workScript)
	require.NoError(t, err)
	second, err := e.Executor(ctx, workScript)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Size())
}

func TestEngineStoresPrograms(t *testing.T) {
	store := newSQLiteStore(t)
	e, err := NewEngine(testEngineConfig(), nil, store)
	require.NoError(t, err)
	ctx := context.Background()

	compiled, err := e.Program(ctx, workScript)
	require.NoError(t, err)
	assert.Equal(t, 1, store.puts)

	data, err := store.Get(ctx, e.ScriptKey(workScript))
	require.NoError(t, err)
	assert.Equal(t, compiled.Binary().Marshal(), data)

	loaded, err := e.Program(ctx, workScript)
	require.NoError(t, err)
	assert.Equal(t, 1, store.puts, "stored program should be reused")
	assert.Equal(t, compiled.Binary().Code(), loaded.Binary().Code())

	result, err := e.ProgramExecutor(loaded).Evaluate(ctx, Context{
		Header: map[string][]string{"Subject": {"report"}},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionFileInto, result.Action)
}

func TestEngineRecompilesCorruptStoredProgram(t *testing.T) {
	store := newSQLiteStore(t)
	e, err := NewEngine(testEngineConfig(), nil, store)
	require.NoError(t, err)
	ctx := context.Background()

	key := e.ScriptKey(workScript)
	require.NoError(t, store.Put(ctx, key, []byte("SVBN garbage that fails the checksum")))
	store.puts = 0
	metrics.DecodeErrorsTotal.Reset()

	p, err := e.Program(ctx, workScript)
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, 1, store.puts)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DecodeErrorsTotal.WithLabelValues("load")))

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	_, err = e.Load(data)
	assert.NoError(t, err)
}

func TestScriptKeyDependsOnExtensions(t *testing.T) {
	all, err := NewEngine(testEngineConfig(), nil, nil)
	require.NoError(t, err)

	cfg := testEngineConfig()
	cfg.EnabledExtensions = []string{"fileinto"}
	some, err := NewEngine(cfg, nil, nil)
	require.NoError(t, err)

	assert.NotEqual(t, all.ScriptKey("keep;"), some.ScriptKey("keep;"))
	assert.Equal(t, all.ScriptKey("keep;"), all.ScriptKey("keep;"))
	assert.NotEqual(t, all.ScriptKey("keep;"), all.ScriptKey("discard;"))
}

func TestEngineTrace(t *testing.T) {
	cfg := testEngineConfig()
	cfg.TraceLevel = "actions"
	e, err := NewEngine(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, sieve.TraceActions, e.TraceLevel())

	var buf bytes.Buffer
	e.SetTrace(&buf)
	_, err = e.Evaluate(context.Background(), `discard;`, Context{})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "discard")
}

func TestEngineStoreFailureFallsBack(t *testing.T) {
	e, err := NewEngine(testEngineConfig(), nil, failingStore{})
	require.NoError(t, err)

	result, err := e.Evaluate(context.Background(), `discard;`, Context{})
	require.NoError(t, err)
	assert.Equal(t, ActionDiscard, result.Action)
}

type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errStoreDown }
func (failingStore) Put(context.Context, string, []byte) error   { return errStoreDown }
func (failingStore) Delete(context.Context, string) error        { return errStoreDown }
func (failingStore) Close() error                                { return nil }
