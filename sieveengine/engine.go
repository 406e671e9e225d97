package sieveengine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"lukechampine.com/blake3"

	"github.com/migadu/svbin/binary"
	"github.com/migadu/svbin/binstore"
	"github.com/migadu/svbin/compiler"
	"github.com/migadu/svbin/config"
	"github.com/migadu/svbin/logger"
	"github.com/migadu/svbin/pkg/metrics"
	"github.com/migadu/svbin/sieve"
)

// ErrScriptTooLarge is returned for scripts over the configured size limit.
var ErrScriptTooLarge = errors.New("script too large")

// Engine compiles, caches, stores and runs scripts under one
// configuration. It is safe for concurrent use.
type Engine struct {
	compiler        *compiler.Compiler
	cache           *SieveScriptCache
	store           binstore.Store
	maxScriptSize   int64
	maxInstructions int
	traceLevel      sieve.TraceLevel
	trace           io.Writer

	// fingerprint identifies everything besides the source that changes
	// the compiled program.
	fingerprint string
}

// NewEngine builds an engine from cfg. cache and store may be nil.
func NewEngine(cfg config.EngineConfig, cache *SieveScriptCache, store binstore.Store) (*Engine, error) {
	reg, err := compiler.DefaultRegistry()
	if err != nil {
		return nil, err
	}

	opts := compiler.DefaultOptions()
	if cfg.MaxTokens > 0 {
		opts.MaxTokens = cfg.MaxTokens
	}
	if cfg.MaxNesting > 0 {
		opts.MaxNesting = cfg.MaxNesting
	}
	if len(cfg.EnabledExtensions) > 0 {
		opts.Extensions = cfg.EnabledExtensions
	}
	c, err := compiler.New(reg, opts)
	if err != nil {
		return nil, err
	}

	maxSize, err := cfg.GetMaxScriptSize()
	if err != nil {
		return nil, fmt.Errorf("invalid max_script_size: %w", err)
	}
	level, err := sieve.ParseTraceLevel(cfg.TraceLevel)
	if err != nil {
		return nil, err
	}

	return &Engine{
		compiler:        c,
		cache:           cache,
		store:           store,
		maxScriptSize:   maxSize,
		maxInstructions: cfg.MaxInstructions,
		traceLevel:      level,
		fingerprint:     fingerprint(reg, opts),
	}, nil
}

func fingerprint(reg *sieve.Registry, opts compiler.Options) string {
	exts := opts.Extensions
	if exts == nil {
		exts = reg.Extensions()
	}
	exts = append([]string(nil), exts...)
	sort.Strings(exts)
	return fmt.Sprintf("v%d;%s", binary.Version, strings.Join(exts, ","))
}

// Compiler returns the engine's compiler.
func (e *Engine) Compiler() *compiler.Compiler {
	return e.compiler
}

// SetTrace sends the trace of every run to w at the configured level.
func (e *Engine) SetTrace(w io.Writer) {
	e.trace = w
}

// TraceLevel returns the configured trace level.
func (e *Engine) TraceLevel() sieve.TraceLevel {
	return e.traceLevel
}

// ScriptKey returns the store key of a script under this engine's options.
func (e *Engine) ScriptKey(script string) string {
	sum := blake3.Sum256([]byte(e.fingerprint + "\x00" + script))
	return hex.EncodeToString(sum[:])
}

// Compile compiles script, enforcing the size limit.
func (e *Engine) Compile(script string) (*sieve.Program, error) {
	if e.maxScriptSize > 0 && int64(len(script)) > e.maxScriptSize {
		metrics.CompileTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrScriptTooLarge, len(script), e.maxScriptSize)
	}
	return compileScript(e.compiler, script)
}

// Load decodes a stored program and links it against the engine's
// registry. Programs referencing unknown extensions load; they fail when
// the missing code is reached.
func (e *Engine) Load(data []byte) (*sieve.Program, error) {
	bin, err := binary.Unmarshal(data)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("load").Inc()
		return nil, err
	}
	p := sieve.NewProgram(bin, e.compiler.Registry())
	if missing := p.Missing(); len(missing) > 0 {
		logger.Warn("Program links unknown extensions", "extensions", missing)
	}
	return p, nil
}

// Program returns the compiled program for script. The store is consulted
// first; unusable stored programs are replaced by a fresh compilation.
func (e *Engine) Program(ctx context.Context, script string) (*sieve.Program, error) {
	if e.store == nil {
		return e.Compile(script)
	}

	key := e.ScriptKey(script)
	data, err := e.store.Get(ctx, key)
	switch {
	case err == nil:
		p, lerr := e.Load(data)
		if lerr == nil && len(p.Missing()) == 0 {
			return p, nil
		}
		logger.Warn("Stored program unusable, recompiling", "key", key, "error", lerr)
	case !errors.Is(err, binstore.ErrNotFound):
		logger.Warn("Program store read failed", "key", key, "error", err)
	}

	p, err := e.Compile(script)
	if err != nil {
		return nil, err
	}
	if err := e.store.Put(ctx, key, p.Binary().Marshal()); err != nil {
		logger.Warn("Program store write failed", "key", key, "error", err)
	}
	return p, nil
}

// Executor returns an executor for script, reusing a cached one when
// possible.
func (e *Engine) Executor(ctx context.Context, script string) (*SieveExecutor, error) {
	if e.cache == nil {
		return e.newExecutor(ctx, script)
	}
	return e.cache.GetOrCreate(script, func() (*SieveExecutor, error) {
		return e.newExecutor(ctx, script)
	})
}

func (e *Engine) newExecutor(ctx context.Context, script string) (*SieveExecutor, error) {
	p, err := e.Program(ctx, script)
	if err != nil {
		return nil, err
	}
	return e.ProgramExecutor(p), nil
}

// ProgramExecutor wraps p with the engine's run limits and trace.
func (e *Engine) ProgramExecutor(p *sieve.Program) *SieveExecutor {
	ex := NewProgramExecutor(p)
	ex.SetMaxInstructions(e.maxInstructions)
	if e.trace != nil && e.traceLevel > sieve.TraceNone {
		ex.SetTrace(e.trace, e.traceLevel)
	}
	return ex
}

// Evaluate runs script against the message described by msg.
func (e *Engine) Evaluate(ctx context.Context, script string, msg Context) (Result, error) {
	ex, err := e.Executor(ctx, script)
	if err != nil {
		return Result{Action: ActionKeep}, err
	}
	return ex.Evaluate(ctx, msg)
}

// compileScript compiles src and records the outcome.
func compileScript(c *compiler.Compiler, src string) (*sieve.Program, error) {
	start := time.Now()
	p, err := c.CompileString(src)
	metrics.CompileDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.CompileTotal.WithLabelValues("success").Inc()
		logger.Debug("Script compiled", "bytes", len(src), "code_size", p.Len())
	case errors.Is(err, compiler.ErrSyntax):
		metrics.CompileTotal.WithLabelValues("syntax_error").Inc()
	case errors.Is(err, compiler.ErrValidation):
		metrics.CompileTotal.WithLabelValues("validation_error").Inc()
	default:
		metrics.CompileTotal.WithLabelValues("error").Inc()
	}
	return p, err
}
