package sieveengine

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/migadu/svbin/binary"
	"github.com/migadu/svbin/compiler"
	"github.com/migadu/svbin/logger"
	"github.com/migadu/svbin/pkg/metrics"
	"github.com/migadu/svbin/sieve"
)

type Action string

const (
	ActionKeep     Action = "keep"
	ActionDiscard  Action = "discard"
	ActionFileInto Action = "fileinto"
	ActionRedirect Action = "redirect"
)

type Result struct {
	Action     Action
	Mailbox    string   // used for fileinto
	RedirectTo string   // used for redirect
	Copy       bool     // a copy is also kept in the default mailbox
	Mailboxes  []string // every fileinto target, in script order
	Redirects  []string // every redirect target, in script order
}

type Context struct {
	EnvelopeFrom string
	EnvelopeTo   string
	AuthUsername string
	Header       map[string][]string
	Body         string
	// Size is the size of the whole message. When zero the body length is
	// used.
	Size int
}

type Executor interface {
	Evaluate(evalCtx context.Context, ctx Context) (Result, error)
}

// SieveExecutor runs one compiled program. It is safe for concurrent use;
// every evaluation gets its own runtime.
type SieveExecutor struct {
	program         *sieve.Program
	maxInstructions int
	trace           io.Writer
	traceLevel      sieve.TraceLevel
}

// NewSieveExecutor compiles scriptContent with every shipped extension
// enabled.
func NewSieveExecutor(scriptContent string) (*SieveExecutor, error) {
	return NewSieveExecutorWithExtensions(scriptContent, nil)
}

// NewSieveExecutorWithExtensions compiles scriptContent allowing only the
// given extensions. If enabledExtensions is nil, all extensions are allowed.
func NewSieveExecutorWithExtensions(scriptContent string, enabledExtensions []string) (*SieveExecutor, error) {
	reg, err := compiler.DefaultRegistry()
	if err != nil {
		return nil, err
	}
	opts := compiler.DefaultOptions()
	opts.Extensions = enabledExtensions
	c, err := compiler.New(reg, opts)
	if err != nil {
		return nil, err
	}
	p, err := compileScript(c, scriptContent)
	if err != nil {
		return nil, err
	}
	return NewProgramExecutor(p), nil
}

// NewProgramExecutor wraps an already compiled or loaded program.
func NewProgramExecutor(p *sieve.Program) *SieveExecutor {
	return &SieveExecutor{program: p}
}

// Program returns the program the executor runs.
func (e *SieveExecutor) Program() *sieve.Program {
	return e.program
}

// SetMaxInstructions bounds every run. Zero means no limit.
func (e *SieveExecutor) SetMaxInstructions(n int) {
	e.maxInstructions = n
}

// SetTrace sends the trace of every run to w. The writer must be safe for
// concurrent use if the executor is.
func (e *SieveExecutor) SetTrace(w io.Writer, level sieve.TraceLevel) {
	e.trace = w
	e.traceLevel = level
}

// Evaluate runs the program against the message described by ctx.
func (e *SieveExecutor) Evaluate(evalCtx context.Context, ctx Context) (Result, error) {
	envelope := &SieveEnvelope{
		From: ctx.EnvelopeFrom,
		To:   ctx.EnvelopeTo,
		Auth: ctx.AuthUsername,
	}
	size := ctx.Size
	if size == 0 {
		size = len(ctx.Body)
	}
	message := &SieveMessage{
		Headers: ctx.Header,
		Body:    []byte(ctx.Body),
		Size:    size,
	}

	r := sieve.NewRuntime(e.program, message, envelope)
	r.MaxInstructions = e.maxInstructions
	if e.trace != nil {
		r.SetTrace(e.trace, e.traceLevel)
	}

	data, err := r.Run(evalCtx)
	metrics.InstructionsPerRun.Observe(float64(r.Executed()))
	if err != nil {
		var decodeErr *sieve.DecodeError
		switch {
		case errors.Is(err, sieve.ErrInstructionLimit):
			metrics.ExecuteTotal.WithLabelValues("limit").Inc()
		case errors.As(err, &decodeErr):
			metrics.ExecuteTotal.WithLabelValues("error").Inc()
			if isDecodeFailure(err) {
				metrics.DecodeErrorsTotal.WithLabelValues("execute").Inc()
				logger.Error("Program decode failed", "address", decodeErr.Address, "op", decodeErr.Op, "error", decodeErr.Err)
			}
		default:
			metrics.ExecuteTotal.WithLabelValues("error").Inc()
		}
		return Result{Action: ActionKeep}, err
	}

	result := mapResult(data)
	metrics.ExecuteTotal.WithLabelValues(string(result.Action)).Inc()
	return result, nil
}

// isDecodeFailure reports errors caused by the program bytes rather than by
// the message being filtered.
func isDecodeFailure(err error) bool {
	return errors.Is(err, sieve.ErrCorrupt) ||
		errors.Is(err, sieve.ErrUnknownExtension) ||
		errors.Is(err, binary.ErrOutOfBounds) ||
		errors.Is(err, binary.ErrMalformed)
}

// mapResult reduces the runtime result to the delivery decision. A fileinto
// takes precedence over a redirect; Copy reports that the message is also
// kept in the default mailbox.
func mapResult(data *sieve.Result) Result {
	result := Result{
		Action:    ActionKeep,
		Mailboxes: data.Mailboxes,
		Redirects: data.Redirects,
	}

	if len(data.Mailboxes) > 0 {
		result.Action = ActionFileInto
		result.Mailbox = data.Mailboxes[0]
		result.Copy = data.ImplicitKeep || data.Keep
	} else if len(data.Redirects) > 0 {
		result.Action = ActionRedirect
		result.RedirectTo = data.Redirects[0]
		result.Copy = data.ImplicitKeep || data.Keep
	} else if !data.Keep && !data.ImplicitKeep {
		result.Action = ActionDiscard
	}
	return result
}

// SieveEnvelope implements the sieve.Envelope interface
type SieveEnvelope struct {
	From string
	To   string
	Auth string
}

func (e *SieveEnvelope) EnvelopeFrom() string {
	return e.From
}

func (e *SieveEnvelope) EnvelopeTo() string {
	return e.To
}

func (e *SieveEnvelope) AuthUsername() string {
	return e.Auth
}

// SieveMessage implements the sieve.Message interface. Header names are
// matched case-insensitively.
type SieveMessage struct {
	Headers map[string][]string
	Body    []byte
	Size    int

	lowered map[string][]string
}

func (m *SieveMessage) HeaderGet(key string) ([]string, error) {
	if v, ok := m.Headers[key]; ok {
		return v, nil
	}
	if m.lowered == nil {
		m.lowered = make(map[string][]string, len(m.Headers))
		for k, v := range m.Headers {
			lk := strings.ToLower(k)
			m.lowered[lk] = append(m.lowered[lk], v...)
		}
	}
	return m.lowered[strings.ToLower(key)], nil
}

func (m *SieveMessage) MessageSize() int {
	return m.Size
}
