package sieve

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Message gives tests access to the message being filtered.
type Message interface {
	HeaderGet(name string) ([]string, error)
	MessageSize() int
}

// Envelope gives tests access to the SMTP envelope.
type Envelope interface {
	EnvelopeFrom() string
	EnvelopeTo() string
	AuthUsername() string
}

// Result collects the actions a run decided on.
type Result struct {
	// Keep is set by an explicit keep.
	Keep bool
	// ImplicitKeep stays set until an action cancels it.
	ImplicitKeep bool
	Mailboxes    []string
	Redirects    []string
	Discarded    bool
}

// Kept reports whether the message is stored in the default mailbox.
func (r *Result) Kept() bool {
	return r.Keep || r.ImplicitKeep
}

// TraceLevel selects how much a run writes to its trace.
type TraceLevel int

const (
	TraceNone TraceLevel = iota
	TraceActions
	TraceCommands
	TraceTests
	TraceMatching
)

var traceLevelNames = []string{"none", "actions", "commands", "tests", "matching"}

func (l TraceLevel) String() string {
	if l < 0 || int(l) >= len(traceLevelNames) {
		return fmt.Sprintf("TraceLevel(%d)", int(l))
	}
	return traceLevelNames[l]
}

// ParseTraceLevel parses a trace level name. The empty string means none.
func ParseTraceLevel(s string) (TraceLevel, error) {
	if s == "" {
		return TraceNone, nil
	}
	for i, name := range traceLevelNames {
		if strings.EqualFold(s, name) {
			return TraceLevel(i), nil
		}
	}
	return TraceNone, fmt.Errorf("unknown trace level %q", s)
}

// Runtime is the state of one run of a Program. A Runtime must not be shared
// between goroutines; concurrent runs each create their own over the same
// Program.
type Runtime struct {
	program  *Program
	message  Message
	envelope Envelope
	result   Result

	pc          Address
	testResult  bool
	interrupted bool

	trace      io.Writer
	traceLevel TraceLevel
	opAddr     Address

	// MaxInstructions bounds the number of instructions a run executes.
	// Zero means no limit.
	MaxInstructions int
	executed        int
}

// NewRuntime prepares a run of p against a message and its envelope.
// env may be nil when no envelope is available.
func NewRuntime(p *Program, msg Message, env Envelope) *Runtime {
	return &Runtime{
		program:  p,
		message:  msg,
		envelope: env,
		result:   Result{ImplicitKeep: true},
	}
}

// SetTrace directs the run's trace to w at the given level.
func (r *Runtime) SetTrace(w io.Writer, level TraceLevel) {
	r.trace = w
	r.traceLevel = level
}

// Program returns the program being run.
func (r *Runtime) Program() *Program { return r.program }

// Message returns the message being filtered.
func (r *Runtime) Message() Message { return r.message }

// Envelope returns the envelope, which may be nil.
func (r *Runtime) Envelope() Envelope { return r.envelope }

// Result returns the actions collected so far.
func (r *Runtime) Result() *Result { return &r.result }

// Executed returns the number of instructions executed.
func (r *Runtime) Executed() int { return r.executed }

// TestResult returns the result of the most recent test.
func (r *Runtime) TestResult() bool { return r.testResult }

// SetTestResult records the result of a test for the next conditional
// jump.
func (r *Runtime) SetTestResult(v bool) {
	r.testResult = v
	r.Tracef(TraceTests, "  => test result: %t", v)
}

// Interrupt ends the run after the current instruction.
func (r *Runtime) Interrupt() { r.interrupted = true }

// Tracing reports whether lines at level are written.
func (r *Runtime) Tracing(level TraceLevel) bool {
	return r.trace != nil && level != TraceNone && r.traceLevel >= level
}

// Tracef writes a trace line prefixed with the current instruction address.
func (r *Runtime) Tracef(level TraceLevel, format string, args ...any) {
	if !r.Tracing(level) {
		return
	}
	fmt.Fprintf(r.trace, "%08x: ", int(r.opAddr))
	fmt.Fprintf(r.trace, format, args...)
	fmt.Fprintln(r.trace)
}

// ProgramJump reads the offset field at *addr. If jump is set the cursor
// moves to the jump target, otherwise past the field.
func (r *Runtime) ProgramJump(jump bool, addr *Address) error {
	target, err := r.program.bin.ReadOffsetTarget(addr)
	if err != nil {
		return err
	}
	if jump {
		r.Tracef(TraceCommands, "  jump to %08x", int(target))
		*addr = target
	}
	return nil
}

// Run executes the program from its first instruction until it ends, an
// instruction stops it or an error occurs. Decoding problems are returned
// as *DecodeError. The partial result is returned along with any error.
func (r *Runtime) Run(ctx context.Context) (*Result, error) {
	end := r.program.Len()
	for r.pc < end && !r.interrupted {
		if err := ctx.Err(); err != nil {
			return &r.result, err
		}
		if r.MaxInstructions > 0 && r.executed >= r.MaxInstructions {
			return &r.result, fmt.Errorf("%w: %d instructions", ErrInstructionLimit, r.executed)
		}

		r.opAddr = r.pc
		op, err := r.program.ReadOperation(&r.pc)
		if err != nil {
			return &r.result, &DecodeError{Address: r.opAddr, Err: err}
		}
		r.executed++
		r.Tracef(TraceCommands, "%s", op.Identifier())

		if err := op.Execute(r, &r.pc); err != nil {
			return &r.result, &DecodeError{Address: r.opAddr, Op: op.Identifier(), Err: err}
		}
	}
	return &r.result, nil
}
