// Package compiler translates Sieve script text into programs. Scripts are
// tokenised and parsed with go-sieve; the compiler walks the parse tree and
// emits code through sieve.Generator.
package compiler

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/foxcpp/go-sieve/lexer"
	"github.com/foxcpp/go-sieve/parser"

	"github.com/migadu/svbin/sieve"
)

var (
	// ErrSyntax wraps errors from the lexer and the parser.
	ErrSyntax = errors.New("syntax error")
	// ErrValidation wraps errors in scripts that parse but cannot be
	// compiled.
	ErrValidation = errors.New("validation error")
)

// Error is a validation error at a position in the script.
type Error struct {
	Pos lexer.Position
	Msg string
}

func (e *Error) Error() string {
	return e.Pos.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error {
	return ErrValidation
}

func errorf(pos lexer.Position, format string, args ...any) error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Options control parsing limits and which extensions scripts may require.
type Options struct {
	Filename   string
	MaxTokens  int
	MaxNesting int

	// Extensions are the extension names scripts may require. Nil enables
	// every extension in the registry.
	Extensions []string
}

// DefaultOptions returns the limits go-sieve applies by default.
func DefaultOptions() Options {
	return Options{
		MaxTokens:  5000,
		MaxNesting: 15,
	}
}

// CommandFunc generates code for one command.
type CommandFunc func(s *Script, cmd *parser.Cmd) error

// TestFunc generates the test operation for one test. The operation must
// leave its outcome in the runtime's test result; the compiler emits the
// jump that follows it.
type TestFunc func(s *Script, test *parser.Test) error

type command struct {
	capability string
	fn         CommandFunc
}

type test struct {
	capability string
	fn         TestFunc
}

// Compiler holds the command and test tables. After setup it is safe for
// concurrent use; each Compile call keeps its state in a Script.
type Compiler struct {
	reg      *sieve.Registry
	opts     Options
	enabled  map[string]bool
	commands map[string]command
	tests    map[string]test
}

// New returns a compiler for programs linked against reg.
func New(reg *sieve.Registry, opts Options) (*Compiler, error) {
	c := &Compiler{
		reg:      reg,
		opts:     opts,
		enabled:  make(map[string]bool),
		commands: make(map[string]command),
		tests:    make(map[string]test),
	}

	if opts.Extensions == nil {
		for _, name := range reg.Extensions() {
			c.enabled[name] = true
		}
	} else {
		if err := ValidateExtensions(reg, opts.Extensions); err != nil {
			return nil, err
		}
		for _, name := range opts.Extensions {
			c.enabled[name] = true
		}
	}

	registerCore(c)
	registerExtensions(c)
	return c, nil
}

// Registry returns the registry programs are linked against.
func (c *Compiler) Registry() *sieve.Registry {
	return c.reg
}

// Enabled reports whether scripts may require the capability.
func (c *Compiler) Enabled(capability string) bool {
	return isCoreCapability(capability) || c.enabled[capability]
}

// RegisterCommand adds or replaces a command. A non-empty capability must
// be required by a script before it uses the command.
func (c *Compiler) RegisterCommand(name, capability string, fn CommandFunc) {
	c.commands[strings.ToLower(name)] = command{capability: capability, fn: fn}
}

// RegisterTest adds or replaces a test.
func (c *Compiler) RegisterTest(name, capability string, fn TestFunc) {
	c.tests[strings.ToLower(name)] = test{capability: capability, fn: fn}
}

// CompileString compiles script text.
func (c *Compiler) CompileString(src string) (*sieve.Program, error) {
	return c.Compile(strings.NewReader(src))
}

// Compile reads, parses and compiles a script.
func (c *Compiler) Compile(r io.Reader) (*sieve.Program, error) {
	maxNesting := c.opts.MaxNesting
	toks, err := lexer.Lex(r, &lexer.Options{
		Filename:  c.opts.Filename,
		MaxTokens: c.opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	cmds, err := parser.Parse(lexer.NewStream(toks), &parser.Options{
		MaxBlockNesting: maxNesting,
		MaxTestNesting:  maxNesting,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	s := &Script{
		c:        c,
		gen:      sieve.NewGenerator(),
		required: make(map[string]bool),
	}
	if err := s.block(cmds, true); err != nil {
		return nil, err
	}
	return s.gen.Program(c.reg)
}

// Script is the state of one compilation.
type Script struct {
	c        *Compiler
	gen      *sieve.Generator
	required map[string]bool
}

// Generator returns the generator code is emitted through.
func (s *Script) Generator() *sieve.Generator {
	return s.gen
}

// Required reports whether the script required the capability.
func (s *Script) Required(capability string) bool {
	return s.required[capability]
}

func (s *Script) require(pos lexer.Position, capability string) error {
	if capability == "" || s.required[capability] {
		return nil
	}
	return errorf(pos, "missing require %q", capability)
}

// requireObject checks that the extension an object comes from, if any,
// was required.
func (s *Script) requireObject(pos lexer.Position, o sieve.Object) error {
	if ext := o.Extension(); ext != nil {
		return s.require(pos, ext.Name)
	}
	return nil
}

func (s *Script) block(cmds []parser.Cmd, top bool) error {
	prologue := top
	for i := 0; i < len(cmds); i++ {
		cmd := &cmds[i]
		id := strings.ToLower(cmd.Id)

		if id == "require" {
			if !prologue {
				return errorf(cmd.Position, "require must come before any other command")
			}
			if err := s.requireCmd(cmd); err != nil {
				return err
			}
			continue
		}
		prologue = false

		switch id {
		case "if":
			n, err := s.ifChain(cmds[i:])
			if err != nil {
				return err
			}
			i += n - 1
		case "elsif", "else":
			return errorf(cmd.Position, "%s without if", id)
		default:
			h, ok := s.c.commands[id]
			if !ok {
				return errorf(cmd.Position, "unknown command %q", cmd.Id)
			}
			if err := s.require(cmd.Position, h.capability); err != nil {
				return err
			}
			if len(cmd.Tests) > 0 || cmd.Block != nil {
				return errorf(cmd.Position, "%s takes no tests or block", id)
			}
			if err := h.fn(s, cmd); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Script) requireCmd(cmd *parser.Cmd) error {
	if len(cmd.Args) != 1 || len(cmd.Tests) > 0 || cmd.Block != nil {
		return errorf(cmd.Position, "require takes one string list")
	}
	names, ok := StringList(cmd.Args[0])
	if !ok {
		return errorf(cmd.Position, "require takes one string list")
	}
	for _, name := range names {
		if !s.c.Enabled(name) {
			return errorf(cmd.Position, "unsupported extension %q", name)
		}
		if ext, ok := s.c.reg.Extension(name); ok {
			s.gen.UseExtension(ext)
		}
		s.required[name] = true
	}
	return nil
}

// ifChain compiles an if command and the elsif and else commands that
// follow it. It returns the number of commands consumed.
func (s *Script) ifChain(cmds []parser.Cmd) (int, error) {
	var exit sieve.JumpList
	n := 0
	for n < len(cmds) {
		cmd := &cmds[n]
		id := strings.ToLower(cmd.Id)
		if n > 0 && id != "elsif" && id != "else" {
			break
		}
		n++
		if cmd.Block == nil {
			return 0, errorf(cmd.Position, "%s requires a block", id)
		}
		if len(cmd.Args) > 0 {
			return 0, errorf(cmd.Position, "%s takes no arguments", id)
		}

		if id == "else" {
			if len(cmd.Tests) > 0 {
				return 0, errorf(cmd.Position, "else takes no test")
			}
			if err := s.block(cmd.Block, false); err != nil {
				return 0, err
			}
			break
		}

		if len(cmd.Tests) != 1 {
			return 0, errorf(cmd.Position, "%s requires exactly one test", id)
		}
		var next sieve.JumpList
		if err := s.test(&cmd.Tests[0], &next, false); err != nil {
			return 0, err
		}
		if err := s.block(cmd.Block, false); err != nil {
			return 0, err
		}
		if n < len(cmds) {
			if nid := strings.ToLower(cmds[n].Id); nid == "elsif" || nid == "else" {
				exit.Add(s.gen.EmitJump(sieve.Jmp))
			}
		}
		if err := next.Resolve(s.gen); err != nil {
			return 0, err
		}
	}
	return n, exit.Resolve(s.gen)
}

// test compiles a test so that control transfers through a jump added to
// jumps when the test outcome equals jumpTrue, and falls through
// otherwise.
func (s *Script) test(t *parser.Test, jumps *sieve.JumpList, jumpTrue bool) error {
	id := strings.ToLower(t.Id)
	switch id {
	case "true", "false":
		if len(t.Args) > 0 || len(t.Tests) > 0 {
			return errorf(t.Position, "%s takes no arguments", id)
		}
		if (id == "true") == jumpTrue {
			jumps.Add(s.gen.EmitJump(sieve.Jmp))
		}
		return nil

	case "not":
		if len(t.Args) > 0 || len(t.Tests) != 1 {
			return errorf(t.Position, "not takes exactly one test")
		}
		return s.test(&t.Tests[0], jumps, !jumpTrue)

	case "anyof", "allof":
		if len(t.Args) > 0 || len(t.Tests) == 0 {
			return errorf(t.Position, "%s takes a non-empty test list", id)
		}
		// anyof jumping on true and allof jumping on false jump on the
		// first deciding subtest; otherwise all but the last subtest jump
		// past the end when they decide the outcome.
		short := (id == "anyof") == jumpTrue
		if short {
			for i := range t.Tests {
				if err := s.test(&t.Tests[i], jumps, jumpTrue); err != nil {
					return err
				}
			}
			return nil
		}
		var end sieve.JumpList
		last := len(t.Tests) - 1
		for i := 0; i < last; i++ {
			if err := s.test(&t.Tests[i], &end, !jumpTrue); err != nil {
				return err
			}
		}
		if err := s.test(&t.Tests[last], jumps, jumpTrue); err != nil {
			return err
		}
		return end.Resolve(s.gen)
	}

	h, ok := s.c.tests[id]
	if !ok {
		return errorf(t.Position, "unknown test %q", t.Id)
	}
	if err := s.require(t.Position, h.capability); err != nil {
		return err
	}
	if len(t.Tests) > 0 {
		return errorf(t.Position, "%s takes no nested tests", id)
	}
	if err := h.fn(s, t); err != nil {
		return err
	}
	if jumpTrue {
		jumps.Add(s.gen.EmitJump(sieve.JmpTrue))
	} else {
		jumps.Add(s.gen.EmitJump(sieve.JmpFalse))
	}
	return nil
}
