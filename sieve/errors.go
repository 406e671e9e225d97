package sieve

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt reports bytecode that decodes but is inconsistent, such as
	// an invalid opcode or a string list whose skip offset does not match
	// its contents.
	ErrCorrupt = errors.New("corrupt program")

	// ErrUnknownExtension is returned when an instruction or operand refers
	// to an extension index the running system has no tables for.
	ErrUnknownExtension = errors.New("unknown extension")

	// ErrUnresolvedJump is returned by Generator.Program when offset fields
	// were emitted but never resolved.
	ErrUnresolvedJump = errors.New("unresolved jump offset")

	// ErrInstructionLimit is returned when a run exceeds its instruction
	// budget.
	ErrInstructionLimit = errors.New("instruction limit exceeded")
)

// DecodeError wraps a failure that happened while decoding or executing the
// instruction at Address.
type DecodeError struct {
	Address Address
	Op      string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%08x: %v", int(e.Address), e.Err)
	}
	return fmt.Sprintf("%08x: %s: %v", int(e.Address), e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
