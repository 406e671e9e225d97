package sieve

// Operation is an instruction kind. Its opcode has already been consumed
// when Dump or Execute is called; both must consume exactly the same
// operand bytes.
type Operation interface {
	Object
	Dump(d *Dumper, addr *Address) error
	Execute(r *Runtime, addr *Address) error
}

// Core opcodes.
const (
	OpInvalid   = 0
	OpJmp       = 1
	OpJmpTrue   = 2
	OpJmpFalse  = 3
	OpStop      = 4
	OpKeep      = 5
	OpDiscard   = 6
	OpRedirect  = 7
	OpAddress   = 8
	OpHeader    = 9
	OpExists    = 10
	OpSizeOver  = 11
	OpSizeUnder = 12
)

var (
	Jmp         Operation = &jumpOperation{coreDef("JMP", OpJmp), jumpAlways}
	JmpTrue     Operation = &jumpOperation{coreDef("JMPTRUE", OpJmpTrue), jumpIfTrue}
	JmpFalse    Operation = &jumpOperation{coreDef("JMPFALSE", OpJmpFalse), jumpIfFalse}
	Stop        Operation = &stopOperation{coreDef("STOP", OpStop)}
	Keep        Operation = &keepOperation{coreDef("KEEP", OpKeep)}
	Discard     Operation = &discardOperation{coreDef("DISCARD", OpDiscard)}
	Redirect    Operation = &redirectOperation{coreDef("REDIRECT", OpRedirect)}
	AddressTest Operation = &addressOperation{coreDef("ADDRESS", OpAddress)}
	HeaderTest  Operation = &headerOperation{coreDef("HEADER", OpHeader)}
	ExistsTest  Operation = &existsOperation{coreDef("EXISTS", OpExists)}
	SizeOver    Operation = &sizeOperation{coreDef("SIZE_OVER", OpSizeOver), true}
	SizeUnder   Operation = &sizeOperation{coreDef("SIZE_UNDER", OpSizeUnder), false}
)

var coreOperations = []Operation{
	nil,
	Jmp,
	JmpTrue,
	JmpFalse,
	Stop,
	Keep,
	Discard,
	Redirect,
	AddressTest,
	HeaderTest,
	ExistsTest,
	SizeOver,
	SizeUnder,
}

type jumpKind int

const (
	jumpAlways jumpKind = iota
	jumpIfTrue
	jumpIfFalse
)

type jumpOperation struct {
	ObjectDef
	kind jumpKind
}

func (op *jumpOperation) Dump(d *Dumper, addr *Address) error {
	return d.DumpJump(addr)
}

func (op *jumpOperation) Execute(r *Runtime, addr *Address) error {
	jump := true
	switch op.kind {
	case jumpIfTrue:
		jump = r.TestResult()
		r.Tracef(TraceCommands, "  test result %t", jump)
	case jumpIfFalse:
		jump = !r.TestResult()
		r.Tracef(TraceCommands, "  test result %t", !jump)
	}
	return r.ProgramJump(jump, addr)
}
