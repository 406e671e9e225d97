// Package fileinto implements the Sieve fileinto action (RFC 5228 section
// 4.1).
package fileinto

import "github.com/migadu/svbin/sieve"

const Name = "fileinto"

var (
	Extension = sieve.NewExtension(Name)
	Operation = &fileintoOperation{Extension.Def("FILEINTO", 0)}
)

func init() {
	Extension.Operations = []sieve.Operation{Operation}
}

type fileintoOperation struct{ sieve.ObjectDef }

func (op *fileintoOperation) Dump(d *sieve.Dumper, addr *sieve.Address) error {
	return d.DumpOperand(addr, "folder", sieve.ClassString)
}

func (op *fileintoOperation) Execute(r *sieve.Runtime, addr *sieve.Address) error {
	folder, err := r.Program().ReadString(addr)
	if err != nil {
		return err
	}
	r.Tracef(sieve.TraceActions, "store message in folder %q", folder)
	r.Result().AddMailbox(folder)
	return nil
}
