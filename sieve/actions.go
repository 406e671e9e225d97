package sieve

type stopOperation struct{ ObjectDef }

func (op *stopOperation) Dump(*Dumper, *Address) error { return nil }

func (op *stopOperation) Execute(r *Runtime, _ *Address) error {
	r.Tracef(TraceActions, "stop")
	r.Interrupt()
	return nil
}

type keepOperation struct{ ObjectDef }

func (op *keepOperation) Dump(*Dumper, *Address) error { return nil }

func (op *keepOperation) Execute(r *Runtime, _ *Address) error {
	r.Tracef(TraceActions, "keep")
	res := r.Result()
	res.Keep = true
	res.ImplicitKeep = false
	res.Discarded = false
	return nil
}

type discardOperation struct{ ObjectDef }

func (op *discardOperation) Dump(*Dumper, *Address) error { return nil }

func (op *discardOperation) Execute(r *Runtime, _ *Address) error {
	r.Tracef(TraceActions, "discard")
	res := r.Result()
	res.ImplicitKeep = false
	if !res.Keep && len(res.Mailboxes) == 0 && len(res.Redirects) == 0 {
		res.Discarded = true
	}
	return nil
}

type redirectOperation struct{ ObjectDef }

func (op *redirectOperation) Dump(d *Dumper, addr *Address) error {
	return d.DumpOperand(addr, "address", ClassString)
}

func (op *redirectOperation) Execute(r *Runtime, addr *Address) error {
	to, err := r.Program().ReadString(addr)
	if err != nil {
		return err
	}
	r.Tracef(TraceActions, "redirect message to %q", to)
	r.Result().AddRedirect(to)
	return nil
}

// AddMailbox records a fileinto target, ignoring duplicates, and cancels
// the implicit keep.
func (r *Result) AddMailbox(mailbox string) {
	r.ImplicitKeep = false
	r.Discarded = false
	for _, m := range r.Mailboxes {
		if m == mailbox {
			return
		}
	}
	r.Mailboxes = append(r.Mailboxes, mailbox)
}

// AddRedirect records a redirect target, ignoring duplicates, and cancels
// the implicit keep.
func (r *Result) AddRedirect(to string) {
	r.ImplicitKeep = false
	r.Discarded = false
	for _, a := range r.Redirects {
		if a == to {
			return
		}
	}
	r.Redirects = append(r.Redirects, to)
}
