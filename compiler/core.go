package compiler

import (
	"strings"

	"github.com/foxcpp/go-sieve/parser"

	"github.com/migadu/svbin/sieve"
)

func registerCore(c *Compiler) {
	c.RegisterCommand("stop", "", simpleCommand(sieve.Stop))
	c.RegisterCommand("keep", "", simpleCommand(sieve.Keep))
	c.RegisterCommand("discard", "", simpleCommand(sieve.Discard))
	c.RegisterCommand("redirect", "", stringCommand(sieve.Redirect))

	c.RegisterTest("header", "", matchTest(sieve.HeaderTest, false, 2))
	c.RegisterTest("address", "", matchTest(sieve.AddressTest, true, 2))
	c.RegisterTest("exists", "", existsTest)
	c.RegisterTest("size", "", sizeTest)
}

func simpleCommand(op sieve.Operation) CommandFunc {
	return func(s *Script, cmd *parser.Cmd) error {
		if len(cmd.Args) > 0 {
			return errorf(cmd.Position, "%s takes no arguments", strings.ToLower(cmd.Id))
		}
		s.gen.EmitOperation(op)
		return nil
	}
}

// stringCommand compiles commands taking a single string, such as redirect.
func stringCommand(op sieve.Operation) CommandFunc {
	return func(s *Script, cmd *parser.Cmd) error {
		id := strings.ToLower(cmd.Id)
		if len(cmd.Args) != 1 {
			return errorf(cmd.Position, "%s takes one string argument", id)
		}
		v, ok := String(cmd.Args[0])
		if !ok {
			return errorf(argPosition(cmd.Args[0], cmd.Position), "%s takes one string argument", id)
		}
		if v == "" {
			return errorf(cmd.Position, "%s: empty argument", id)
		}
		s.gen.EmitOperation(op)
		s.gen.EmitString(v)
		return nil
	}
}

// matchTest compiles tests of the form
// test [COMPARATOR] [MATCH-TYPE] [ADDRESS-PART] <lists...> where the last
// list is the key list.
func matchTest(op sieve.Operation, addressParts bool, lists int) TestFunc {
	return func(s *Script, t *parser.Test) error {
		id := strings.ToLower(t.Id)
		opts, rest, err := s.MatchArgs(t.Args, addressParts)
		if err != nil {
			return err
		}
		values, err := stringLists(t.Position, id, rest, lists)
		if err != nil {
			return err
		}
		if err := s.ValidateMatch(t.Position, opts, values[lists-1]); err != nil {
			return err
		}

		g := s.gen
		g.EmitOperation(op)
		g.EmitSourceLine(t.Position.Line)
		g.EmitMatchOptions(opts)
		for _, l := range values {
			if _, err := g.EmitStringList(l); err != nil {
				return err
			}
		}
		return nil
	}
}

func existsTest(s *Script, t *parser.Test) error {
	values, err := stringLists(t.Position, "exists", t.Args, 1)
	if err != nil {
		return err
	}
	s.gen.EmitOperation(sieve.ExistsTest)
	s.gen.EmitSourceLine(t.Position.Line)
	_, err = s.gen.EmitStringList(values[0])
	return err
}

func sizeTest(s *Script, t *parser.Test) error {
	if len(t.Args) != 2 {
		return errorf(t.Position, "size takes :over or :under and a number")
	}
	tag, ok := t.Args[0].(parser.TagArg)
	if !ok {
		return errorf(t.Position, "size takes :over or :under and a number")
	}
	num, ok := t.Args[1].(parser.NumberArg)
	if !ok || num.Value < 0 {
		return errorf(argPosition(t.Args[1], t.Position), "size limit must be a number")
	}

	var op sieve.Operation
	switch strings.ToLower(tag.Value) {
	case "over":
		op = sieve.SizeOver
	case "under":
		op = sieve.SizeUnder
	default:
		return errorf(tag.Position, "unknown tag :%s for size", tag.Value)
	}
	s.gen.EmitOperation(op)
	s.gen.EmitSourceLine(t.Position.Line)
	s.gen.EmitNumber(uint64(num.Value))
	return nil
}
