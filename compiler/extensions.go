package compiler

import (
	"github.com/foxcpp/go-sieve/parser"

	"github.com/migadu/svbin/ext/envelope"
	"github.com/migadu/svbin/ext/fileinto"
)

func registerExtensions(c *Compiler) {
	if _, ok := c.reg.Extension(fileinto.Name); ok {
		c.RegisterCommand("fileinto", fileinto.Name, stringCommand(fileinto.Operation))
	}
	if _, ok := c.reg.Extension(envelope.Name); ok {
		c.RegisterTest("envelope", envelope.Name, envelopeTest)
	}
}

func envelopeTest(s *Script, t *parser.Test) error {
	_, rest, err := s.MatchArgs(t.Args, true)
	if err != nil {
		return err
	}
	if len(rest) == 2 {
		parts, _ := StringList(rest[0])
		for _, p := range parts {
			if !envelope.ValidPart(p) {
				return errorf(argPosition(rest[0], t.Position), "unknown envelope part %q", p)
			}
		}
	}
	return matchTest(envelope.Operation, true, 2)(s, t)
}
