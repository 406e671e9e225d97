package compiler

import (
	"strings"

	"github.com/foxcpp/go-sieve/lexer"
	"github.com/foxcpp/go-sieve/parser"

	"github.com/migadu/svbin/sieve"
)

// StringList returns the value of a string or string-list argument.
func StringList(arg parser.Arg) ([]string, bool) {
	switch a := arg.(type) {
	case parser.StringArg:
		return []string{a.Value}, true
	case parser.StringListArg:
		return a.Value, true
	}
	return nil, false
}

// String returns the value of a string argument. A string list with a
// single item is accepted as well.
func String(arg parser.Arg) (string, bool) {
	switch a := arg.(type) {
	case parser.StringArg:
		return a.Value, true
	case parser.StringListArg:
		if len(a.Value) == 1 {
			return a.Value[0], true
		}
	}
	return "", false
}

func argPosition(arg parser.Arg, fallback lexer.Position) lexer.Position {
	line, col := arg.LineCol()
	if line == 0 {
		return fallback
	}
	return lexer.Position{File: fallback.File, Line: line, Col: col}
}

// MatchArgs splits the arguments of a matching test into its match
// options and its positional arguments. Address part tags are accepted
// only when addressParts is set.
func (s *Script) MatchArgs(args []parser.Arg, addressParts bool) (sieve.MatchOptions, []parser.Arg, error) {
	var opts sieve.MatchOptions
	var rest []parser.Arg

	for i := 0; i < len(args); i++ {
		tag, ok := args[i].(parser.TagArg)
		if !ok {
			rest = append(rest, args[i])
			continue
		}
		if len(rest) > 0 {
			return opts, nil, errorf(tag.Position, "tag :%s after positional arguments", tag.Value)
		}
		name := strings.ToLower(tag.Value)

		if name == "comparator" {
			if opts.Comparator != nil {
				return opts, nil, errorf(tag.Position, "duplicate :comparator")
			}
			if i+1 >= len(args) {
				return opts, nil, errorf(tag.Position, ":comparator requires a comparator name")
			}
			i++
			cmpName, ok := String(args[i])
			if !ok {
				return opts, nil, errorf(tag.Position, ":comparator requires a comparator name")
			}
			cmp, ok := s.c.reg.Comparator(cmpName)
			if !ok {
				return opts, nil, errorf(argPosition(args[i], tag.Position), "unknown comparator %q", cmpName)
			}
			if err := s.requireObject(tag.Position, cmp); err != nil {
				return opts, nil, err
			}
			opts.Comparator = cmp
			continue
		}

		if mt, ok := s.c.reg.MatchType(name); ok {
			if opts.MatchType != nil {
				return opts, nil, errorf(tag.Position, "more than one match type")
			}
			if err := s.requireObject(tag.Position, mt); err != nil {
				return opts, nil, err
			}
			opts.MatchType = mt
			continue
		}

		if part, ok := s.c.reg.AddressPart(name); ok && addressParts {
			if opts.AddressPart != nil {
				return opts, nil, errorf(tag.Position, "more than one address part")
			}
			if err := s.requireObject(tag.Position, part); err != nil {
				return opts, nil, err
			}
			opts.AddressPart = part
			continue
		}

		return opts, nil, errorf(tag.Position, "unknown tag :%s", tag.Value)
	}
	return opts, rest, nil
}

// ValidateMatch runs the match type's context check against the comparator
// and the constant keys.
func (s *Script) ValidateMatch(pos lexer.Position, opts sieve.MatchOptions, keys []string) error {
	full := sieve.DefaultMatchOptions()
	if opts.Comparator != nil {
		full.Comparator = opts.Comparator
	}
	if opts.MatchType != nil {
		full.MatchType = opts.MatchType
	}
	v, ok := full.MatchType.(sieve.ContextValidator)
	if !ok {
		return nil
	}
	if err := v.ValidateContext(full.Comparator, keys); err != nil {
		return errorf(pos, "%v", err)
	}
	return nil
}

// stringLists reads n string-list arguments.
func stringLists(pos lexer.Position, name string, args []parser.Arg, n int) ([][]string, error) {
	if len(args) != n {
		return nil, errorf(pos, "%s takes %d string list arguments, got %d", name, n, len(args))
	}
	lists := make([][]string, n)
	for i, arg := range args {
		l, ok := StringList(arg)
		if !ok {
			return nil, errorf(argPosition(arg, pos), "%s: argument %d must be a string list", name, i+1)
		}
		lists[i] = l
	}
	return lists, nil
}
