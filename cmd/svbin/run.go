package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/migadu/svbin/config"
	"github.com/migadu/svbin/logger"
	"github.com/migadu/svbin/sieve"
	"github.com/migadu/svbin/sieveengine"
)

func handleRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	from := fs.String("from", "", "Envelope sender")
	to := fs.String("to", "", "Envelope recipient")
	auth := fs.String("auth", "", "Authenticated user")
	trace := fs.String("trace", "", "Trace level: actions, commands, tests or matching (overrides config)")

	fs.Usage = func() {
		fmt.Printf(`Run a program or script against a message

Usage:
  svbin run [options] file.svbin|script.sieve message.eml

Use - as the message to read it from standard input.

Options:
  -from string     Envelope sender
  -to string       Envelope recipient
  -auth string     Authenticated user
  -trace string    Trace level: actions, commands, tests or matching (overrides config)
  -config string   Path to TOML configuration file (default: config.toml)

Examples:
  svbin run -from alice@example.com -to bob@example.org filter.svbin message.eml
  svbin run -trace matching filter.sieve - < message.eml
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("expected a program and a message")
	}

	s, err := openSession(ctx, fs, *configPath, func(cfg *config.Config) {
		if isFlagSet(fs, "trace") {
			cfg.Engine.TraceLevel = *trace
		}
	})
	if err != nil {
		return err
	}
	defer s.close()

	if s.engine.TraceLevel() > sieve.TraceNone {
		s.engine.SetTrace(os.Stdout)
	}

	p, err := loadProgram(ctx, s.engine, fs.Arg(0))
	if err != nil {
		return err
	}

	msg, err := readMessage(fs.Arg(1), *from, *to)
	if err != nil {
		return err
	}
	msg.AuthUsername = *auth

	start := time.Now()
	result, err := s.engine.ProgramExecutor(p).Evaluate(ctx, msg)
	if err != nil {
		logger.Error("Program run failed, keeping message", "error", err)
	}
	printResult(os.Stdout, result)
	logger.Debug("Program run finished", "action", result.Action, "duration", elapsed(start))
	return err
}

func readMessage(path, from, to string) (sieveengine.Context, error) {
	if path == "-" {
		return sieveengine.ReadContext(os.Stdin, from, to)
	}
	f, err := os.Open(path)
	if err != nil {
		return sieveengine.Context{}, err
	}
	defer f.Close()
	return sieveengine.ReadContext(f, from, to)
}

// printResult writes the delivery decision, one action per line.
func printResult(w io.Writer, r sieveengine.Result) {
	fmt.Fprintf(w, "Result: %s\n", r.Action)
	for _, m := range r.Mailboxes {
		fmt.Fprintf(w, "  fileinto %q\n", m)
	}
	for _, a := range r.Redirects {
		fmt.Fprintf(w, "  redirect %q\n", a)
	}
	if r.Action == sieveengine.ActionKeep || r.Copy {
		fmt.Fprintln(w, "  keep")
	}
}
