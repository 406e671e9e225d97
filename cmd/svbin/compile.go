package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/migadu/svbin/compiler"
	"github.com/migadu/svbin/logger"
	"github.com/migadu/svbin/sieve"
	"github.com/migadu/svbin/sieveengine"
)

func handleCompile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	output := fs.String("o", "", "Output file (default: script name with .svbin extension)")

	fs.Usage = func() {
		fmt.Printf(`Compile a script to a program file

Usage:
  svbin compile [options] script.sieve

Options:
  -o string        Output file (default: script name with .svbin extension)
  -config string   Path to TOML configuration file (default: config.toml)

Examples:
  svbin compile filter.sieve
  svbin compile -o /var/lib/svbin/filter.svbin filter.sieve
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected exactly one script")
	}
	scriptPath := fs.Arg(0)

	s, err := openSession(ctx, fs, *configPath, nil)
	if err != nil {
		return err
	}
	defer s.close()

	out := *output
	if out == "" {
		out = outputPath(scriptPath)
	}

	start := time.Now()
	p, err := compileFile(s.engine, scriptPath)
	if err != nil {
		return err
	}
	if err := p.Binary().Save(out); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	logger.Info("Compiled script", "script", scriptPath, "output", out, "code_size", p.Len(), "duration", elapsed(start))
	return nil
}

func handleCheck(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")

	fs.Usage = func() {
		fmt.Printf(`Compile scripts and report errors without writing output

Usage:
  svbin check [options] script.sieve...

Options:
  -config string   Path to TOML configuration file (default: config.toml)
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("expected at least one script")
	}

	s, err := openSession(ctx, fs, *configPath, nil)
	if err != nil {
		return err
	}
	defer s.close()

	failed := 0
	for _, path := range fs.Args() {
		if _, err := compileFile(s.engine, path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			failed++
			continue
		}
		fmt.Printf("%s: ok\n", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scripts failed", failed, fs.NArg())
	}
	return nil
}

// compileFile compiles the script at path. Errors are prefixed with the
// file name; positioned compiler errors read as file:line:col.
func compileFile(e *sieveengine.Engine, path string) (*sieve.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := e.Compile(string(src))
	if err != nil {
		var cerr *compiler.Error
		if errors.As(err, &cerr) {
			return nil, fmt.Errorf("%s:%w", path, err)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// outputPath derives the program file name from a script name.
func outputPath(scriptPath string) string {
	ext := filepath.Ext(scriptPath)
	if ext == ".sieve" || ext == ".siv" {
		return strings.TrimSuffix(scriptPath, ext) + ".svbin"
	}
	return scriptPath + ".svbin"
}
