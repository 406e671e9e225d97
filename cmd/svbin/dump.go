package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/migadu/svbin/binary"
	"github.com/migadu/svbin/pkg/metrics"
	"github.com/migadu/svbin/sieve"
	"github.com/migadu/svbin/sieveengine"
)

func handleDump(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")

	fs.Usage = func() {
		fmt.Printf(`Print the instructions of a program

Usage:
  svbin dump [options] file.svbin|script.sieve

A script is compiled first. Program files are decoded as stored; a dump
that stops early shows where the program is corrupt.

Options:
  -config string   Path to TOML configuration file (default: config.toml)
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected exactly one program or script")
	}

	s, err := openSession(ctx, fs, *configPath, nil)
	if err != nil {
		return err
	}
	defer s.close()

	p, err := loadProgram(ctx, s.engine, fs.Arg(0))
	if err != nil {
		return err
	}
	return dumpProgram(p, os.Stdout)
}

// loadProgram reads a program file, or compiles a script, from path.
// Files are told apart by the program magic.
func loadProgram(ctx context.Context, e *sieveengine.Engine, path string) (*sieve.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if binary.IsProgram(data) {
		p, err := e.Load(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return p, nil
	}
	p, err := e.Program(ctx, string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func dumpProgram(p *sieve.Program, w io.Writer) error {
	if err := sieve.NewDumper(p, w).Dump(); err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("dump").Inc()
		return fmt.Errorf("program dump failed: %w", err)
	}
	return nil
}
