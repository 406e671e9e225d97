package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/migadu/svbin/binstore"
	"github.com/migadu/svbin/config"
	"github.com/migadu/svbin/logger"
	"github.com/migadu/svbin/pkg/metrics"
	"github.com/migadu/svbin/sieveengine"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := os.Args[1]
	var err error
	switch command {
	case "compile":
		err = handleCompile(ctx, os.Args[2:])
	case "check":
		err = handleCheck(ctx, os.Args[2:])
	case "dump":
		err = handleDump(ctx, os.Args[2:])
	case "run":
		err = handleRun(ctx, os.Args[2:])
	case "config":
		err = handleConfigCommand(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "svbin %s: %v\n", command, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`svbin - Sieve bytecode compiler and runner

Usage:
  svbin <command> [options]

Commands:
  compile   Compile a script to a program file
  check     Compile a script and report errors without writing output
  dump      Print the instructions of a program or script
  run       Run a program or script against a message
  config    Validate or print the configuration
  help      Show this help message

Examples:
  svbin compile -o filter.svbin filter.sieve
  svbin dump filter.svbin
  svbin run -from alice@example.com -to bob@example.org filter.svbin message.eml
  svbin run -trace tests filter.sieve message.eml
  svbin config validate -config /etc/svbin/config.toml

Use 'svbin <command> -h' for more information about a command.
`)
}

// loadConfig reads the configuration file. A missing default file is not
// an error; a missing file named explicitly is.
func loadConfig(path string, explicit bool) (config.Config, error) {
	cfg := config.NewDefaultConfig()
	if err := config.LoadConfigFromFile(path, &cfg); err != nil {
		if !os.IsNotExist(err) || explicit {
			return cfg, fmt.Errorf("failed to load configuration file '%s': %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// session holds what every command needs after setup.
type session struct {
	cfg     config.Config
	engine  *sieveengine.Engine
	store   binstore.Store
	logFile *os.File
}

// openSession loads the configuration, sets up logging and builds the
// engine. cfgHook may adjust the configuration before it is used.
func openSession(ctx context.Context, fs *flag.FlagSet, configPath string, cfgHook func(*config.Config)) (*session, error) {
	cfg, err := loadConfig(configPath, isFlagSet(fs, "config"))
	if err != nil {
		return nil, err
	}
	if cfgHook != nil {
		cfgHook(&cfg)
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logFile: logFile}
	s.store, err = binstore.Open(ctx, cfg.Store)
	if err != nil {
		s.close()
		return nil, err
	}

	var cache *sieveengine.SieveScriptCache
	if cfg.Cache.MaxEntries > 0 {
		ttl, _ := cfg.Cache.GetTTL()
		cache = sieveengine.NewSieveScriptCache(cfg.Cache.MaxEntries, ttl)
	}

	s.engine, err = sieveengine.NewEngine(cfg.Engine, cache, s.store)
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// close writes the metrics textfile and releases resources.
func (s *session) close() {
	if s.cfg.Metrics.Enabled {
		if err := metrics.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
			logger.Warn("Failed to write metrics textfile", "path", s.cfg.Metrics.Textfile, "error", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.Warn("Failed to close program store", "error", err)
		}
	}
	if s.logFile != nil {
		s.logFile.Close()
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func elapsed(start time.Time) string {
	return time.Since(start).Round(time.Microsecond).String()
}
