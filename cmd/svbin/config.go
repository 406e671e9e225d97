package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/migadu/svbin/compiler"
	"github.com/migadu/svbin/config"
)

func handleConfigCommand(args []string) error {
	if len(args) == 0 {
		printConfigUsage()
		return fmt.Errorf("missing config subcommand")
	}

	switch args[0] {
	case "validate":
		return handleConfigValidate(args[1:])
	case "dump":
		return handleConfigDump(args[1:])
	case "help", "--help", "-h":
		printConfigUsage()
		return nil
	default:
		printConfigUsage()
		return fmt.Errorf("unknown config subcommand: %s", args[0])
	}
}

func printConfigUsage() {
	fmt.Printf(`Configuration management

Usage:
  svbin config <subcommand> [options]

Subcommands:
  validate  Check the configuration file and the enabled extensions
  dump      Print the effective configuration, defaults included

Examples:
  svbin config validate -config /etc/svbin/config.toml
  svbin config dump -config /etc/svbin/config.toml
`)
}

func handleConfigValidate(args []string) error {
	fs := flag.NewFlagSet("config validate", flag.ContinueOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, true)
	if err != nil {
		return err
	}
	if err := validateEngine(cfg.Engine); err != nil {
		return err
	}
	fmt.Printf("Configuration file '%s' is valid\n", *configPath)
	return nil
}

// validateEngine checks settings only the engine packages can judge.
func validateEngine(cfg config.EngineConfig) error {
	if len(cfg.EnabledExtensions) == 0 {
		return nil
	}
	reg, err := compiler.DefaultRegistry()
	if err != nil {
		return err
	}
	return compiler.ValidateExtensions(reg, cfg.EnabledExtensions)
}

func handleConfigDump(args []string) error {
	fs := flag.NewFlagSet("config dump", flag.ContinueOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, isFlagSet(fs, "config"))
	if err != nil {
		return err
	}
	return dumpConfig(os.Stdout, cfg)
}

func dumpConfig(w io.Writer, cfg config.Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return nil
}
