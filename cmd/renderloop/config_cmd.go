package main

import (
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-renderloop/internal/config"
)

// runConfig prints the effective configuration as YAML: defaults, then the
// config file, then RENDERLOOP_* overrides.
func runConfig(args []string, env *Environment) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	var common commonFlags
	addCommonFlags(fs, &common)
	fs.Usage = func() { printConfigUsage(env.Stderr) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(common)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	data, err := config.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	_, err = env.Stdout.Write(data)
	return err
}
