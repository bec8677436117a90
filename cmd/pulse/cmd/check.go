package cmd

import (
	"fmt"

	"github.com/go-drift/pulse/cmd/pulse/internal/config"
)

func init() {
	RegisterCommand(&Command{
		Name:  "check",
		Short: "Validate pulse.yaml",
		Long: `Resolve and validate the project's pulse.yaml.

The project root is the nearest directory containing go.mod. Outside a
module, pulse.yaml is read from the current directory. A missing file is
not an error; the defaults are printed instead.`,
		Usage: "pulse check",
		Run:   runCheck,
	})
}

func runCheck(env *Env, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("check takes no arguments\n\nUsage: pulse check")
	}
	cfg, err := loadConfig(env)
	if err != nil {
		return err
	}

	module := cfg.ModulePath
	if module == "" {
		module = "(none)"
	}
	fmt.Fprintf(env.Out, "Project: %s\n", cfg.AppName)
	fmt.Fprintf(env.Out, "  root:           %s\n", cfg.Root)
	fmt.Fprintf(env.Out, "  module:         %s\n", module)
	fmt.Fprintf(env.Out, "  config:         %s\n", config.FileName)
	fmt.Fprintf(env.Out, "  engine version: %s\n", cfg.EngineVersion)
	fmt.Fprintf(env.Out, "  workers:        %d\n", cfg.Engine.Workers)
	fmt.Fprintf(env.Out, "  queue depth:    %d\n", cfg.Engine.QueueDepth)
	fmt.Fprintf(env.Out, "  tick period:    %s\n", cfg.Engine.TickPeriod)
	fmt.Fprintf(env.Out, "  trace samples:  %d\n", cfg.Engine.TraceSamples)
	fmt.Fprintf(env.Out, "  log level:      %s\n", cfg.LogLevel)
	fmt.Fprintln(env.Out, "OK")
	return nil
}
