// Package cmd implements the pulse CLI commands.
//
// The command structure follows standard Go CLI patterns with a root command
// that dispatches to subcommands (run, check, version).
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Version information set at build time.
var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
)

// Command represents a CLI command.
type Command struct {
	Name        string
	Short       string
	Long        string
	Usage       string
	Run         func(env *Env, args []string) error
	SubCommands []*Command
}

// Env carries the global flags and output stream to a command.
type Env struct {
	// Dir is the directory the project root is searched from.
	Dir string
	Out io.Writer
}

var rootCmd = &Command{
	Name:  "pulse",
	Short: "Pulse - named events and per-object timers for UI main loops",
	Long: `Pulse drives named-event dispatch and per-object timers from a
main-loop heartbeat.

Use "pulse <command> --help" for more information about a command.`,
	Usage: "pulse <command> [flags]",
}

// Commands registered with the CLI.
var commands = make(map[string]*Command)

// RegisterCommand adds a command to the CLI.
func RegisterCommand(cmd *Command) {
	commands[cmd.Name] = cmd
	rootCmd.SubCommands = append(rootCmd.SubCommands, cmd)
}

// Execute runs the CLI with the process arguments.
func Execute() error {
	return execute(os.Args[1:], os.Stdout)
}

func execute(args []string, out io.Writer) error {
	env := &Env{Out: out}

	if len(args) == 0 {
		printHelp(out, rootCmd)
		return nil
	}

	// Handle global flags and extract -C / --dir
	var filteredArgs []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-h", "--help", "help":
			if len(filteredArgs) == 0 {
				printHelp(out, rootCmd)
				return nil
			}
			filteredArgs = append(filteredArgs, arg)
		case "-v", "--version":
			if len(filteredArgs) == 0 {
				printVersion(out)
				return nil
			}
			filteredArgs = append(filteredArgs, arg)
		case "-C", "--dir":
			if i+1 < len(args) {
				env.Dir = args[i+1]
				i++
			} else {
				return fmt.Errorf("%s requires a directory path", arg)
			}
		default:
			if strings.HasPrefix(arg, "--dir=") {
				env.Dir = strings.TrimPrefix(arg, "--dir=")
				continue
			}
			filteredArgs = append(filteredArgs, arg)
		}
	}
	args = filteredArgs

	if len(args) == 0 {
		printHelp(out, rootCmd)
		return nil
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(out, "Error: unknown command %q\n\n", cmdName)
		printHelp(out, rootCmd)
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	cmdArgs := args[1:]
	for _, arg := range cmdArgs {
		if arg == "-h" || arg == "--help" || arg == "help" {
			printCommandHelp(out, cmd)
			return nil
		}
	}

	return cmd.Run(env, cmdArgs)
}

func printHelp(out io.Writer, cmd *Command) {
	fmt.Fprintln(out, cmd.Long)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintf(out, "  %s\n", cmd.Usage)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	for _, sub := range cmd.SubCommands {
		fmt.Fprintf(out, "  %-14s %s\n", sub.Name, sub.Short)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	fmt.Fprintln(out, "  -h, --help           Show help for a command")
	fmt.Fprintln(out, "  -v, --version        Show version information")
	fmt.Fprintln(out, "  -C, --dir DIR        Look for the project from DIR (default: current directory)")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Examples:")
	fmt.Fprintln(out, "  pulse run                 Run the demo scene on a simulated clock")
	fmt.Fprintln(out, "  pulse run --realtime      Run the demo scene at the configured tick period")
	fmt.Fprintln(out, "  pulse check               Validate pulse.yaml")
}

func printCommandHelp(out io.Writer, cmd *Command) {
	fmt.Fprintln(out, cmd.Long)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintf(out, "  %s\n", cmd.Usage)
}

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "pulse version %s (built %s)\n", Version, BuildTime)
}
