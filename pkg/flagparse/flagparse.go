// Package flagparse parses the command line into a subcommand plus its
// options. Each subcommand gets its own flag set so "-help" output stays
// scoped to the flags that command actually understands.
package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcus0x62/backuptools/pkg/buildinfo"
	"github.com/marcus0x62/backuptools/pkg/config"
)

// Options carries the flag values for the selected command.
type Options struct {
	// ConfigPath is the target registry location.
	ConfigPath string
	// LogLevel overrides the registry's logLevel when non-empty.
	LogLevel string
	// Verbose mirrors every run-report entry live.
	Verbose bool
	// Force lets init overwrite an existing registry file.
	Force bool
}

func registerGlobalFlags(fs *flag.FlagSet, o *Options) {
	fs.StringVar(&o.ConfigPath, "config", config.DefaultConfigFileName, "Path to the target registry file.")
	fs.StringVar(&o.LogLevel, "log-level", "", "Override the registry's logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
}

func registerRunFlags(fs *flag.FlagSet, o *Options) {
	fs.BoolVar(&o.Verbose, "verbose", false, "Mirror every run-report entry to stdout as it is produced, regardless of verdict.")
}

func registerInitFlags(fs *flag.FlagSet, o *Options) {
	fs.BoolVar(&o.Force, "force", false, "Overwrite an existing registry file.")
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns
// the selected command and its options. A None command with a nil error
// means help was requested and printed.
func Parse(args []string) (Command, Options, error) {
	var o Options

	if len(args) == 0 {
		printTopLevelUsage(os.Stderr)
		return None, o, nil
	}

	cmdStr := strings.ToLower(args[0])
	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		printTopLevelUsage(os.Stderr)
		return None, o, nil
	}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, o, err
	}

	switch command {
	case Maintain:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, &o)
		registerRunFlags(fs, &o)
		fs.Usage = func() {
			printSubcommandUsage(command, "Prune, compact and check every target's repositories, then audit snapshot freshness.", fs)
		}
		err = fs.Parse(args[1:])

	case Audit:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, &o)
		registerRunFlags(fs, &o)
		fs.Usage = func() {
			printSubcommandUsage(command, "Audit snapshot freshness only; no destructive operation is run.", fs)
		}
		err = fs.Parse(args[1:])

	case Init:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, &o)
		registerInitFlags(fs, &o)
		fs.Usage = func() {
			printSubcommandUsage(command, "Write a commented default registry file.", fs)
		}
		err = fs.Parse(args[1:])

	case Version:
		return Version, o, nil
	}

	if err != nil {
		return command, o, err
	}
	return command, o, nil
}

func printTopLevelUsage(out *os.File) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(out, "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(out, "Retention and integrity maintenance for borg and restic repositories.\n\n")
	fmt.Fprintf(out, "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(out, "Commands:\n")
	fmt.Fprintf(out, "  maintain    Prune, compact and check all targets, then audit freshness\n")
	fmt.Fprintf(out, "  audit       Audit snapshot freshness only (read-only)\n")
	fmt.Fprintf(out, "  init        Write a commented default registry file\n")
	fmt.Fprintf(out, "  version     Print the application version\n")
	fmt.Fprintf(out, "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Retention and integrity maintenance for borg and restic repositories.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}
