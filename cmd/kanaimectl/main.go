// kanaimectl is the control CLI for kanaime.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

var (
	configPath = flag.String("config", "", "path to config file")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage(os.Stderr)
		os.Exit(1)
	}

	if err := dispatch(os.Stdout, *configPath, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// usageError is reported with the command's usage line.
type usageError string

func (e usageError) Error() string { return "usage: kanaimectl " + string(e) }

func dispatch(w io.Writer, cfgPath string, args []string) error {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "replay":
		return cmdReplay(w, cfgPath, rest)
	case "memory":
		if len(rest) < 1 {
			return usageError("memory list|forget|prune|stats")
		}
		return cmdMemory(w, cfgPath, rest[0], rest[1:])
	case "config":
		if len(rest) < 1 {
			return usageError("config show|check")
		}
		return cmdConfig(w, cfgPath, rest[0])
	case "engine":
		if len(rest) < 1 || rest[0] != "ping" {
			return usageError("engine ping")
		}
		return cmdEnginePing(w, cfgPath)
	case "help":
		usage(w)
		return nil
	default:
		usage(os.Stderr)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `kanaimectl - Control utility for kanaime

Usage: kanaimectl [options] <command> [args]

Commands:
  replay [-text s] [-json] [-metrics] <keys>
                                    Run keys through a session and show each step
  memory list [n]                   Show the most recently used selections
  memory forget <reading>           Forget selections for a reading
  memory prune <days>               Forget selections unused for <days> days
  memory stats                      Summarise the learning memory
  config show                       Print the effective configuration
  config check                      Validate the configuration
  engine ping                       Check that the conversion engine answers
  help                              Show this help message

Keys are typed as text; special keys use <space>, <enter>, <esc>, <bs>,
<up>, <down> and modifiers like <c-a>.

Options:
  -config <path>  Path to config file (default: ~/.config/kanaime/config.toml)`)
}
