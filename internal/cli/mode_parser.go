package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	ModeAgent   = "agent"
	ModeMigrate = "migrate"
	ModeToken   = "token"
)

// isKnownMode checks if the provided mode name is known.
func isKnownMode(s string) (string, bool) {
	switch s {
	case ModeAgent, "run", "a":
		return ModeAgent, true
	case ModeMigrate, "m":
		return ModeMigrate, true
	case ModeToken, "key", "t":
		return ModeToken, true
	default:
		return "", false
	}
}

// ParseMode supports:
//
//	--mode=<value>
//	<value> (subcommand shorthand), e.g., `agent --config=./config/agent.yaml`
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var out []string

	for i := range args {
		arg := args[i]
		if after, ok := strings.CutPrefix(arg, "--mode="); ok {
			mode = after
			continue
		}

		if mode == "" {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return "", out, errors.New("no mode specified: use --mode=<mode>")
	}

	m, ok := isKnownMode(mode)
	if !ok {
		return "", out, fmt.Errorf("unknown mode %q", mode)
	}

	return m, out, nil
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, "\033[36m") // cyan

	fmt.Fprintln(w, `Usage:
  ./driver-agent --mode=<mode> [flags]

Modes:
  agent      Hold the driver's dispatch session and serve the local console API
  migrate    Apply the ride journal migrations and exit
  token      Mint a development JWT (DRIVER or CONSOLE)

Examples:
  ./driver-agent --mode=agent --config=./config/agent.yaml
  ./driver-agent --mode=migrate --config=./config/agent.yaml
  ./driver-agent --mode=token --subject=64f1c2e8a1b2c3d4e5f60718 --role=DRIVER --secret='<secret>'`)

	fmt.Fprint(w, "\033[0m") // reset
}

// AttachUsage wires a concise per-mode usage to a FlagSet.
func AttachUsage(fs *flag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ./driver-agent --mode=%s [flags]\n", mode)
		fs.PrintDefaults()
	}
}
