package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"driver-dispatch/cmd/agent"
	"driver-dispatch/internal/cli"
)

const defaultConfig = "./config/agent.yaml"

// errUsage marks bad invocations; they exit with 2 instead of 1.
var errUsage = errors.New("usage")

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "--help" || os.Args[1] == "-h") {
		cli.PrintUsage(os.Stdout)
		return
	}

	mode, args, err := cli.ParseMode(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, mode, args, os.Stdout)
	stop()

	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, mode string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(mode, flag.ContinueOnError)
	cli.AttachUsage(fs, mode)

	switch mode {
	case cli.ModeAgent, cli.ModeMigrate:
		cfgPath := fs.String("config", defaultConfig, "Path to the YAML config file")
		if err := parse(fs, args); err != nil {
			return err
		}
		if mode == cli.ModeMigrate {
			return agent.Migrate(ctx, *cfgPath)
		}
		return agent.Run(ctx, *cfgPath)

	case cli.ModeToken:
		subject := fs.String("subject", "", "Token subject (driver id for DRIVER tokens)")
		role := fs.String("role", "DRIVER", "Token role: DRIVER | CONSOLE")
		vehicle := fs.String("vehicle-type", "", "Vehicle type claim for DRIVER tokens")
		secret := fs.String("secret", "", "JWT HMAC secret (HS256)")
		ttl := fs.Duration("ttl", 2*time.Hour, "Token lifetime")
		if err := parse(fs, args); err != nil {
			return err
		}
		if *subject == "" || *secret == "" {
			fs.Usage()
			return fmt.Errorf("%w: --subject and --secret are required", errUsage)
		}

		token, claims, err := cli.GenerateToken(*secret, *subject, *role, *vehicle, *ttl)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "TOKEN:\n%s\n\nCLAIMS:\n", token)
		fmt.Fprintf(out, "  sub:  %s\n  role: %s\n", claims.Subject, claims.Role)
		fmt.Fprintf(out, "  iat:  %s\n  exp:  %s\n",
			claims.IssuedAt.UTC().Format(time.RFC3339), claims.ExpiresAt.UTC().Format(time.RFC3339))
		return nil
	}

	return fmt.Errorf("%w: unknown mode %q", errUsage, mode)
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}
