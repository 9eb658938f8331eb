package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/royaltyops/royaltyops/cmd/royaltyops/cli"
	"github.com/royaltyops/royaltyops/internal/app"
	"github.com/royaltyops/royaltyops/internal/ledger"
	"github.com/royaltyops/royaltyops/internal/platform/db"
)

const usage = `usage:
  royaltyctl jobs trigger <ledger-regenerate|ledger-verify> [--owner <uuid>]
  royaltyctl jobs inspect [--scheduled N]
  royaltyctl ledger verify --owner <uuid> [--json]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stderr, usage)
		return cli.ExitError
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return cli.ExitError
	}
	slog.SetDefault(app.NewLoggerTo(stderr, cfg))

	switch args[0] + " " + args[1] {
	case "jobs trigger":
		return jobsTrigger(ctx, cfg, args[2:], stdout, stderr)
	case "jobs inspect":
		return jobsInspect(ctx, cfg, args[2:], stdout, stderr)
	case "ledger verify":
		return ledgerVerify(ctx, cfg, args[2:], stdout, stderr)
	default:
		fmt.Fprint(stderr, usage)
		return cli.ExitError
	}
}

func jobsTrigger(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return cli.ExitError
	}
	name := args[0]
	fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
	fs.SetOutput(stderr)
	owner := fs.String("owner", "", "owner uuid; empty regenerates every owner")
	if err := fs.Parse(args[1:]); err != nil {
		return cli.ExitError
	}

	jobsCLI, err := cli.NewJobsCLI(cfg.AsynqRedis())
	if err != nil {
		fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
		return cli.ExitError
	}
	defer jobsCLI.Close()

	info, err := jobsCLI.Trigger(ctx, name, *owner)
	if err != nil {
		fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
		return cli.ExitError
	}
	fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return cli.ExitClean
}

func jobsInspect(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("jobs inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	scheduled := fs.Int("scheduled", 0, "also list up to N scheduled tasks")
	if err := fs.Parse(args); err != nil {
		return cli.ExitError
	}

	jobsCLI, err := cli.NewJobsCLI(cfg.AsynqRedis())
	if err != nil {
		fmt.Fprintf(stderr, "jobs inspect: %v\n", err)
		return cli.ExitError
	}
	defer jobsCLI.Close()

	stats, err := jobsCLI.InspectQueue(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "jobs inspect: %v\n", err)
		return cli.ExitError
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		fmt.Fprintf(stderr, "jobs inspect: %v\n", err)
		return cli.ExitError
	}
	if *scheduled > 0 {
		tasks, err := jobsCLI.ListScheduled(ctx, *scheduled)
		if err != nil {
			fmt.Fprintf(stderr, "jobs inspect: %v\n", err)
			return cli.ExitError
		}
		for _, t := range tasks {
			fmt.Fprintf(stdout, "%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.UTC().Format("2006-01-02T15:04:05Z"))
		}
	}
	return cli.ExitClean
}

func ledgerVerify(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ledger verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	owner := fs.String("owner", "", "owner uuid (required)")
	jsonOut := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return cli.ExitError
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.OptionsFrom(2, cfg.PGConnectTimeout))
	if err != nil {
		fmt.Fprintf(stderr, "ledger verify: %v\n", err)
		return cli.ExitError
	}
	defer pool.Close()

	service := ledger.NewService(ledger.NewRepository(pool), nil, ledger.Config{}, slog.Default())
	return cli.NewLedgerOpsCLI(service).VerifyCommand(ctx, cli.VerifyOptions{
		Owner:      *owner,
		JSONOutput: *jsonOut,
		Stdout:     stdout,
		Stderr:     stderr,
	})
}
