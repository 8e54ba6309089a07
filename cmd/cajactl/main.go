package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/taller-erp/taller-erp/cmd/cajactl/cli"
	"github.com/taller-erp/taller-erp/internal/app"
	"github.com/taller-erp/taller-erp/internal/caja"
	"github.com/taller-erp/taller-erp/internal/platform/db"
	"github.com/taller-erp/taller-erp/internal/shared"
)

const usage = `usage: cajactl <command> [flags]

commands:
  trigger <job> [branch]   enqueue caja:petty_cash_integrity or idempotency:cleanup
  inspect                  print default queue statistics
  verify [-json] [branch]  recompute petty-cash balances, exit 10 on drift
`

func main() {
	if app.InTestMode() {
		return
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg)

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprint(os.Stderr, usage)
			return 2
		}
		branchID, err := optionalBranch(args[2:])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		jobsCLI := cli.NewJobsCLI(cfg.RedisAddr, cfg.IdempotencyRetention)
		defer jobsCLI.Close()
		info, err := jobsCLI.Trigger(ctx, args[1], branchID)
		if err != nil {
			logger.Error("trigger job", slog.String("job", args[1]), slog.Any("error", err))
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "inspect":
		jobsCLI := cli.NewJobsCLI(cfg.RedisAddr, cfg.IdempotencyRetention)
		defer jobsCLI.Close()
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			logger.Error("inspect queue", slog.Any("error", err))
			return 1
		}
		_ = json.NewEncoder(os.Stdout).Encode(stats)
		return 0
	case "verify":
		fs := flag.NewFlagSet("verify", flag.ContinueOnError)
		jsonOut := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		branchID, err := optionalBranch(fs.Args())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			return 1
		}
		defer pool.Close()
		svc := caja.NewService(caja.NewRepository(pool), shared.NewAuditLogger(pool), caja.ServiceConfig{Logger: logger})
		return cli.VerifyCommand(ctx, svc, cli.VerifyOptions{BranchID: branchID, JSONOutput: *jsonOut})
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
}

func optionalBranch(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, nil
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid branch %q", args[0])
	}
	return id, nil
}
