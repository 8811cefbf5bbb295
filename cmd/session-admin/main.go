package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/session-bridge/config"
	redisadapter "github.com/target/session-bridge/internal/adapters/redis"
	"github.com/target/session-bridge/internal/bootstrap"
	"github.com/target/session-bridge/internal/data"
	domainauth "github.com/target/session-bridge/internal/domain/auth"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Stdout io.Writer
}

const (
	defaultCommandTimeout = 2 * time.Minute
	defaultAuditLimit     = 50
	maxAuditLimit         = 1000
)

func main() {
	logger := bootstrap.InitLogger(os.Getenv("LOG_LEVEL"))

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		_, _ = fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmdName)
		printUsage(os.Stderr)
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmdCtx := &commandContext{Ctx: ctx, Logger: logger, Config: cfg, Stdout: os.Stdout}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(ctx, "command failed", "command", cmdName, "error", runErr)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrate,
		},
		"audit": {
			name:        "audit",
			description: "List the most recent session audit events",
			run:         runAudit,
		},
		"ratelimit-reset": {
			name:        "ratelimit-reset",
			description: "Clear the create-session rate limit counter for a client IP",
			run:         runRateLimitReset,
		},
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintf(w, "Usage: session-admin <command> [flags]\n\nAvailable commands:\n")
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "  %-16s %s\n", name, commands()[name].description)
	}
}

type auditOptions struct {
	Limit int
	JSON  bool
}

func parseAuditFlags(args []string) (auditOptions, error) {
	opts := auditOptions{}
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.IntVar(&opts.Limit, "limit", defaultAuditLimit, "number of events to show (1-1000)")
	fs.BoolVar(&opts.JSON, "json", false, "print events as JSON lines")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.Limit < 1 || opts.Limit > maxAuditLimit {
		return opts, fmt.Errorf("-limit must be between 1 and %d", maxAuditLimit)
	}
	return opts, nil
}

func runMigrate(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultCommandTimeout, "migration timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer closeDB(cmdCtx.Logger, db)

	return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
}

func runAudit(cmdCtx *commandContext, args []string) error {
	opts, err := parseAuditFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer closeDB(cmdCtx.Logger, db)

	return listAudit(ctx, data.NewAuditRepo(db), opts, cmdCtx.Stdout)
}

type auditLister interface {
	Recent(ctx context.Context, limit int) ([]domainauth.AuditEvent, error)
}

func listAudit(ctx context.Context, repo auditLister, opts auditOptions, w io.Writer) error {
	events, err := repo.Recent(ctx, opts.Limit)
	if err != nil {
		return fmt.Errorf("list audit events: %w", err)
	}
	if opts.JSON {
		return writeAuditJSON(w, events)
	}
	return writeAuditTable(w, events)
}

func writeAuditTable(w io.Writer, events []domainauth.AuditEvent) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "no audit events")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "CREATED\tOPERATION\tOUTCOME\tSUBJECT\tCLIENT IP"); err != nil {
		return err
	}
	for _, ev := range events {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ev.CreatedAt.UTC().Format(time.RFC3339),
			ev.Operation,
			ev.Outcome,
			dashIfEmpty(ev.Subject),
			dashIfEmpty(ev.ClientIP),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

type auditLine struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Outcome   string    `json:"outcome"`
	Subject   string    `json:"subject,omitempty"`
	ClientIP  string    `json:"clientIp,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func writeAuditJSON(w io.Writer, events []domainauth.AuditEvent) error {
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(auditLine{
			ID:        ev.ID,
			Operation: string(ev.Operation),
			Outcome:   string(ev.Outcome),
			Subject:   ev.Subject,
			ClientIP:  ev.ClientIP,
			UserAgent: ev.UserAgent,
			CreatedAt: ev.CreatedAt.UTC(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runRateLimitReset(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("ratelimit-reset", flag.ContinueOnError)
	ip := fs.String("ip", "", "client IP whose counter should be cleared")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if net.ParseIP(*ip) == nil {
		return errors.New("-ip must be a valid IP address")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	client, err := bootstrap.ConnectRedis(ctx, cmdCtx.Config.Redis, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", cerr)
		}
	}()

	if err := resetRateLimit(ctx, client, cmdCtx.Config.RateLimit, *ip); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmdCtx.Stdout, "rate limit cleared for %s\n", *ip)
	return err
}

func resetRateLimit(ctx context.Context, client redis.UniversalClient, cfg config.RateLimitConfig, ip string) error {
	limiter, err := redisadapter.NewRateLimiter(client, redisadapter.RateLimiterConfig{
		Limit:  cfg.Requests,
		Window: cfg.Window,
	})
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if err := limiter.Reset(ctx, ip); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}

func closeDB(logger *slog.Logger, db *sql.DB) {
	if err := db.Close(); err != nil {
		logger.Warn("db close failed", "error", err)
	}
}
