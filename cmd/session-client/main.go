package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/target/session-bridge/config"
	"github.com/target/session-bridge/internal/bootstrap"
	"github.com/target/session-bridge/internal/client"
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
	Config config.ClientConfig
	Stdout io.Writer
}

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

	cfg, err := bootstrap.LoadClientConfig()
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
		"watch": {
			name:        "watch",
			description: "Sign in, keep the session renewed, sign out on SIGINT/SIGTERM",
			run:         runWatch,
		},
		"check": {
			name:        "check",
			description: "Ask the bridge whether a session cookie is present",
			run:         runCheck,
		},
		"logout": {
			name:        "logout",
			description: "Clear the session cookie",
			run:         runLogout,
		},
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintf(w, "Usage: session-client <command> [flags]\n\nAvailable commands:\n")
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "  %-10s %s\n", name, commands()[name].description)
	}
}

// commonFlags registers flags shared by every command, defaulted from env.
func commonFlags(fs *flag.FlagSet, cfg *config.ClientConfig) *string {
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "session bridge base URL")
	fs.StringVar(&cfg.Origin, "origin", cfg.Origin, "Origin header to send")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-call timeout")
	return fs.String("session", "", "existing session credential to send as the session cookie")
}

func newTransport(cfg config.ClientConfig, session string) (*client.HTTPTransport, error) {
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tr, err := client.NewHTTPTransport(client.HTTPTransportConfig{
		BaseURL: cfg.BaseURL,
		Origin:  cfg.Origin,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if session != "" {
		if err := tr.Seed(domainauth.SessionCookieName, session); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

func runCheck(ctx *commandContext, args []string) error {
	cfg := ctx.Config
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	session := commonFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}

	tr, err := newTransport(cfg, *session)
	if err != nil {
		return err
	}
	has, err := tr.CheckSession(ctx.Ctx)
	if err != nil {
		return err
	}
	return writeJSON(ctx.Stdout, map[string]bool{"hasSession": has})
}

func runLogout(ctx *commandContext, args []string) error {
	cfg := ctx.Config
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	session := commonFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}

	tr, err := newTransport(cfg, *session)
	if err != nil {
		return err
	}
	if err := tr.DestroySession(ctx.Ctx); err != nil {
		return err
	}
	return writeJSON(ctx.Stdout, map[string]bool{"ok": true})
}

func runWatch(ctx *commandContext, args []string) error {
	cfg := ctx.Config
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	session := commonFlags(fs, &cfg)
	fs.StringVar(&cfg.IDTokenFile, "id-token-file", cfg.IDTokenFile, "file holding the current ID token")
	fs.StringVar(&cfg.UID, "uid", cfg.UID, "principal identifier reported as signed in")
	fs.DurationVar(&cfg.Renewal, "renewal", cfg.Renewal, "session renewal interval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.IDTokenFile == "" {
		return errors.New("-id-token-file is required")
	}
	if cfg.UID == "" {
		return errors.New("-uid is required")
	}

	tr, err := newTransport(cfg, *session)
	if err != nil {
		return err
	}
	ctrl, err := client.NewController(client.Options{
		Transport:       tr,
		Tokens:          client.FileTokenSource{Path: cfg.IDTokenFile},
		RenewalInterval: cfg.Renewal,
		CallTimeout:     cfg.Timeout,
		Logger:          ctx.Logger,
	})
	if err != nil {
		return err
	}

	unsubscribe := ctrl.Subscribe(func(s client.State) {
		ctx.Logger.Info("session state",
			"is_authenticated", s.IsAuthenticated,
			"has_session", s.HasSession,
			"phase", s.Phase.String(),
		)
	})
	defer unsubscribe()

	ctrl.HandleAuthStateChanged(ctx.Ctx, &domainauth.Principal{UID: cfg.UID})
	if err := ctrl.Run(ctx.Ctx); err != nil {
		return err
	}

	// Signed out by signal: clear the session before exiting.
	ctrl.HandleAuthStateChanged(context.WithoutCancel(ctx.Ctx), nil)
	ctrl.Wait()

	if ctrl.State().HasSession {
		return errors.New("session still present after sign-out")
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}
