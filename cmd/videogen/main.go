package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"videoclient/internal/api"
	"videoclient/internal/domain"
	"videoclient/internal/infra"
	"videoclient/internal/notice"
	"videoclient/internal/session"
)

const usage = `usage: videogen <command> [flags]

commands:
  login     -u <username> -p <password>
  logout
  whoami
  points
  generate  -prompt <text> [-model m] [-aspect 9:16] [-duration 10] [-image path|url] [-no-wait]
  status    [-watch] <job id>
`

func main() {
	// Missing env files are fine.
	_ = godotenv.Load(".env", ".env.local")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// cli carries what every command needs.
type cli struct {
	cfg     *infra.Config
	logger  infra.Logger
	client  *api.Client
	notices *notice.Printer
	stdout  io.Writer
	stderr  io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", args[0]).Logger()
	if os.Getenv("VIDEOGEN_VERBOSE") == "" {
		logger = logger.Level(zerolog.WarnLevel)
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "session store: %v\n", err)
		return 1
	}
	defer closeStore()

	c := &cli{cfg: cfg, logger: logger, notices: notice.NewPrinter(cfg.Locale), stdout: stdout, stderr: stderr}
	c.client, err = api.NewClient(api.Options{
		BaseURL:        cfg.APIBaseURL,
		AppID:          cfg.AppID,
		Store:          store,
		Logger:         &c.logger,
		RequestTimeout: cfg.HTTPTimeout,
		RefreshTimeout: cfg.RefreshTimeout,
		OnSessionExpired: func() {
			fmt.Fprintln(stderr, c.notices.Sprintf(notice.SessionExpired))
		},
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	commands := map[string]func(context.Context, []string) error{
		"login":    c.login,
		"logout":   c.logout,
		"whoami":   c.whoami,
		"points":   c.points,
		"generate": c.generate,
		"status":   c.status,
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err := cmd(ctx, args[1:]); err != nil {
		// The expiry hook already told the user.
		if !errors.Is(err, domain.ErrSessionExpired) {
			fmt.Fprintln(stderr, c.notices.Error(err))
		}
		logger.Debug().Err(err).Msg("command failed")
		return 1
	}
	return 0
}

// openStore builds the credential store selected by SESSION_BACKEND. The
// returned func releases its connections.
func openStore(ctx context.Context, cfg *infra.Config, logger infra.Logger) (domain.CredentialStore, func(), error) {
	noop := func() {}
	switch cfg.SessionBackend {
	case infra.SessionBackendMemory:
		return session.NewMemory(), noop, nil
	case infra.SessionBackendPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		store, err := session.NewPostgres(infra.NewSQLRunner(pool, logger), cfg.SessionName)
		if err != nil {
			pool.Close()
			return nil, noop, err
		}
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		return store, pool.Close, nil
	case infra.SessionBackendRedis:
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		store, err := session.NewRedis(client, cfg.SessionName, cfg.SessionTTL)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return store, func() { _ = client.Close() }, nil
	default:
		store, err := session.NewFile(cfg.SessionFile)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	}
}
