package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/bluesky-social/rolodex/lookup"
	"github.com/bluesky-social/rolodex/pkg/metrics"
	"github.com/bluesky-social/rolodex/pkg/robusthttp"
	"github.com/bluesky-social/rolodex/platform"
	"github.com/bluesky-social/rolodex/userstore"
	"github.com/bluesky-social/rolodex/util/svcutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "rolodex",
		Usage:   "cached user profile lookups against the platform API",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"ROLODEX_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: json or text",
			Value:   "json",
			EnvVars: []string{"ROLODEX_LOG_FORMAT", "LOG_FORMAT"},
		},
	}

	app.Commands = []*cli.Command{
		serveCmd,
		userCmd,
		usernameCmd,
		statusCmd,
		statsCmd,
		historyCmd,
	}

	return app.Run(args)
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the rolodex API daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "local IP/port for the API to bind to",
			Value:   ":5000",
			EnvVars: []string{"ROLODEX_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs (empty to disable)",
			Value:   ":3989",
			EnvVars: []string{"ROLODEX_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "db-url",
			Usage:   "database connection string: sqlite://<path>, postgres://..., or redis://...",
			Value:   "sqlite://data/rolodex/rolodex.sqlite",
			EnvVars: []string{"ROLODEX_DB_URL", "DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "db-max-connections",
			Usage:   "maximum number of open SQL connections (ignored for sqlite)",
			Value:   20,
			EnvVars: []string{"ROLODEX_DB_MAX_CONNECTIONS"},
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "enable OpenTelemetry tracing of SQL queries",
			EnvVars: []string{"ROLODEX_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "users-host",
			Usage:   "method and hostname of the platform users API",
			Value:   platform.DefaultUsersHost,
			EnvVars: []string{"ROLODEX_USERS_HOST"},
		},
		&cli.StringFlag{
			Name:    "thumbnails-host",
			Usage:   "method and hostname of the platform thumbnails API",
			Value:   platform.DefaultThumbnailsHost,
			EnvVars: []string{"ROLODEX_THUMBNAILS_HOST"},
		},
		&cli.StringFlag{
			Name:    "friends-host",
			Usage:   "method and hostname of the platform friends API",
			Value:   platform.DefaultFriendsHost,
			EnvVars: []string{"ROLODEX_FRIENDS_HOST"},
		},
		&cli.DurationFlag{
			Name:    "upstream-timeout",
			Usage:   "timeout for each individual platform API request",
			Value:   platform.DefaultTimeout,
			EnvVars: []string{"ROLODEX_UPSTREAM_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "upstream-retries",
			Usage:   "retries for failed platform API requests (0 disables)",
			Value:   0,
			EnvVars: []string{"ROLODEX_UPSTREAM_RETRIES"},
		},
		&cli.Float64Flag{
			Name:    "upstream-rate-limit",
			Usage:   "max platform API requests per second (0 for no limit)",
			Value:   0,
			EnvVars: []string{"ROLODEX_UPSTREAM_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "cache-freshness",
			Usage:   "how long cached profiles are served without refreshing",
			Value:   lookup.DefaultFreshness,
			EnvVars: []string{"ROLODEX_CACHE_FRESHNESS"},
		},
		&cli.IntFlag{
			Name:    "history-limit",
			Usage:   "default number of search history entries returned",
			Value:   userstore.DefaultHistoryLimit,
			EnvVars: []string{"ROLODEX_HISTORY_LIMIT"},
		},
	},
	Action: runServe,
}

func runServe(cctx *cli.Context) error {
	ctx := cctx.Context
	logger := svcutil.ConfigLogger(cctx, os.Stdout)
	configOTEL("rolodex")

	store, err := userstore.Open(ctx, cctx.String("db-url"), userstore.Options{
		MaxConnections: cctx.Int("db-max-connections"),
		Tracing:        cctx.Bool("db-tracing"),
	})
	if err != nil {
		return fmt.Errorf("failed to open user store: %w", err)
	}
	defer store.Close()

	httpClient := robusthttp.NewClient(
		robusthttp.WithMaxRetries(cctx.Int("upstream-retries")),
		robusthttp.WithTimeout(cctx.Duration("upstream-timeout")),
		robusthttp.WithLogger(logger.With("component", "platform-http")),
	)
	plat := platform.NewClient(platform.Config{
		UsersHost:      cctx.String("users-host"),
		ThumbnailsHost: cctx.String("thumbnails-host"),
		FriendsHost:    cctx.String("friends-host"),
		HTTPClient:     httpClient,
		Timeout:        cctx.Duration("upstream-timeout"),
		RateLimit:      cctx.Float64("upstream-rate-limit"),
		UserAgent:      "rolodex/" + versioninfo.Short(),
	})

	srv, err := NewServer(Config{
		Logger:       logger,
		Bind:         cctx.String("bind"),
		Store:        store,
		Platform:     plat,
		Freshness:    cctx.Duration("cache-freshness"),
		HistoryLimit: cctx.Int("history-limit"),
	})
	if err != nil {
		return fmt.Errorf("failed to construct server: %w", err)
	}

	// prometheus HTTP endpoint: /metrics
	metricsCtx, metricsCancel := context.WithCancel(ctx)
	defer metricsCancel()
	go func() {
		runtime.SetBlockProfileRate(10)
		runtime.SetMutexProfileFraction(10)
		if err := metrics.RunServer(metricsCtx, metricsCancel, cctx.String("metrics-listen")); err != nil {
			logger.Error("failed to start metrics endpoint", "err", err)
			// NOTE: not crashing or halting process here
		}
	}()

	return srv.RunAPI()
}
