package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bluesky-social/rolodex/lookup"
	"github.com/bluesky-social/rolodex/platform"
	"github.com/bluesky-social/rolodex/userstore"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// PlatformAPI is everything the HTTP handlers need from the platform client.
type PlatformAPI interface {
	lookup.Platform
	GetStatus(ctx context.Context, userID string) (*platform.Status, error)
}

type Server struct {
	users        *lookup.UserResolver
	usernames    *lookup.UsernameResolver
	stats        *lookup.StatsAggregator
	platform     PlatformAPI
	store        userstore.Store
	historyLimit int

	echo   *echo.Echo
	httpd  *http.Server
	logger *slog.Logger
}

type Config struct {
	Logger       *slog.Logger
	Bind         string
	Store        userstore.Store
	Platform     PlatformAPI
	Freshness    time.Duration
	HistoryLimit int
}

// echoprometheus registers its collectors globally, so the middleware is
// only ever built once per process.
var metricsMiddleware = sync.OnceValue(func() echo.MiddlewareFunc {
	return echoprometheus.NewMiddleware("rolodex")
})

type requestValidator struct {
	validate *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	return rv.validate.Struct(i)
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if config.Store == nil || config.Platform == nil {
		return nil, errors.New("server requires a store and a platform client")
	}
	historyLimit := config.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = userstore.DefaultHistoryLimit
	}

	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &Server{
		users: &lookup.UserResolver{
			Store:     config.Store,
			Platform:  config.Platform,
			Logger:    logger.With("component", "user-resolver"),
			Freshness: config.Freshness,
		},
		usernames: &lookup.UsernameResolver{
			Store:    config.Store,
			Platform: config.Platform,
			Logger:   logger.With("component", "username-resolver"),
		},
		stats: &lookup.StatsAggregator{
			Platform: config.Platform,
			Logger:   logger.With("component", "stats"),
		},
		platform:     config.Platform,
		store:        config.Store,
		historyLimit: historyLimit,
		echo:         e,
		logger:       logger,
	}
	srv.httpd = &http.Server{
		Handler:        otelhttp.NewHandler(srv, "rolodex"),
		Addr:           config.Bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(metricsMiddleware())
	e.Use(middleware.BodyLimit("64K"))
	e.HTTPErrorHandler = srv.errorHandler
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000, // 365 days
	}))

	e.GET("/", srv.WebHome)
	e.GET("/_health", srv.HandleHealthCheck)
	e.GET("/api/users/:userId", srv.HandleGetUser)
	e.GET("/api/users/:userId/status", srv.HandleGetUserStatus)
	e.GET("/api/users/:userId/stats", srv.HandleGetUserStats)
	e.POST("/api/users/by-username", srv.HandleResolveUsername)
	e.GET("/api/search-history", srv.HandleSearchHistory)

	return srv, nil
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

func (srv *Server) RunAPI() error {
	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				srv.logger.Error("HTTP server shutting down unexpectedly", "err", err)
			}
		}
	}()

	// Wait for a signal to exit.
	srv.logger.Info("registering OS exit signal handler")
	quit := make(chan struct{})
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-exitSignals
		srv.logger.Info("received OS exit signal", "signal", sig)

		if err := srv.Shutdown(); err != nil {
			srv.logger.Error("HTTP server shutdown error", "err", err)
		}

		close(quit)
	}()
	<-quit
	srv.logger.Info("graceful shutdown complete")
	return nil
}

func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.httpd.Shutdown(ctx)
}
