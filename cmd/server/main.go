package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/meur/boundlexx/internal/api"
	"github.com/meur/boundlexx/internal/client"
	"github.com/meur/boundlexx/internal/config"
	"github.com/meur/boundlexx/internal/loader"
	"github.com/meur/boundlexx/internal/models"
	"github.com/meur/boundlexx/internal/state"
)

func main() {
	if err := start(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// start runs the server until a signal arrives. Errors are returned so the
// deferred logger flush and signal cleanup run before the process exits.
func start(args []string) error {
	// Parse flags
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfgPath := fs.String("config", getEnv("BOUNDLEXX_CONFIG", "config/boundlexx.yaml"), "Config file path")
	port := fs.String("port", "", "Server port (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		return err
	}
	return nil
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	st := state.New(cfg.Throttle)
	acc := client.NewAccessor(client.Options{
		APIBase:        cfg.APIBase,
		ServerOverride: cfg.ServerOverride,
		Cooldown:       cfg.Cooldown,
		HTTPClient:     &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:         logger.Named("client"),
		Sink:           st,
	})
	ld := loader.New(acc, st, loader.Options{
		PageSize: cfg.PageSize,
		Cooldown: cfg.Cooldown,
		Logger:   logger.Named("loader"),
	})

	for _, name := range cfg.Preload {
		kind, err := models.ParseKind(name)
		if err != nil {
			return fmt.Errorf("preload: %w", err)
		}
		ld.Start(ctx, kind, cfg.Locale)
	}

	srv := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: api.New(ctx, st, ld, api.Options{
			Locale:         cfg.Locale,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Logger:         logger.Named("api"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Boundlexx cache starting",
		zap.String("addr", "http://localhost:"+cfg.Server.Port),
		zap.String("api", cfg.APIBase),
		zap.Strings("preload", cfg.Preload))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newLogger(debug bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if debug {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zcfg.Build()
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
