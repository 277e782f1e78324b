package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/deep-rent/nexus/app"
	"github.com/deep-rent/nexus/log"

	"github.com/deep-rent/warden/internal/config"
	"github.com/deep-rent/warden/internal/identity"
	logging "github.com/deep-rent/warden/internal/logger"
	"github.com/deep-rent/warden/internal/middleware"
	"github.com/deep-rent/warden/internal/pipeline"
	"github.com/deep-rent/warden/internal/proxy"
	"github.com/deep-rent/warden/internal/rules"
	"github.com/deep-rent/warden/internal/server"
)

func main() {
	path := flag.String("config", defaultConfigPath(), "path to the configuration file")
	flag.Parse()

	// Bootstrap logger until the configured one exists.
	boot := log.New(
		log.WithLevel("info"),
	)

	cfg, err := config.Load(*path)
	if err != nil {
		boot.Error("Configuration failed", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	runnable := func(ctx context.Context) error {
		target, err := url.Parse(cfg.Upstream.Target)
		if err != nil {
			return fmt.Errorf("upstream.target: %w", err)
		}

		registry, err := rules.Compile(cfg.Rules)
		if err != nil {
			return err
		}

		store, err := identity.NewHTTPStore(
			cfg.Identity.URL,
			cfg.Identity.Scheme,
			time.Duration(cfg.Identity.Timeout)*time.Second,
			identity.WithRetries(cfg.Identity.Retries),
		)
		if err != nil {
			return err
		}
		resolver, err := identity.NewResolver(
			store,
			time.Duration(cfg.Identity.TTL)*time.Second,
			time.Duration(cfg.Identity.Timeout)*time.Second,
			identity.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		defer resolver.Close()

		pipe := pipeline.New(registry, resolver, pipeline.WithLogger(logger))

		fwd := proxy.New(
			target,
			time.Duration(cfg.Upstream.FlushInterval)*time.Millisecond,
		)
		srv := server.New(target, cfg.Upstream.HealthPath, fwd,
			middleware.Recover(logger),
			middleware.Guard(logger, pipe, cfg.Identity.Scheme, cfg.Forward),
			middleware.Logout(logger, resolver, cfg.Identity.LogoutPath),
		)

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(addr, cfg.Server) }()
		logger.Info("gateway started", "addr", addr, "rules", registry.Len())

		select {
		case err := <-errCh: // Server crashed
			return err
		case <-ctx.Done(): // System signaled shutdown
		}

		wait, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(wait)
	}

	if err := app.Run(runnable, app.WithLogger(logger)); err != nil {
		logger.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

// defaultConfigPath honors WARDEN_CONFIG before falling back to the local
// file.
func defaultConfigPath() string {
	if p := os.Getenv("WARDEN_CONFIG"); p != "" {
		return p
	}
	return "warden.yaml"
}
