package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rexcards.org/internal/config"
	"rexcards.org/internal/httpapi"
	"rexcards.org/internal/identity"
	"rexcards.org/internal/obs"
	"rexcards.org/internal/store/pg"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := run(); err != nil {
		obs.Logger().Printf(`{"level":"fatal","msg":%q}`, err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := pg.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	// The built-in permission catalog must exist before any authorization
	// decision, so it is reconciled at startup.
	if err := store.EnsurePermissions(ctx, identity.BuiltinPermissions); err != nil {
		return err
	}

	hasher, err := identity.NewHasher(identity.HashParams{
		MemoryKiB:      cfg.Hash.MemoryKiB,
		Iterations:     cfg.Hash.Iterations,
		Parallelism:    cfg.Hash.Parallelism,
		MaxPasswordLen: cfg.Hash.MaxPasswordLen,
		MaxConcurrent:  cfg.Hash.MaxConcurrent,
	})
	if err != nil {
		return err
	}
	codec, err := identity.NewCodec(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		return err
	}

	engine := identity.NewEngine(store, store, store)
	tokens := identity.NewTokenService(codec, engine, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	service := identity.NewService(hasher, tokens, engine, store)
	coordinator := identity.NewCoordinator(hasher, store, store, store, store, identity.DefaultRoleName)

	api := httpapi.New(httpapi.PGReadyProbe{DB: store.DB()}, version, httpapi.Deps{
		Auth:        service,
		Provisioner: coordinator,
		Roles:       store,
		UserRoles:   store,
		Permissions: store,
	})
	api.SetRateLimit(cfg.Rate.Burst, float64(cfg.Rate.PerSecond))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		obs.LogRequest(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339),
			"msg":   "http server listening",
			"addr":  cfg.HTTPAddr,
			"level": "info",
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	obs.LogRequest(map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"msg":   "http server stopped",
		"level": "info",
	})
	return nil
}
