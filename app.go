package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"mobility/m/internal/api"
	"mobility/m/internal/auth"
	"mobility/m/internal/config"
	"mobility/m/internal/database"
	"mobility/m/internal/geodata"
	"mobility/m/internal/metrics"
	"mobility/m/internal/migrations"
	"mobility/m/internal/report"
	"mobility/m/internal/reviews"
	"mobility/m/internal/seed"
	"mobility/m/internal/store"
	"mobility/m/internal/translate"
)

// openDatabase connects, migrates and seeds the admin account.
func openDatabase(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := seed.EnsureAdmin(ctx, db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var (
		redisClient *redis.Client
		revoked     auth.RevocationStore = auth.NewMemoryRevocations()
	)
	if cfg.RedisAddr != "" {
		redisClient, err = newRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		revoked = auth.NewRedisRevocations(redisClient)
		logrus.WithField("addr", cfg.RedisAddr).Info("redis enabled for sessions and rate limiting")
	}

	users := store.NewUserRepository(db)
	reviewRepo := store.NewReviewRepository(db)
	exporter := report.NewExporter(users, reviewRepo, cfg.ExportPath, m)
	exporter.Refresh(ctx)

	handler := api.New(api.Options{
		Auth:          auth.NewService(users, exporter),
		Sessions:      auth.NewSessions(cfg.Secret, cfg.SessionTTL, revoked),
		Reviews:       reviews.NewService(reviewRepo, exporter),
		Users:         users,
		Geodata:       geodata.NewClient(&http.Client{Timeout: cfg.OverpassTimeout}, cfg.OverpassURL, cfg.OverpassTimeout, m),
		Translator:    translate.NewClient(&http.Client{Timeout: cfg.TranslateTimeout}, cfg.TranslateURL, m),
		Metrics:       m,
		Gatherer:      reg,
		Redis:         redisClient,
		RateLimit:     cfg.RateLimit,
		RateWindow:    cfg.RateWindow,
		AdminUsername: cfg.AdminUsername,
		CookieSecure:  cfg.CookieSecure,
		TrustProxy:    cfg.TrustProxy,
		CORSOrigins:   cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("mobility server starting on :%s", cfg.HTTPPort)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logrus.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logrus.Info("server stopped")
	return nil
}

func check(ctx context.Context, cfg config.Config, out io.Writer) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := store.Stats(ctx, db)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Tables in %s:\n", cfg.DatabaseDSN)
	for _, s := range stats {
		fmt.Fprintf(out, "  %-20s %d rows\n", s.Name, s.Rows)
	}
	return nil
}

func export(ctx context.Context, cfg config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	exporter := report.NewExporter(store.NewUserRepository(db), store.NewReviewRepository(db), cfg.ExportPath, nil)
	if err := exporter.Export(ctx); err != nil {
		return err
	}
	logrus.WithField("path", exporter.Path()).Info("database report written")
	return nil
}
