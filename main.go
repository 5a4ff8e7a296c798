// apps/go-server/main.go
//
// Entry point for the golf round-tracking server.
// Responsibilities:
//   - Load .env (development) and decode configuration.
//   - Open the round store: SQL (SQLite/Postgres, migrated on start) or Supabase.
//   - Pick the durable kv scope: Redis when configured, else the SQL table,
//     else memory.
//   - Seed course reference data into the SQL store.
//   - Serve HTTP until SIGINT/SIGTERM, then drain client sessions.

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/golftrack/apps/go-server/assets"
	"github.com/robalobadob/golftrack/apps/go-server/internal/config"
	"github.com/robalobadob/golftrack/apps/go-server/internal/courses"
	"github.com/robalobadob/golftrack/apps/go-server/internal/httpserver"
	"github.com/robalobadob/golftrack/apps/go-server/internal/kv"
	"github.com/robalobadob/golftrack/apps/go-server/internal/session"
	"github.com/robalobadob/golftrack/apps/go-server/internal/sqlstore"
	"github.com/robalobadob/golftrack/apps/go-server/internal/supabase"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if !cfg.Production() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rounds, db, err := openRounds(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend).Msg("open round store")
	}
	if db != nil {
		defer db.Close()
	}

	durable, closeDurable, err := openDurable(ctx, cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("open durable kv")
	}
	defer closeDurable()

	srv := httpserver.New(cfg, httpserver.Deps{Rounds: rounds, Durable: durable})

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("backend", cfg.Backend).Msg("starting go-server")
		serveErr <- srv.Start(":" + cfg.Port)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server exited")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown")
	}
}

// openRounds returns the round repository. The *sqlx.DB is nil for the
// Supabase backend.
func openRounds(ctx context.Context, cfg *config.Config) (session.Repository, *sqlx.DB, error) {
	if cfg.Backend == config.BackendSupabase {
		c, err := supabase.New(supabase.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseKey})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("url", cfg.SupabaseURL).Msg("using supabase round store")
		return supabase.NewRepository(c), nil, nil
	}

	db, err := sqlstore.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := sqlstore.Migrate(ctx, db, assets.Migrations()); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	store := sqlstore.New(db)
	if err := seedCourses(ctx, cfg, store); err != nil {
		log.Warn().Err(err).Msg("seed courses")
	}
	return store, db, nil
}

func seedCourses(ctx context.Context, cfg *config.Config, store *sqlstore.Store) error {
	var r io.Reader
	if cfg.CourseSeedFile != "" {
		f, err := os.Open(cfg.CourseSeedFile)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	} else {
		raw, err := assets.DefaultCourses()
		if err != nil {
			return err
		}
		r = bytes.NewReader(raw)
	}
	list, err := courses.Parse(r)
	if err != nil {
		return err
	}
	if err := store.SeedCourses(ctx, list); err != nil {
		return err
	}
	log.Info().Int("courses", len(list)).Msg("seeded courses")
	return nil
}

func openDurable(ctx context.Context, cfg *config.Config, db *sqlx.DB) (kv.Store, func(), error) {
	switch {
	case cfg.RedisURL != "":
		r, err := kv.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	case db != nil:
		return kv.NewSQL(db), func() {}, nil
	default:
		log.Warn().Msg("no durable kv configured; hole count and resume markers reset on restart")
		return kv.NewMemory(), func() {}, nil
	}
}
