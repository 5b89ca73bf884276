package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/config"
	"github.com/ehr/patients/internal/domain/account"
	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/boltstore"
	"github.com/ehr/patients/internal/platform/db"
	"github.com/ehr/patients/migrations"
)

// app holds the services built over the configured store.
type app struct {
	Patients *patient.Service
	Accounts *account.Service
	Hasher   auth.PasswordHasher
	Health   echo.HandlerFunc

	close func()
}

func (a *app) Close() {
	if a.close != nil {
		a.close()
	}
}

func openApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg))
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			count, err := db.NewMigrator(pool, migrationsFS(cfg.MigrationsDir)).Up(ctx)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("auto-migrate: %w", err)
			}
			logger.Info().Int("applied", count).Msg("migrations applied")
		}
		return &app{
			Patients: patient.NewService(patient.NewRepoPG(pool), logger),
			Accounts: account.NewService(account.NewUserRepoPG(pool), account.NewRoleRepoPG(pool), db.NewTxManager(pool), hasher, logger),
			Hasher:   hasher,
			Health:   db.HealthHandler(pool),
			close:    pool.Close,
		}, nil

	case config.StoreDriverBolt:
		if dir := filepath.Dir(cfg.BoltPath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create bolt directory: %w", err)
			}
		}
		store, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		return newBoltApp(store, hasher, logger), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func newBoltApp(store *boltstore.Store, hasher auth.PasswordHasher, logger zerolog.Logger) *app {
	return &app{
		Patients: patient.NewService(patient.NewRepoBolt(store), logger),
		Accounts: account.NewService(account.NewUserRepoBolt(store), account.NewRoleRepoBolt(store), store, hasher, logger),
		Hasher:   hasher,
		Health:   boltstore.HealthHandler(store),
		close:    func() { _ = store.Close() },
	}
}

func poolOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns, AppName: "patients-server"}
}

// migrationsFS prefers a migrations directory on disk and falls back to the
// set embedded in the binary.
func migrationsFS(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	return migrations.FS
}

// withApp runs fn against the configured store, for one-shot commands.
func withApp(fn func(ctx context.Context, a *app, logger zerolog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx := context.Background()
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a, logger)
}
