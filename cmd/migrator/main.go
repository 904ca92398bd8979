package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v10"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	migrations "github.com/gokatarajesh/falling-trivia/db/migrations"
	"github.com/gokatarajesh/falling-trivia/internal/config"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load("configs/.env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Msg("could not load .env file")
		}
	}

	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
}

func newRootCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:           "migrator",
		Short:         "Apply falling-trivia Postgres migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "migration directory (defaults to the embedded migrations)")

	cmd.AddCommand(
		migrationCmd("up", "Apply all pending migrations", &dir, goose.UpContext),
		migrationCmd("down", "Roll back the latest migration", &dir, goose.DownContext),
		migrationCmd("status", "Print migration status", &dir, goose.StatusContext),
	)
	return cmd
}

type gooseFunc func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error

func migrationCmd(use, short string, dir *string, run gooseFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, migrationDir, err := open(*dir)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := run(cmd.Context(), db, migrationDir); err != nil {
				return fmt.Errorf("goose %s: %w", use, err)
			}
			log.Info().Str("command", use).Msg("migration command finished")
			return nil
		},
	}
}

// open connects through the pgx database/sql driver and points goose at
// either dir or the embedded migrations.
func open(dir string) (*sql.DB, string, error) {
	var pg config.Postgres
	if err := env.Parse(&pg); err != nil {
		return nil, "", fmt.Errorf("parse postgres config: %w", err)
	}
	if !pg.Enabled() || pg.User == "" || pg.Database == "" {
		return nil, "", errors.New("PG_HOST, PG_USER and PG_DATABASE are required")
	}

	migrationDir := "."
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, "", fmt.Errorf("resolve migration directory %s: %w", dir, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, "", fmt.Errorf("migration directory %s: %w", abs, err)
		}
		goose.SetBaseFS(nil)
		migrationDir = abs
	} else {
		goose.SetBaseFS(migrations.FS)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, "", err
	}
	goose.SetTableName("goose_db_version")

	db, err := sql.Open("pgx", pg.ConnString())
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("ping database: %w", err)
	}

	log.Info().
		Str("host", pg.Host).
		Int("port", pg.Port).
		Str("database", pg.Database).
		Str("migration_dir", migrationDir).
		Msg("connected to database")
	return db, migrationDir, nil
}
