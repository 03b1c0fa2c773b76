package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/interstellar-swap/relayer/internal/config"
	"github.com/interstellar-swap/relayer/internal/database"
	"github.com/interstellar-swap/relayer/internal/relayer"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "relayer",
		Short: "Cross-chain swap coordinator between Ethereum and Stellar",
	}
	rootCmd.AddCommand(runCmd(), migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the relayer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			log := newLogger(cfg.Relayer.LogLevel)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			r, err := relayer.New(ctx, cfg, log)
			if err != nil {
				return err
			}

			go func() {
				<-ctx.Done()
				log.Info().Msg("shutdown signal received")
			}()

			if err := r.Start(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			r.Stop()
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger("info")

			db, err := database.New(config.LoadDatabase())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(db); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
}
