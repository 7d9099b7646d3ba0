package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chriskuech/supplyside-sub001/internal/config"
	"github.com/chriskuech/supplyside-sub001/internal/store"
	"github.com/chriskuech/supplyside-sub001/internal/store/memory"
	"github.com/chriskuech/supplyside-sub001/internal/store/postgres"
	"github.com/chriskuech/supplyside-sub001/internal/ui"
)

var (
	inMemory   bool
	jsonOutput bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "supplyside <command>",
	Short:         "Supply-chain records service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if inMemory {
			cfg, err = config.LoadInMemory()
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
		slog.SetDefault(logger)
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&inMemory, "in-memory", false, "keep all state in process memory instead of PostgreSQL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "records", Title: "Records:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	// Records
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(eventsCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// openStore opens the store selected by the configuration.
func openStore() (store.Store, error) {
	if cfg.InMemory {
		logger.Info("using in-memory store; state is lost on exit")
		return memory.New(), nil
	}
	s, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return s, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
