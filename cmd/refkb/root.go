package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"refkb/internal/platform/config"
	"refkb/internal/platform/logger"
)

var (
	configPath string
	verbose    bool

	cfg config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "refkb",
	Short: "Applies reviewed suggestions to the reference knowledge base",
	Long: `refkb owns the write path of the reference knowledge base. Approved
suggestions are applied transactionally with an append-only audit trail, and
any applied suggestion can be reverted.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Log.Level = "debug"
		}
		cfg = loaded
		log = logger.NewWithWriter(os.Stderr, cfg.Log)
		slog.SetDefault(log)
		return nil
	},
}

// Execute runs the root command. Called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("REFKB_CONFIG"), "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
