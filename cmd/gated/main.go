package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/muse-gate/internal/config"
)

var (
	// Global flags
	logLevel    string
	dbPath      string
	personaFile string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gated",
	Short: "Muse readiness gate",
	Long: `gated decides whether a young writer may move on to the next stage of
a writing activity.

Cheap local screening rejects keyboard mashing and empty answers before any
upstream call. Text that passes is judged by the evaluator persona for the
stage, and every decision is written to the audit log.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = buildLogger()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (default: MUSE_GATE_LOG_LEVEL or info)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Audit database path (default: MUSE_GATE_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&personaFile, "persona-file", "", "Evaluator persona YAML (default: MUSE_GATE_PERSONA_FILE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment, then applies command-line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = dbPath
	}
	if flags.Changed("persona-file") {
		cfg.PersonaFile = personaFile
		if err := cfg.LoadPersonaFile(); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func buildLogger() (*zap.Logger, error) {
	level := logLevel
	if level == "" {
		level = os.Getenv("MUSE_GATE_LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}
	atom, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = atom
	return zc.Build()
}
