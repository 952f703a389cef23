package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/KaramelBytes/tabaudit-cli/internal/config"
	"github.com/KaramelBytes/tabaudit-cli/internal/logging"
)

var (
	// Global flags
	cfgFile       string
	debug         bool
	flagLogLevel  string
	flagLogFormat string
	flagDSN       string

	// Loaded configuration
	cfg *cfgpkg.Global
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tabaudit",
	Short: "tabaudit: data-quality audits and outlier reports for tabular datasets",
	Long: `tabaudit loads a CSV, XLSX, SQLite or Postgres table, counts and removes missing and duplicate
rows, coerces column types, drops out-of-range values and reports z-score and IQR outliers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if log != nil {
		_ = log.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.tabaudit/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: console|json (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagDSN, "dsn", "", "postgres connection string (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to built-in defaults
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = cfgpkg.Default()
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("log-level") && flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if f.Changed("log-format") && flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if f.Changed("dsn") && flagDSN != "" {
		cfg.PostgresDSN = flagDSN
	}
	if debug {
		cfg.LogLevel = "debug"
	}

	l, err := logging.New(logging.Config{Level: cfg.LogLevel, Encoding: cfg.LogFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v; logging disabled\n", err)
		l = zap.NewNop()
	}
	log = l
}

// settings returns the loaded configuration, or defaults when a command runs before loadConfig.
func settings() *cfgpkg.Global {
	if cfg == nil {
		return cfgpkg.Default()
	}
	return cfg
}

func logger() *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
