package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/tabaudit-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set tabaudit configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := settings()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "log_level: %s\n", c.LogLevel)
		fmt.Fprintf(out, "log_format: %s\n", c.LogFormat)
		fmt.Fprintf(out, "output_format: %s\n", c.OutputFormat)
		if c.PostgresDSN != "" {
			fmt.Fprintf(out, "postgres_dsn: %s\n", maskDSN(c.PostgresDSN))
		}
		if len(c.NullMarkers) > 0 {
			fmt.Fprintf(out, "null_markers: %q\n", c.NullMarkers)
		}
		fmt.Fprintf(out, "max_rows: %d\n", c.MaxRows)
		fmt.Fprintf(out, "z_threshold: %.3f\n", c.ZThreshold)
		fmt.Fprintf(out, "iqr_multiplier: %.3f\n", c.IQRMultiplier)
		fmt.Fprintf(out, "workers: %d\n", c.Workers)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		// Start from the file and environment, not from flag overrides of this invocation.
		c, err := cfgpkg.Load(cfgFile)
		if err != nil {
			return err
		}
		switch key {
		case "log_level":
			switch strings.ToLower(val) {
			case "debug", "info", "warn", "error":
				c.LogLevel = strings.ToLower(val)
			default:
				return fmt.Errorf("invalid log_level: %s (use debug, info, warn or error)", val)
			}
		case "log_format":
			c.LogFormat = strings.ToLower(val)
		case "output_format":
			c.OutputFormat = strings.ToLower(val)
		case "postgres_dsn":
			c.PostgresDSN = val
		case "null_markers":
			c.NullMarkers = strings.Split(val, ",")
		case "max_rows":
			i, err := cast.ToIntE(val)
			if err != nil {
				return fmt.Errorf("invalid int for max_rows: %v", val)
			}
			c.MaxRows = i
		case "z_threshold":
			f, err := cast.ToFloat64E(val)
			if err != nil {
				return fmt.Errorf("invalid float for z_threshold: %v", val)
			}
			c.ZThreshold = f
		case "iqr_multiplier":
			f, err := cast.ToFloat64E(val)
			if err != nil {
				return fmt.Errorf("invalid float for iqr_multiplier: %v", val)
			}
			c.IQRMultiplier = f
		case "workers":
			i, err := cast.ToIntE(val)
			if err != nil || i < 0 {
				return fmt.Errorf("invalid int for workers: %v", val)
			}
			c.Workers = i
		default:
			return fmt.Errorf("unknown key: %s (known: %s)", key, strings.Join(cfgpkg.Keys, ", "))
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		cfg = c
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// maskDSN hides the password of a URL-style DSN.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return mask(dsn)
	}
	return u.Redacted()
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
