package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/KaramelBytes/tabaudit-cli/internal/loader"
)

var pingTimeout time.Duration

var pingCmd = &cobra.Command{
	Use:   "ping [sqlite-file]",
	Short: "Check database connectivity and print the server version",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			db     *gorm.DB
			err    error
			target string
		)
		if len(args) == 1 {
			target = args[0]
			db, err = loader.OpenSQLite(target)
		} else {
			dsn := settings().PostgresDSN
			if dsn == "" {
				return fmt.Errorf("no DSN: pass --dsn, set postgres_dsn, or give a SQLite file")
			}
			target = "postgres"
			db, err = loader.OpenPostgres(dsn)
		}
		if err != nil {
			return err
		}
		defer loader.Close(db)

		ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
		defer cancel()
		version, err := loader.ServerVersion(ctx, db)
		if err != nil {
			return fmt.Errorf("ping %s: %w", target, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Connected to %s (%s)\n", target, version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 10*time.Second, "connection check timeout")
}
