package commands

import (
	"errors"
	"fmt"
	"time"

	"medshop/internal/activity"

	"github.com/spf13/cobra"
)

var olderThanDays int

// purgeCmd deletes old activity log rows
var purgeCmd = &cobra.Command{
	Use:   "purge-logs",
	Short: "Delete activity log entries older than N days",
	Long: `Delete activity log entries older than the given number of days.

Examples:
  medshopctl purge-logs --older-than-days 90`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if olderThanDays < 1 {
			return errors.New("--older-than-days must be at least 1")
		}
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		before := time.Now().UTC().AddDate(0, 0, -olderThanDays)
		n, err := activity.NewLogger(e.pool, e.log).Purge(cmd.Context(), before)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d activity log entries older than %s\n", n, before.Format("2006-01-02"))
		return nil
	},
}

func init() {
	purgeCmd.Flags().IntVar(&olderThanDays, "older-than-days", 90, "Age in days of the oldest entry to keep")
	rootCmd.AddCommand(purgeCmd)
}
