package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"medshop/internal/reports"

	"github.com/spf13/cobra"
)

// checkStockCmd prints the inventory alert counts
var checkStockCmd = &cobra.Command{
	Use:   "check-stock",
	Short: "Print expired, low-stock and expiring-soon product counts",
	Long: `Print the inventory alert counts shown on the dashboard.
Exits non-zero with --fail-on-alert when anything is flagged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		alerts, err := reports.NewService(e.pool, e.cfg.Jobs.ExpiringDays).Alerts(cmd.Context())
		if err != nil {
			return err
		}
		if err := printAlerts(cmd.OutOrStdout(), alerts); err != nil {
			return err
		}
		if failOnAlert && alerts.Flagged() {
			return errors.New("inventory needs attention")
		}
		return nil
	},
}

var failOnAlert bool

func init() {
	checkStockCmd.Flags().BoolVar(&failOnAlert, "fail-on-alert", false, "Exit with an error when any alert is raised")
	rootCmd.AddCommand(checkStockCmd)
}

func printAlerts(w io.Writer, a *reports.StockAlerts) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TOTAL PRODUCTS\t%d\n", a.TotalProducts)
	fmt.Fprintf(tw, "EXPIRED\t%d\n", a.Expired)
	fmt.Fprintf(tw, "LOW STOCK\t%d\n", a.LowStock)
	fmt.Fprintf(tw, "EXPIRING IN %d DAYS\t%d\n", a.ExpiringDays, a.ExpiringSoon)
	fmt.Fprintf(tw, "SCHEDULED\t%d\n", a.Scheduled)
	return tw.Flush()
}
