package commands

import (
	"fmt"

	"medshop/internal/database"

	"github.com/spf13/cobra"
)

// migrateCmd creates missing tables and seeds the bootstrap admin
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create missing tables and seed the default admin",
	Long: `Create every missing table in dependency order, add new columns to
existing tables and make sure an admin account exists. Safe to run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		seed := database.AdminSeed{
			Username: e.cfg.Auth.AdminUsername,
			Email:    e.cfg.Auth.AdminEmail,
			Password: e.cfg.Auth.AdminPassword,
		}
		if err := database.InitSchema(cmd.Context(), e.pool, seed, e.log); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", e.cfg.Database.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
