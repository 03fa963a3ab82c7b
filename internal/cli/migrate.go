package cli

import (
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), &cfg.Database, false)
			if err != nil {
				return err
			}
			defer store.Close()

			results, err := store.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(results) == 0 {
				info(out(cmd), "Database is up to date\n")
				return nil
			}
			for _, r := range results {
				success(out(cmd), "Applied %s (%s)\n", r.Source.Path, r.Duration)
			}
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), &cfg.Database, false)
			if err != nil {
				return err
			}
			defer store.Close()

			r, err := store.MigrateDown(cmd.Context())
			if err != nil {
				return err
			}
			warn(out(cmd), "Rolled back %s\n", r.Source.Path)
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), &cfg.Database, false)
			if err != nil {
				return err
			}
			defer store.Close()

			status, err := store.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range status {
				if s.State == goose.StateApplied {
					success(out(cmd), "%-8s %s applied %s\n", s.State, s.Source.Path, s.AppliedAt.Format("2006-01-02 15:04:05"))
				} else {
					warn(out(cmd), "%-8s %s\n", s.State, s.Source.Path)
				}
			}
			return nil
		},
	})

	return migrateCmd
}
