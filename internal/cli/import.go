package cli

import (
	"fmt"

	"github.com/bcnelson/firewall-policy-manager/internal/seed"
	"github.com/bcnelson/firewall-policy-manager/internal/service"
	"github.com/spf13/cobra"
)

func newImportCommand() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Apply firewalls, policies and rules from a YAML file",
		Long: `Create the firewalls, filtering policies and rules described in a YAML
file. Policies and rules are listed in evaluation order. Items that already
exist at the same position are left untouched, so the same file can be
imported repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			doc, err := seed.LoadFile(file)
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), &cfg.Database, true)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := service.New(store, service.WithLogger(logger))
			report, err := seed.Apply(cmd.Context(), svc, doc)
			if report != nil {
				info(out(cmd), "Created: %d firewalls, %d filtering policies, %d rules\n",
					report.Created.Firewalls, report.Created.FilteringPolicies, report.Created.Rules)
				info(out(cmd), "Unchanged: %d firewalls, %d filtering policies, %d rules\n",
					report.Existing.Firewalls, report.Existing.FilteringPolicies, report.Existing.Rules)
			}
			if err != nil {
				return fmt.Errorf("importing %s: %w", file, err)
			}

			success(out(cmd), "Imported %s\n", file)
			return nil
		},
	}

	importCmd.Flags().StringP("file", "f", "", "Path to YAML seed file")
	return importCmd
}
