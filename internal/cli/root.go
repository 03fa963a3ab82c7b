// Package cli implements the fwmanager command line: serve, migrate and
// import.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bcnelson/firewall-policy-manager/internal/config"
	"github.com/bcnelson/firewall-policy-manager/internal/logging"
	"github.com/bcnelson/firewall-policy-manager/internal/storage/sql"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	info     = color.New(color.FgBlue).FprintfFunc()
	success  = color.New(color.FgGreen).FprintfFunc()
	warn     = color.New(color.FgYellow).FprintfFunc()
	errPrint = color.New(color.FgRed).FprintfFunc()
)

// NewRootCommand builds the fwmanager command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "fwmanager",
		Short: "Firewall policy manager",
		Long: `Manages firewalls, their ordered filtering policies and the ordered
rules inside each policy, and serves them over a JSON HTTP API.

Configuration is read from the environment (SERVER_HOST, SERVER_PORT,
DB_DRIVER, DB_DSN, API_KEY, LOG_LEVEL, LOG_JSON).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newImportCommand())
	return root
}

// Execute runs the command line and reports a failure on stderr.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		errPrint(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig loads and validates the configuration and installs the
// configured logger as the default.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.New(cfg.Log.Logging())
	logging.SetDefault(logger)
	return cfg, logger, nil
}

// openStore opens the configured database, creating the directory of a
// SQLite file first. Migrations run only when migrate is true.
func openStore(ctx context.Context, cfg *config.DatabaseConfig, migrate bool) (*sql.Store, error) {
	if dir := sqliteDir(cfg.Driver, cfg.DSN); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	if migrate {
		return sql.New(ctx, cfg.Driver, cfg.DSN)
	}
	return sql.Open(ctx, cfg.Driver, cfg.DSN)
}

// sqliteDir returns the directory that must exist for a SQLite file DSN, or
// "" when there is none to create.
func sqliteDir(driver, dsn string) string {
	if driver != "sqlite3" && driver != "sqlite" {
		return ""
	}
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
