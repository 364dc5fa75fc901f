package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/erp/vendorsync/internal/infrastructure/config"
	"github.com/erp/vendorsync/internal/infrastructure/logger"
	"github.com/erp/vendorsync/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const commandTimeout = 2 * time.Minute

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Vendor sync database tool",
	Long: `Vendor sync database tool.

Connection settings come from config.toml and VSYNC_ environment variables
(VSYNC_DATABASE_DRIVER, VSYNC_DATABASE_HOST, VSYNC_DATABASE_PATH, ...).`,
	SilenceUsage: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Create or update the schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(ctx context.Context, db *persistence.Database, log *zap.Logger) error {
			if err := db.Migrate(); err != nil {
				return err
			}
			log.Info("Schema is up to date")
			return nil
		})
	},
}

var vendorsCmd = &cobra.Command{
	Use:   "vendors <file.json|file.yaml>",
	Short: "Create or update vendor definitions from a JSON or YAML list",
	Long: `Create or update vendor definitions from a JSON or YAML list.

Example file:
  [{"id": "acme", "name": "Acme", "cadences": ["daily"],
    "adapter": {"kind": "api", "base_url": "https://api.acme.example", "api_key": "...", "timeout": "15s"}}]`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vendors, err := loadVendors(args[0])
		if err != nil {
			return err
		}
		return withDatabase(cmd.Context(), func(ctx context.Context, db *persistence.Database, log *zap.Logger) error {
			if err := db.Migrate(); err != nil {
				return err
			}
			n, err := importVendors(ctx, persistence.NewGormVendorRepository(db.DB), vendors)
			if err != nil {
				return fmt.Errorf("imported %d of %d vendors: %w", n, len(vendors), err)
			}
			log.Info("Vendors imported", zap.Int("count", n), zap.String("file", args[0]))
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active vendors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(ctx context.Context, db *persistence.Database, _ *zap.Logger) error {
			vendors, err := persistence.NewGormVendorRepository(db.DB).ListActive(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-24s %-10s %s\n", "ID", "ADAPTER", "NAME")
			for _, v := range vendors {
				fmt.Fprintf(out, "%-24s %-10s %s\n", v.ID, v.AdapterConfig.Kind, v.Name)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(upCmd, vendorsCmd, listCmd)
}

// withDatabase loads configuration, opens the database and runs fn under
// a bounded context.
func withDatabase(parent context.Context, fn func(ctx context.Context, db *persistence.Database, log *zap.Logger) error) error {
	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = log.Sync()
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithGormLogger(logger.NewGormLogger(log, logger.MapGormLogLevel(logLevel))))
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()
	log.Debug("Database connected", zap.String("driver", cfg.Database.Driver))

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()
	return fn(ctx, db, log)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
