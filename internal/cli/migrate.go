package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"lotledger/internal/core"
	"lotledger/internal/infra/persistence/postgres"
)

type migrateResult struct {
	Driver  string `json:"driver"`
	Applied bool   `json:"applied"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations",
		Long: `Migrate applies the embedded schema migrations to storage.postgres_dsn.
The memory and sqlite drivers keep no schema to migrate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return reportError(out, err, "")
			}
			res := migrateResult{Driver: cfg.Storage.Driver}
			if core.StorageDriver(cfg.Storage.Driver) == core.StoragePostgres {
				if err := migratePostgres(cmd.Context(), cfg.Storage.PostgresDSN); err != nil {
					return reportError(out, WrapExitError(ExitCommandError, "migration failed", err), "")
				}
				res.Applied = true
				newLogger(rootOpts, cfg).Info("migrations applied")
			}
			return out.Success(res, func(w io.Writer) error {
				if !res.Applied {
					_, err := fmt.Fprintf(w, "driver %s has no schema to migrate\n", res.Driver)
					return err
				}
				_, err := fmt.Fprintln(w, "postgres schema is up to date")
				return err
			})
		},
	}
}

func migratePostgres(ctx context.Context, dsn string) error {
	if dsn == "" {
		dsn = postgres.DefaultDSN
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()
	return postgres.Migrate(ctx, pool)
}
