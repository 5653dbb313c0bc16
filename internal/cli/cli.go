// Package cli defines the foundry command tree: serve the API, run the
// worker engine, and manage the database.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/fabworks/foundry/internal/app"
	"github.com/fabworks/foundry/internal/migration"
	"github.com/fabworks/foundry/internal/seeder"
)

const stopTimeout = 10 * time.Second

// Execute runs the foundry CLI.
func Execute() error {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

// NewRootCommand builds the root foundry CLI command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "foundry",
		Short: "Foundry job order service toolkit",
	}

	root.AddCommand(
		newStartCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newSeedCmd(),
	)

	return root
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "start",
		Aliases: []string{"run"},
		Short:   "Run the job order API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), app.HTTP)
		},
	}
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage background workers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the worker engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), app.Worker)
		},
	})
	return cmd
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var mig *migration.Migrator
			return withApp(cmd.Context(),
				fx.Options(app.Core, migration.Module, fx.Populate(&mig)),
				func(ctx context.Context) error {
					if err := mig.Up(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
					return nil
				})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			all, _ := cmd.Flags().GetBool("all")
			var mig *migration.Migrator
			return withApp(cmd.Context(),
				fx.Options(app.Core, migration.Module, fx.Populate(&mig)),
				func(ctx context.Context) error {
					if err := mig.Down(ctx, steps, all); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
					return nil
				})
		},
	}
	down.Flags().Int("steps", 1, "Number of migration steps to rollback")
	down.Flags().Bool("all", false, "Rollback all applied migrations")

	cmd.AddCommand(up, down)
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load sample job orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			var seed *seeder.Seeder
			return withApp(cmd.Context(),
				fx.Options(app.Core, seeder.Module, fx.Populate(&seed)),
				func(ctx context.Context) error {
					if err := seed.JobOrders(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "seed data applied")
					return nil
				})
		},
	}
}

// serve starts a long-running fx application and blocks until the command
// context is cancelled.
func serve(ctx context.Context, opts fx.Option) error {
	application := fx.New(opts)
	if err := application.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return application.Stop(stopCtx)
}

// withApp runs fn against a short-lived fx application, for one-shot
// commands like migrations.
func withApp(ctx context.Context, opts fx.Option, fn func(context.Context) error) error {
	application := fx.New(opts, fx.NopLogger)
	if err := application.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = application.Stop(stopCtx)
	}()
	return fn(ctx)
}
