// Command hmisctl runs administrative tasks against the HMIS database:
// seeding the default permission matrix, creating staff accounts, assigning
// roles, generating dose schedules and explaining permission decisions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/hmis-api/internal/app"
	"github.com/jwalitptl/hmis-api/internal/config"
	"github.com/jwalitptl/hmis-api/internal/repository/postgres"
	"github.com/jwalitptl/hmis-api/pkg/metrics"
)

// withEnvFunc adapts a command body that needs the services into a cobra RunE.
type withEnvFunc func(run func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error

// env is built lazily by commands that need the database.
type env struct {
	cfg      *config.Config
	services *app.Services
	close    func() error
}

func connect(ctx context.Context, configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := app.SetupLogging(cfg.Log)

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	services := app.NewServices(cfg, app.NewRepositories(db), metrics.New(app.MetricsNamespace), logger.ZL)
	return &env{cfg: cfg, services: services, close: db.Close}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var configPath string
	rootCmd := &cobra.Command{
		Use:           "hmisctl",
		Short:         "Administrative commands for the HMIS API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	var withEnv withEnvFunc = func(run func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer e.close()
			return run(cmd, e, args)
		}
	}

	rootCmd.AddCommand(permissionsCmd(withEnv))
	rootCmd.AddCommand(usersCmd(withEnv))
	rootCmd.AddCommand(dosesCmd(withEnv))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
