package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/m3rciful/pocketreg/core/bootstrap"
	"github.com/m3rciful/pocketreg/core/buildinfo"
	corecmd "github.com/m3rciful/pocketreg/core/cmd"
	coreconfig "github.com/m3rciful/pocketreg/core/config"
	"github.com/m3rciful/pocketreg/core/logger"
	"github.com/m3rciful/pocketreg/internal/app"
)

const defaultConfigPath = "configs/config.yaml"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "pocketreg",
		Short:         "Telegram registration bot confirmed by trading platform postbacks",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to YAML config (default $"+corecmd.DefaultConfigEnvVar+" or "+defaultConfigPath+")")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the HTTP server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return corecmd.Run(corecmd.Options{
				ConfigPath:        configPath,
				DefaultConfigPath: defaultConfigPath,
				LoadConfig:        coreconfig.Load,
				Bootstrap: func(ctx context.Context, cfg *coreconfig.Config) (corecmd.TelegramApp, error) {
					res, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
					if err != nil {
						return nil, err
					}
					return app.New(cfg, res.Store, res), nil
				},
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Long: `Apply the embedded schema migrations for the configured SQL backend.

The file backend has no schema; the command is a no-op for it.

Examples:
  pocketreg migrate --config configs/config.yaml
  STORAGE_DRIVER=sqlite STORAGE_PATH=data/pocketreg.db pocketreg migrate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := corecmd.ResolveConfigPath(configPath, "", defaultConfigPath)
			cfg, err := coreconfig.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			defer func() {
				if err := logger.Shutdown(); err != nil {
					log.Printf("logger shutdown error: %v", err)
				}
			}()

			res, err := bootstrap.Run(cmd.Context(), bootstrap.Options{Config: cfg})
			if err != nil {
				return err
			}
			defer res.Close()

			if res.DB == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "storage driver %q has no schema, nothing to migrate\n", cfg.Storage.Driver)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.Storage.Driver)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pocketreg %s (commit %s, built %s, %s)\n",
				buildinfo.Version, buildinfo.Commit, buildinfo.Date, runtime.Version())
		},
	}
}
