package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"profiledrive/internal/config"
)

type rootOptions struct {
	configPath     string
	s3ConfigPath   string
	authConfigPath string
	migrationsURL  string
	logLevel       string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "profiledrive",
		Short:         "Profile picture and marks card lifecycle service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			warning, err := configureLogger(opts.logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			opts.cfg = cfg
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", ".app.env", "application config file")
	flags.StringVar(&opts.s3ConfigPath, "s3-config", ".s3.env", "object store config file")
	flags.StringVar(&opts.authConfigPath, "auth-config", ".auth.env", "token verification config file")
	flags.StringVar(&opts.migrationsURL, "migrations", "file://migrations", "migration source URL")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	return cmd
}
