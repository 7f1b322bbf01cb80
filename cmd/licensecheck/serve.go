package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"licensekit/internal/app"
)

func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "serve",
		Short:  "Serve license diagnostics over HTTP",
		Long:   `Serve runs the HTTP diagnostics API until interrupted.`,
		PreRun: bindFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logging, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer logging.Close()
			logger := logging.Logger

			if addr := viper.GetViper().GetString("address"); addr != "" {
				cfg.Server.Address = addr
			}

			application, err := app.NewApplication(cfg, logger)
			if err != nil {
				return errors.Wrap(err, "failed to create application")
			}
			return application.Run(cmd.Context())
		},
	}

	cmd.Flags().String("address", "", "listen address, overrides the configured one")

	return cmd
}
