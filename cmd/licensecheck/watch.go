package main

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"licensekit/internal/app"
	"licensekit/internal/infrastructure"
	"licensekit/internal/services"
	"licensekit/internal/watch"
)

func WatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <product>",
		Short: "Re-check a product whenever one of its license files changes",
		Long: `Watch prints the license check of the product, then checks again every
time a candidate license file is created, modified or removed.`,
		Args:   cobra.ExactArgs(1),
		PreRun: bindFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logging, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer logging.Close()
			logger := logging.Logger

			acquirer, err := app.BuildAcquirer(cfg, logger)
			if err != nil {
				return errors.Wrap(err, "failed to build license acquirer")
			}

			product := args[0]
			paths, err := acquirer.Reader().Candidates(product)
			if err != nil {
				return errors.Wrap(err, "failed to resolve license locations")
			}

			ctx := cmd.Context()
			check := func() {
				acq, err := acquirer.Acquire(infrastructure.EnsureTraceID(ctx), product)
				res := services.NewCheckResult(acq, err)
				res.Product = product
				writeCheckText(cmd.OutOrStdout(), res)
			}
			check()

			w := watch.New(paths, func(changed []string) {
				logger.Info("license files changed", slog.Any("paths", changed))
				check()
			}, watch.WithDebounce(viper.GetViper().GetDuration("debounce")), watch.WithLogger(logger))

			logger.Info("watching license files", slog.String("product", product), slog.Any("paths", paths))
			return w.Run(ctx)
		},
	}

	cmd.Flags().Duration("debounce", 300*time.Millisecond, "quiet period before a change triggers a check")

	return cmd
}
