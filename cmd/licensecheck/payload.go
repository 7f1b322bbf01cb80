package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"licensekit/internal/app"
	"licensekit/internal/services"
)

func PayloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payload <product>",
		Short: "Print the signing payload of every license record",
		Long: `Payload prints the canonical text each license signature of the product
is computed over, one record per line, prefixed with its source.`,
		Args:   cobra.ExactArgs(1),
		PreRun: bindFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := viper.GetViper().GetString("output")
			if output != "text" && output != "json" {
				return errors.Errorf("output format %s not supported (allowed formats are: text, json)", output)
			}

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

			svc := services.NewLicenseService(acquirer, acquirer.Reader(), nil, logger)
			result, err := svc.Payloads(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output == "json" {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			for _, p := range result.Payloads {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Source, p.Payload)
			}
			if len(result.Payloads) == 0 {
				return errors.Wrapf(errUnlicensed, "no license record for %s", result.Product)
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "text", "output format (text, json)")

	return cmd
}
