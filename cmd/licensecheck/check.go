package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"licensekit/internal/app"
	"licensekit/internal/infrastructure"
	"licensekit/internal/services"
)

// errUnlicensed makes the process exit with status 1.
var errUnlicensed = errors.New("not licensed")

func CheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [product...]",
		Short: "Check whether products are licensed",
		Long: `Check looks up every product, prints the diagnostic events and the
verdict, and exits with status 1 when any product is not licensed.
Without arguments the configured product names are checked.`,
		PreRun: bindFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.GetViper()

			output := v.GetString("output")
			if output != "text" && output != "json" {
				return errors.Errorf("output format %s not supported (allowed formats are: text, json)", output)
			}

			cfg, logging, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer logging.Close()
			logger := logging.Logger

			if key := v.GetString("public-key"); key != "" {
				cfg.Verify.PublicKeyFile = key
			}
			if cmd.Flags().Changed("software-version") {
				cfg.Product.SoftwareVersion = v.GetInt("software-version")
			}

			names, err := products(cfg, args)
			if err != nil {
				return err
			}

			acquirer, err := app.BuildAcquirer(cfg, logger)
			if err != nil {
				return errors.Wrap(err, "failed to build license acquirer")
			}

			ctx := infrastructure.EnsureTraceID(cmd.Context())
			results := make([]*services.CheckResult, len(names))
			g, gctx := errgroup.WithContext(ctx)
			for i, name := range names {
				i, name := i, name
				g.Go(func() error {
					acq, err := acquirer.Acquire(gctx, name)
					results[i] = services.NewCheckResult(acq, err)
					results[i].Product = name
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if output == "json" {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				for _, res := range results {
					writeCheckText(cmd.OutOrStdout(), res)
				}
			}

			unlicensed := 0
			for _, res := range results {
				if !res.Licensed {
					unlicensed++
				}
			}
			if unlicensed > 0 {
				return errors.Wrapf(errUnlicensed, "%d of %d product(s)", unlicensed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "text", "output format (text, json)")
	cmd.Flags().String("public-key", "", "PEM public key used to verify license signatures")
	cmd.Flags().Int("software-version", 0, "software version checked against the license version window")

	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to marshal output")
	}
	return nil
}

func writeCheckText(w io.Writer, res *services.CheckResult) {
	mode := "structural"
	if res.Verified {
		mode = "verified"
	}
	fmt.Fprintf(w, "%s: %s (%s) severity=%s\n", res.Product, res.Verdict, mode, res.Severity)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, ev := range res.Events {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", ev.Severity, ev.Kind, ev.Source)
	}
	tw.Flush()

	for _, rej := range res.Rejections {
		fmt.Fprintf(w, "  rejected %s: %s\n", rej.Source, rej.Reason)
	}
	if res.Accepted != nil {
		fmt.Fprintf(w, "  accepted %s\n", res.Accepted.Source)
		if res.Accepted.ClientSignature != "" {
			fmt.Fprintf(w, "    client signature: %s\n", res.Accepted.ClientSignature)
		}
		if res.Accepted.ApplicationData != "" {
			fmt.Fprintf(w, "    application data: %s\n", res.Accepted.ApplicationData)
		}
	}
}
