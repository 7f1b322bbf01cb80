package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"licensekit/internal/app"
)

type VersionOutput struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
}

func VersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "version",
		Short:  "Print the current version and exit",
		Long:   `Print the current version and exit`,
		PreRun: bindFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := viper.GetViper().GetString("output")

			versionOutput := VersionOutput{
				Version:   app.Version,
				GoVersion: runtime.Version(),
			}

			if output != "json" && output != "" {
				return errors.Errorf("output format %s not supported (allowed formats are: json)", output)
			}

			if output == "json" {
				outputJSON, err := json.Marshal(versionOutput)
				if err != nil {
					return errors.Wrap(err, "failed to marshal version output")
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(outputJSON))
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "licensecheck %s\n", app.Version)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "output format (currently supported: json)")

	return cmd
}
