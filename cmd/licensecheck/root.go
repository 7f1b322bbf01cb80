package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"licensekit/internal/config"
	"licensekit/internal/infrastructure"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "licensecheck",
		Short: "licensecheck finds and validates software licenses",
		Long: `licensecheck looks for license files of a product in every configured
location, reports what it found at each one and decides whether the
product is licensed.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().String("log-level", "", "set the log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("config-file", "", "path to a licensekit YAML config file")

	cmd.AddCommand(CheckCmd())
	cmd.AddCommand(PayloadCmd())
	cmd.AddCommand(ServeCmd())
	cmd.AddCommand(WatchCmd())
	cmd.AddCommand(VersionCmd())

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	return cmd
}

func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()
}

func bindFlags(cmd *cobra.Command, _ []string) {
	viper.BindPFlags(cmd.Flags())
}

// loadRuntime reads the configuration selected by the global flags and
// opens the logger. Console logs go to the command's error stream.
func loadRuntime(cmd *cobra.Command) (*config.Config, *infrastructure.Logging, error) {
	v := viper.GetViper()

	path := v.GetString("config-file")
	if path == "" {
		path = config.FindConfigFile()
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}

	if level := v.GetString("log-level"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
		if err := cfg.Validate(); err != nil {
			return nil, nil, errors.Wrap(err, "invalid log level")
		}
	}

	logging, err := infrastructure.OpenLogging(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to initialize logger")
	}
	return cfg, logging, nil
}

// products returns args, or the configured product names when no argument
// was given.
func products(cfg *config.Config, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if len(cfg.Product.Names) == 0 {
		return nil, errors.New("no product given and none configured")
	}
	return cfg.Product.Names, nil
}
