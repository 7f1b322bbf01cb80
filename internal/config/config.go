package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"licensekit/internal/locate"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "LICENSEKIT"

// ConfigFileEnvVar names an explicit configuration file.
const ConfigFileEnvVar = EnvPrefix + "_CONFIG_FILE"

// ErrConfigFileNotFound is returned when an explicitly named file is missing.
var ErrConfigFileNotFound = errors.New("config file not found")

// Config represents the complete application configuration
type Config struct {
	Product   ProductConfig   `yaml:"product" envconfig:"PRODUCT"`
	Locator   LocatorConfig   `yaml:"locator" envconfig:"LOCATOR"`
	Verify    VerifyConfig    `yaml:"verify" envconfig:"VERIFY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
}

// ProductConfig identifies the licensed software
type ProductConfig struct {
	// Names are checked when a command gets no product argument.
	Names           []string `yaml:"names" envconfig:"NAMES" validate:"dive,productname"`
	Vendor          string   `yaml:"vendor" envconfig:"VENDOR" validate:"omitempty,productname"`
	SoftwareVersion int      `yaml:"software_version" envconfig:"SOFTWARE_VERSION" validate:"gte=0"`
}

// LocatorConfig selects and parameterizes the license locator strategies
type LocatorConfig struct {
	Strategies     []string `yaml:"strategies" envconfig:"STRATEGIES" validate:"dive,strategy"`
	Paths          []string `yaml:"paths" envconfig:"PATHS"`
	Data           string   `yaml:"data" envconfig:"DATA"`
	LocationEnvVar string   `yaml:"location_env_var" envconfig:"LOCATION_ENV_VAR" validate:"required"`
	DataEnvVar     string   `yaml:"data_env_var" envconfig:"DATA_ENV_VAR" validate:"required"`
	SystemDir      string   `yaml:"system_dir" envconfig:"SYSTEM_DIR"`
}

// VerifyConfig contains signature verification settings
type VerifyConfig struct {
	PublicKeyFile string `yaml:"public_key_file" envconfig:"PUBLIC_KEY_FILE" validate:"required_if=Required true"`
	// Required refuses to run without a public key.
	Required bool `yaml:"required" envconfig:"REQUIRED"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=stdout stderr file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_if=Output file,required_if=Output both"`
}

// TelemetryConfig contains OpenTelemetry settings
type TelemetryConfig struct {
	ServiceName   string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	Tracing       bool   `yaml:"tracing" envconfig:"TRACING"`
	TraceExporter string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=none stdout"`
	Metrics       bool   `yaml:"metrics" envconfig:"METRICS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Address         string          `yaml:"address" envconfig:"ADDRESS" validate:"required"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gt=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gt=0"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Locator: LocatorConfig{
			Strategies:     append([]string(nil), locate.DefaultStrategies...),
			LocationEnvVar: locate.DefaultLocationEnvVar,
			DataEnvVar:     locate.DefaultDataEnvVar,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stderr",
			FilePath: "logs/licensekit.log",
		},
		Telemetry: TelemetryConfig{
			ServiceName:   "licensekit",
			TraceExporter: "none",
			Metrics:       true,
		},
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   40,
			},
		},
	}
}

// Load reads the configuration file found by FindConfigFile, then the
// LICENSEKIT_* environment. Precedence: environment, file, defaults.
func Load() (*Config, error) {
	return LoadFile(FindConfigFile())
}

// LoadFile is Load with an explicit file. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	// Fields without a variable set are left as they are.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// mergeFile overlays a YAML file on c. Keys absent from the file keep their
// current value.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Output = strings.ToLower(strings.TrimSpace(c.Logging.Output))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	c.Locator.Strategies = trimAll(c.Locator.Strategies)
	c.Locator.Paths = trimAll(c.Locator.Paths)
	c.Product.Names = trimAll(c.Product.Names)
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks every section against its validation tags.
func (c *Config) Validate() error {
	return newValidator().Struct(c)
}

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterValidation("strategy", func(fl validator.FieldLevel) bool {
		return locate.IsKnownStrategy(fl.Field().String())
	})
	v.RegisterValidation("productname", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.TrimSpace(s) != "" && !strings.ContainsAny(s, `/\`) && s != "." && s != ".."
	})

	// Report yaml names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FindConfigFile returns LICENSEKIT_CONFIG_FILE when set, otherwise the
// first existing file among the common locations, otherwise "".
func FindConfigFile() string {
	if path := os.Getenv(ConfigFileEnvVar); path != "" {
		return path
	}

	locations := []string{
		"licensekit.yaml",
		filepath.Join("configs", "licensekit.yaml"),
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// LocateOptions converts the locator section into strategy options.
func (c *Config) LocateOptions(logger *slog.Logger) locate.Options {
	return locate.Options{
		Strategies:     c.Locator.Strategies,
		Vendor:         c.Product.Vendor,
		ExplicitPaths:  c.Locator.Paths,
		InlineData:     c.Locator.Data,
		LocationEnvVar: c.Locator.LocationEnvVar,
		DataEnvVar:     c.Locator.DataEnvVar,
		SystemDir:      c.Locator.SystemDir,
		Logger:         logger,
	}
}
