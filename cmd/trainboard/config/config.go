// Package config provides configuration parsing for trainboard.
//
// Values come from command-line flags, falling back to environment variables
// and then to defaults. A .env file in the working directory, if present, is
// loaded into the environment first; variables already set win over it.
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	// cfg now contains validated configuration
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/HatiCode/trainboard/pkg/lines"
	"github.com/HatiCode/trainboard/pkg/refresh"
	"github.com/HatiCode/trainboard/pkg/upstream"
)

type Config struct {
	Listen        string        `validate:"required"`
	GRPCListen    string        // empty disables the gRPC health server
	UpstreamURL   string        `validate:"required,url"`
	HubStation    string        `validate:"required"`
	Limit         int           `validate:"min=1"`
	Interval      time.Duration `validate:"gt=0s"`
	MaxStartDelay time.Duration `validate:"gt=0s"`
	FetchTimeout  time.Duration `validate:"gt=0s"`
	LinesFile     string
	LogFormat     string `validate:"oneof=text json"`
	LogLevel      string
	Project       string
}

// StaleAfter is the age of the oldest cached entry past which /lines is
// flagged stale: two missed refresh intervals.
func (c *Config) StaleAfter() time.Duration {
	return 2 * c.Interval
}

// ParseFlags loads .env, parses os.Args into the global flag set and exits
// the process on invalid configuration.
func ParseFlags() *Config {
	if err := LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	return cfg
}

// LoadDotEnv loads path into the environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Parse registers trainboard's flags on flags, parses args and validates the
// result.
func Parse(flags *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	flags.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":5000"), "HTTP listen address")
	flags.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":50051"), "gRPC health listen address (empty disables)")
	flags.StringVar(&cfg.UpstreamURL, "upstream-url", getEnv("UPSTREAM_URL", upstream.DefaultBaseURL), "NextToArrive base URL")
	flags.StringVar(&cfg.HubStation, "hub-station", getEnv("HUB_STATION", lines.DefaultHubStation), "Hub station every line is polled against")
	flags.IntVar(&cfg.Limit, "limit", getEnvInt("LIMIT", upstream.DefaultLimit), "Trains requested per fetch")
	flags.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", refresh.DefaultInterval), "Refresh interval per line and direction")
	flags.DurationVar(&cfg.MaxStartDelay, "max-start-delay", getEnvDuration("MAX_START_DELAY", refresh.DefaultMaxStartDelay), "Upper bound of the random initial delay")
	flags.DurationVar(&cfg.FetchTimeout, "fetch-timeout", getEnvDuration("FETCH_TIMEOUT", refresh.DefaultTimeout), "Timeout of a single upstream fetch")
	flags.StringVar(&cfg.LinesFile, "lines-file", getEnv("LINES_FILE", ""), "YAML or TOML file overriding the built-in lines")
	flags.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format (text|json)")
	flags.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")
	flags.StringVar(&cfg.Project, "project", getEnv("PROJECT", ""), "Deployment identifier, logged at startup")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate reports every invalid field by its flag name.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("-%s failed %q (got %v)", flagNames[fe.Field()], fe.Tag(), fe.Value()))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return fmt.Errorf("invalid configuration: %w", err)
}

var flagNames = map[string]string{
	"Listen":        "listen",
	"UpstreamURL":   "upstream-url",
	"HubStation":    "hub-station",
	"Limit":         "limit",
	"Interval":      "interval",
	"MaxStartDelay": "max-start-delay",
	"FetchTimeout":  "fetch-timeout",
	"LogFormat":     "log-format",
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
