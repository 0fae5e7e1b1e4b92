package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Defaults used when neither a flag nor the environment sets a value
const (
	DefaultAPIURL  = "http://localhost:8000"
	DefaultDBPath  = "docchat.db"
	DefaultLogDir  = "logs"
	DefaultTimeout = 60 * time.Second
)

// Environment variables read as fallbacks for the flags
const (
	EnvAPIURL  = "DOCCHAT_API_URL"
	EnvDBPath  = "DOCCHAT_DB"
	EnvLogDir  = "DOCCHAT_LOG_DIR"
	EnvTimeout = "DOCCHAT_TIMEOUT"
)

// Config holds application configuration
type Config struct {
	APIURL  string        // Base URL of the document chat API
	DBPath  string        // SQLite file holding the client state
	LogDir  string        // Directory for rotating log, trace and metric files
	Timeout time.Duration // Per-request HTTP timeout
	Debug   bool

	Ephemeral  bool // Keep state in memory only
	SkipHealth bool // Do not wait for the API health check at startup
	Telemetry  bool // Export traces and metrics to LogDir
}

// ErrHelp is returned by Load when usage was requested
var ErrHelp = pflag.ErrHelp

// Load builds the configuration from flags, then the environment (including an
// optional .env file), then defaults.
func Load(args []string) (Config, error) {
	// A missing .env is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	flags := pflag.NewFlagSet("docchat", pflag.ContinueOnError)
	flags.StringVar(&cfg.APIURL, "api-url", "", "Document chat API base URL (or "+EnvAPIURL+")")
	flags.StringVar(&cfg.DBPath, "db", "", "SQLite file for persisted state (or "+EnvDBPath+")")
	flags.StringVar(&cfg.LogDir, "log-dir", "", "Directory for log files (or "+EnvLogDir+")")
	flags.DurationVar(&cfg.Timeout, "timeout", 0, "HTTP request timeout (or "+EnvTimeout+")")
	flags.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&cfg.Ephemeral, "ephemeral", false, "Keep state in memory only")
	flags.BoolVar(&cfg.SkipHealth, "skip-health", false, "Skip the API health check at startup")
	flags.BoolVar(&cfg.Telemetry, "telemetry", true, "Export traces and metrics to the log directory")

	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg.withEnv(os.Getenv)
}

// withEnv fills empty fields from getenv and then from defaults
func (c Config) withEnv(getenv func(string) string) (Config, error) {
	if c.APIURL == "" {
		c.APIURL = strings.TrimSpace(getenv(EnvAPIURL))
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return Config{}, fmt.Errorf("invalid API URL %q: must start with http:// or https://", c.APIURL)
	}

	if c.DBPath == "" {
		c.DBPath = getenv(EnvDBPath)
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}

	if c.LogDir == "" {
		c.LogDir = getenv(EnvLogDir)
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}

	if c.Timeout == 0 {
		if raw := strings.TrimSpace(getenv(EnvTimeout)); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s value %q: %w", EnvTimeout, raw, err)
			}
			c.Timeout = d
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	return c, nil
}
