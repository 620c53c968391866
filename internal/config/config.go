// Package config resolves the server configuration. Later sources override
// earlier ones: built-in defaults, the YAML file, the environment (including
// a .env file) and finally command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/frankferrari/lanomat/internal/models"
	"github.com/frankferrari/lanomat/internal/services"
)

// EnvPrefix prefixes every environment variable read here
const EnvPrefix = "LANOMAT_"

// NATSConfig enables the event relay when URL is set
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// SessionDefaults are the settings new sessions start with
type SessionDefaults struct {
	BonusVoteBudget          int               `yaml:"bonus_vote_budget"`
	AllowDownvotes           bool              `yaml:"allow_downvotes"`
	ExcludePreviousGame      bool              `yaml:"exclude_previous_game"`
	PreviousGamePenalty      int               `yaml:"previous_game_penalty"`
	CountdownEnabled         bool              `yaml:"countdown_enabled"`
	CountdownDurationMinutes int               `yaml:"countdown_duration_minutes"`
	WheelEnabled             bool              `yaml:"wheel_enabled"`
	WheelFilterMode          models.FilterMode `yaml:"wheel_filter_mode"`
	WheelTopCount            int               `yaml:"wheel_top_count"`
	WheelProportional        bool              `yaml:"wheel_proportional"`
}

// Session converts the defaults into session settings
func (d SessionDefaults) Session() models.Session {
	return models.Session{
		Voting: models.VotingRules{
			BonusVoteBudget:     d.BonusVoteBudget,
			AllowDownvotes:      d.AllowDownvotes,
			ExcludePreviousGame: d.ExcludePreviousGame,
			PreviousGamePenalty: d.PreviousGamePenalty,
		},
		Countdown: models.CountdownConfig{
			Enabled:         d.CountdownEnabled,
			DurationMinutes: d.CountdownDurationMinutes,
		},
		Wheel: models.WheelConfig{
			Enabled:      d.WheelEnabled,
			FilterMode:   d.WheelFilterMode,
			TopCount:     d.WheelTopCount,
			Proportional: d.WheelProportional,
		},
	}
}

func defaultsFrom(s models.Session) SessionDefaults {
	return SessionDefaults{
		BonusVoteBudget:          s.Voting.BonusVoteBudget,
		AllowDownvotes:           s.Voting.AllowDownvotes,
		ExcludePreviousGame:      s.Voting.ExcludePreviousGame,
		PreviousGamePenalty:      s.Voting.PreviousGamePenalty,
		CountdownEnabled:         s.Countdown.Enabled,
		CountdownDurationMinutes: s.Countdown.DurationMinutes,
		WheelEnabled:             s.Wheel.Enabled,
		WheelFilterMode:          s.Wheel.FilterMode,
		WheelTopCount:            s.Wheel.TopCount,
		WheelProportional:        s.Wheel.Proportional,
	}
}

// Config is the resolved server configuration
type Config struct {
	Port         int             `yaml:"port"`
	DBPath       string          `yaml:"db"`
	BaseURL      string          `yaml:"base_url"`
	LogLevel     string          `yaml:"log_level"`
	LogFormat    string          `yaml:"log_format"`
	HTTPLogging  bool            `yaml:"http_logging"`
	CookieSecure bool            `yaml:"cookie_secure"`
	SpinLead     time.Duration   `yaml:"spin_lead"`
	NATS         NATSConfig      `yaml:"nats"`
	Defaults     SessionDefaults `yaml:"session_defaults"`

	// Only settable by flag
	ShowVersion bool `yaml:"-"`
	NoKeyboard  bool `yaml:"-"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Port:      8080,
		DBPath:    "lanomat.db",
		LogLevel:  "info",
		LogFormat: "text",
		SpinLead:  services.DefaultSpinLead,
		Defaults:  defaultsFrom(services.DefaultSettings()),
	}
}

// PublicURL is the address players use to reach the server
func (c *Config) PublicURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

// Validate checks the resolved values
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("database path is required")
	}
	if c.SpinLead < 0 {
		return errors.New("spin lead must not be negative")
	}
	d := c.Defaults.Session()
	if err := services.ValidateSettings(d.Voting, d.Countdown, d.Wheel); err != nil {
		return fmt.Errorf("session defaults: %w", err)
	}
	return nil
}

// LoadFile merges a YAML file into c. Keys missing from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// ApplyEnv overrides c with LANOMAT_* variables found by lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	num("PORT", &c.Port)
	str("DB", &c.DBPath)
	str("BASE_URL", &c.BaseURL)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	boolean("HTTP_LOGGING", &c.HTTPLogging)
	boolean("COOKIE_SECURE", &c.CookieSecure)
	str("NATS_URL", &c.NATS.URL)
	str("NATS_SUBJECT_PREFIX", &c.NATS.SubjectPrefix)
	if v, ok := lookup(EnvPrefix + "SPIN_LEAD"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSPIN_LEAD: %w", EnvPrefix, err))
		} else {
			c.SpinLead = d
		}
	}
	num("BONUS_VOTE_BUDGET", &c.Defaults.BonusVoteBudget)
	num("PREVIOUS_GAME_PENALTY", &c.Defaults.PreviousGamePenalty)
	num("COUNTDOWN_MINUTES", &c.Defaults.CountdownDurationMinutes)

	return errors.Join(errs...)
}

// Load resolves the configuration for the given command-line arguments.
// A .env file is read when present; it never overrides variables already
// set in the environment.
func Load(args []string, output io.Writer) (*Config, error) {
	fset := flag.NewFlagSet("lanomat", flag.ContinueOnError)
	fset.SetOutput(output)

	var (
		configPath  = fset.String("config", "", "YAML config file")
		envFile     = fset.String("env-file", ".env", "dotenv file to load")
		port        = fset.Int("port", 0, "HTTP server port (default 8080)")
		dbPath      = fset.String("db", "", "SQLite database path (default \"lanomat.db\")")
		baseURL     = fset.String("base-url", "", "public URL used in join links and QR codes")
		logLevel    = fset.String("loglevel", "", "log level: debug, info, warn, error")
		logFormat   = fset.String("logformat", "", "log format: text or json")
		httpLogging = fset.Bool("httplog", false, "log every HTTP request")
		natsURL     = fset.String("nats", "", "NATS URL to mirror session events to")
		noKeyboard  = fset.Bool("nokeyboard", false, "disable keyboard shortcuts")
		showVersion = fset.Bool("version", false, "show version and exit")
	)
	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", *envFile, err)
	}

	cfg := Default()
	path := *configPath
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	// only flags given explicitly win over file and environment
	fset.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "db":
			cfg.DBPath = *dbPath
		case "base-url":
			cfg.BaseURL = *baseURL
		case "loglevel":
			cfg.LogLevel = *logLevel
		case "logformat":
			cfg.LogFormat = *logFormat
		case "httplog":
			cfg.HTTPLogging = *httpLogging
		case "nats":
			cfg.NATS.URL = *natsURL
		}
	})
	cfg.ShowVersion = *showVersion
	cfg.NoKeyboard = *noKeyboard

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
