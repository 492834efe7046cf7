package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bones/internal/api"
	"github.com/starford/bones/internal/ingest"
	"github.com/starford/bones/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Zone       ZoneConfig        `yaml:"zone"`
	Stream     StreamConfig      `yaml:"stream"`
	Classifier ClassifierConfig  `yaml:"classifier"`
	Auth       AuthConfig        `yaml:"auth"`
	RateLimit  RateLimitConfig   `yaml:"rate_limit"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Zone.Validate(); err != nil {
		return fmt.Errorf("zone: %w", err)
	}
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	if err := c.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ZoneConfig names the reference time zone that defines "today".
type ZoneConfig struct {
	Name string `yaml:"name"`
}

// Validate validates the zone configuration.
func (c *ZoneConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required, validation.By(func(any) error {
			_, err := c.Location()
			return err
		})),
	)
}

// Location loads the configured IANA zone.
func (c *ZoneConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q", c.Name)
	}
	return loc, nil
}

// StreamConfig holds the filtered-stream connection settings.
//
// The bearer token comes from BearerToken (usually "${STREAM_BEARER_TOKEN}")
// or from BearerTokenFile, which is watched and reloaded on change. When both
// are set the file wins.
type StreamConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Endpoint         string        `yaml:"endpoint"`
	RulesEndpoint    string        `yaml:"rules_endpoint"`
	Account          string        `yaml:"account"`
	Language         string        `yaml:"language"`
	BearerToken      string        `yaml:"bearer_token"`
	BearerTokenFile  string        `yaml:"bearer_token_file"`
	InitialBackoff   time.Duration `yaml:"initial_backoff"`
	RateLimitBackoff time.Duration `yaml:"rate_limit_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
}

// Validate validates the stream configuration. A disabled stream is not checked.
func (c *StreamConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.Account, validation.Required),
		validation.Field(&c.InitialBackoff, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.RateLimitBackoff, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxBackoff, validation.Required, validation.Min(c.InitialBackoff)),
		validation.Field(&c.HeartbeatTimeout, validation.Required, validation.Min(time.Second)),
	); err != nil {
		return err
	}
	if c.BearerToken == "" && c.BearerTokenFile == "" {
		return errors.New("one of bearer_token or bearer_token_file is required")
	}
	return nil
}

// IngestConfig returns the reconnect and watchdog timings.
func (c *StreamConfig) IngestConfig() ingest.Config {
	return ingest.Config{
		InitialBackoff:   c.InitialBackoff,
		RateLimitBackoff: c.RateLimitBackoff,
		MaxBackoff:       c.MaxBackoff,
		HeartbeatTimeout: c.HeartbeatTimeout,
	}
}

// SourceConfig returns the HTTP source settings.
func (c *StreamConfig) SourceConfig() ingest.HTTPSourceConfig {
	return ingest.HTTPSourceConfig{
		Endpoint:      c.Endpoint,
		RulesEndpoint: c.RulesEndpoint,
		Account:       c.Account,
		Language:      c.Language,
	}
}

// ClassifierConfig holds optional keyword overrides keyed by classification
// machine name. Rule order is fixed and cannot be configured.
type ClassifierConfig struct {
	Keywords map[string][]string `yaml:"keywords"`
}

// Validate validates the classifier configuration.
func (c *ClassifierConfig) Validate() error {
	_, err := c.Overrides()
	return err
}

// Overrides maps the configured keyword lists onto classifications.
func (c *ClassifierConfig) Overrides() (map[models.Classification][]string, error) {
	if len(c.Keywords) == 0 {
		return nil, nil
	}
	out := make(map[models.Classification][]string, len(c.Keywords))
	for name, kws := range c.Keywords {
		cls, err := models.ParseClassification(name)
		if err != nil {
			return nil, fmt.Errorf("keywords: %w", err)
		}
		out[cls] = kws
	}
	return out, nil
}

// RateLimitConfig controls the limiter on write endpoints.
// A zero WritesPerSecond disables limiting.
type RateLimitConfig struct {
	WritesPerSecond float64 `yaml:"writes_per_second"`
	Burst           int     `yaml:"burst"`
}

// Validate validates the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.WritesPerSecond, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
	)
}

// Limits converts to the API middleware settings.
func (c *RateLimitConfig) Limits() api.RateLimitConfig {
	return api.RateLimitConfig{PerSecond: c.WritesPerSecond, Burst: c.Burst}
}

// AuthConfig holds authentication configuration for the write endpoints.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	ic := ingest.DefaultConfig()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 3000,
			},
		},
		Zone: ZoneConfig{
			Name: "America/New_York",
		},
		Stream: StreamConfig{
			Enabled:          false,
			Endpoint:         "https://api.twitter.com/2/tweets/search/stream",
			RulesEndpoint:    "https://api.twitter.com/2/tweets/search/stream/rules",
			Account:          "jongraz",
			Language:         "en",
			InitialBackoff:   ic.InitialBackoff,
			RateLimitBackoff: ic.RateLimitBackoff,
			MaxBackoff:       ic.MaxBackoff,
			HeartbeatTimeout: ic.HeartbeatTimeout,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
