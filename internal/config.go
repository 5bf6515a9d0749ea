package internal

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/store"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Identity IdentityConfig    `yaml:"identity"`
	Relays   RelayConfig       `yaml:"relays"`
	Sync     SyncConfig        `yaml:"sync"`
	Inbox    InboxConfig       `yaml:"inbox"`
	Media    MediaConfig       `yaml:"media"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if err := c.Relays.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Inbox.Validate(); err != nil {
		return err
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

// SQLiteConfig holds the record store location.
//
// DisableLocalStorage opens the store in memory instead: every code
// path works the same, nothing touches disk, and records last until
// the process exits.
type SQLiteConfig struct {
	Path                string `yaml:"path"`
	DisableLocalStorage bool   `yaml:"disable_local_storage"`
}

// StorePath returns the SQLite location to open, honouring the
// local-storage switch.
func (c *SQLiteConfig) StorePath() string {
	if c.DisableLocalStorage {
		return store.MemoryPath
	}
	return c.Path
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	if c.DisableLocalStorage {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IdentityConfig locates the encrypted keystore. The passphrase is
// normally supplied via ${OTHALA_PASSPHRASE} expansion so the secret
// lives in the environment, not in the file.
type IdentityConfig struct {
	Keystore   string `yaml:"keystore"`
	Passphrase string `yaml:"passphrase"`
}

// Validate validates the identity configuration.
func (c *IdentityConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Keystore, validation.Required),
	)
}

// RelayConfig lists the relays records mirror to. Timeouts bound a
// single relay's publish or query; zero keeps the pool defaults.
type RelayConfig struct {
	URLs           []string `yaml:"urls"`
	PublishTimeout Duration `yaml:"publish_timeout"`
	QueryTimeout   Duration `yaml:"query_timeout"`
}

// Validate validates the relay configuration.
func (c *RelayConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URLs, validation.Each(validation.By(relayURLRule))),
	)
}

func relayURLRule(v any) error {
	s, _ := v.(string)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http(s) relay URL")
	}
	return nil
}

// SyncConfig seeds the sync settings on first run and sizes the engine.
// Enabled, Frequency and ConflictPolicy land in the settings row only
// when none exists yet; after that the API owns them.
type SyncConfig struct {
	Enabled        bool                  `yaml:"enabled"`
	Frequency      models.SyncFrequency  `yaml:"frequency"`
	ConflictPolicy models.ConflictPolicy `yaml:"conflict_policy"`
	Interval       Duration              `yaml:"interval"`
	Parallelism    int                   `yaml:"parallelism"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Frequency,
			validation.In(models.FrequencyInstant, models.FrequencyInterval, models.FrequencyManual)),
		validation.Field(&c.ConflictPolicy,
			validation.In(models.PolicyAsk, models.PolicyLocal, models.PolicyRemote)),
		validation.Field(&c.Parallelism, validation.Min(0), validation.Max(64)),
	)
}

// Settings returns the first-run settings seed. Unset enum fields keep
// the model defaults.
func (c *SyncConfig) Settings(localStorage bool) models.Settings {
	s := models.DefaultSettings()
	s.LocalStorageEnabled = localStorage
	s.RelaySyncEnabled = c.Enabled
	if c.Frequency != "" {
		s.SyncFrequency = c.Frequency
	}
	if c.ConflictPolicy != "" {
		s.ConflictPolicy = c.ConflictPolicy
	}
	return s
}

// TickInterval returns the runner tick, defaulting when unset.
func (c *SyncConfig) TickInterval() time.Duration {
	if d := time.Duration(c.Interval); d > 0 {
		return d
	}
	return 5 * time.Minute
}

// InboxConfig wires the drop-folder watcher.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// MediaConfig locates binary media storage. An empty dir leaves the
// media endpoints unmounted.
type MediaConfig struct {
	Dir string `yaml:"dir"`
}

// AuthConfig holds authentication configuration.
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
	// Normalise empty mode to "disabled" for backward compatibility.
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

// Duration wraps time.Duration so YAML can carry values like "90s" or
// "5m". Bare integers are taken as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("config: bad duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("config: duration must be a string like \"30s\" or integer nanoseconds")
	}
	*d = Duration(n)
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./othala.db",
		},
		Identity: IdentityConfig{
			Keystore: "./othala.keys",
		},
		Sync: SyncConfig{
			Frequency:      models.FrequencyInterval,
			ConflictPolicy: models.PolicyAsk,
			Interval:       Duration(5 * time.Minute),
			Parallelism:    4,
		},
		Inbox: InboxConfig{
			Path: "./inbox",
		},
		Media: MediaConfig{
			Dir: "./media",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
