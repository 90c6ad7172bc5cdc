// Package config loads the albumsync configuration: Google Photos API
// credentials, run tuning (parallelism, deadlines, retry budget), and the
// label/subject keyword-album maps.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// KeyAlbum maps an EXIF Label or Subject keyword to an additional album
// title a matching media item should also be added to (§"Supplemented
// features" in SPEC_FULL.md).
type KeyAlbum struct {
	Key   string `mapstructure:"key"`
	Album string `mapstructure:"album"`
}

// GooglePhotosConfig holds the OAuth2 app credentials used to authenticate
// against the Cloud API Client.
type GooglePhotosConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`

	LabelAlbums   []KeyAlbum `mapstructure:"label_albums"`
	SubjectAlbums []KeyAlbum `mapstructure:"subject_albums"`
}

func (c *GooglePhotosConfig) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("missing google photos client_id or client_secret")
	}
	if c.RedirectURI == "" {
		c.RedirectURI = "http://localhost:8080"
	}
	return nil
}

// RunConfig tunes the upload orchestrator's concurrency and resilience,
// per spec §5 and §4.5.
type RunConfig struct {
	Parallelism           int           `mapstructure:"parallelism"`
	Deadline              time.Duration `mapstructure:"deadline"`
	MaxConsecutiveRetries int           `mapstructure:"max_consecutive_retries"`
	StateDebounceInterval time.Duration `mapstructure:"state_debounce_interval"`
	UploadTokenTTL        time.Duration `mapstructure:"upload_token_ttl"`
	ShutdownGracePeriod   time.Duration `mapstructure:"shutdown_grace_period"`

	// RateLimitPerSecond and RateLimitBurst cap outbound Google Photos API
	// calls ahead of time, independent of the reactive backoff in §4.5.
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst"`
}

func (c *RunConfig) applyDefaults() {
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
	if c.Deadline <= 0 {
		c.Deadline = 6 * time.Hour
	}
	if c.MaxConsecutiveRetries <= 0 {
		c.MaxConsecutiveRetries = 8
	}
	if c.StateDebounceInterval <= 0 {
		c.StateDebounceInterval = time.Second
	}
	if c.UploadTokenTTL <= 0 {
		c.UploadTokenTTL = 24 * time.Hour
	}
	if c.ShutdownGracePeriod <= 0 {
		c.ShutdownGracePeriod = 30 * time.Second
	}
	if c.RateLimitPerSecond <= 0 {
		// TODO: check the actual rate limits for Google Photos API.
		c.RateLimitPerSecond = 5
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 10
	}
}

// Config is the top-level albumsync configuration.
type Config struct {
	GooglePhotos GooglePhotosConfig `mapstructure:"google_photos"`
	Run          RunConfig          `mapstructure:"run"`

	path string `mapstructure:"-"`
}

func (c *Config) Validate() error {
	if err := c.GooglePhotos.Validate(); err != nil {
		return fmt.Errorf("invalid google_photos config (%s): %w", c.path, err)
	}
	return nil
}

// DefaultConfigPath returns the default path for the albumsync config file.
func DefaultConfigPath() (string, error) {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "albumsync", "config.toml"), nil
	}
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".albumsync.toml"), nil
	}
	return "", fmt.Errorf("unable to determine default config path")
}

// Load reads the config file at configPathFlag (or the default path if
// empty), applying environment-variable overrides and run-tuning defaults.
// A missing config file is not an error only when configPathFlag is empty
// and the default path also doesn't exist; callers that need credentials
// must still call Validate.
func Load(configPathFlag string) (Config, error) {
	path := configPathFlag
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
	}

	viper.SetConfigFile(path)
	viper.SetConfigType("toml")

	viper.SetEnvPrefix("ALBUMSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if os.IsNotExist(err) && configPathFlag == "" {
			cfg := Config{path: path}
			cfg.Run.applyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("error reading config (%s): %w", path, err)
	}

	cfg := Config{path: path}
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config (%s): %w", path, err)
	}
	cfg.Run.applyDefaults()
	return cfg, nil
}
