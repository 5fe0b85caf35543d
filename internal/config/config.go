// Package config loads the habitual YAML settings file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/utils"
)

// Config is the on-disk settings file. Command-line flags override it.
type Config struct {
	// Storage is a file path (.db for SQLite, .json for a flat file), a
	// PostgreSQL URL, or "keyring" to read the URL from the OS keyring.
	Storage string `yaml:"storage"`

	// Timezone is an IANA name or "Local". Daily and weekly resets follow it.
	Timezone string `yaml:"timezone"`

	PollInterval     string `yaml:"poll_interval"`
	DefaultColor     string `yaml:"default_color"`
	DefaultFrequency string `yaml:"default_frequency"`
	Debug            bool   `yaml:"debug"`
}

func Default() *Config {
	return &Config{
		Storage:          constants.DefaultStorePath,
		Timezone:         "Local",
		PollInterval:     constants.DefaultPollInterval.String(),
		DefaultColor:     constants.DefaultColor,
		DefaultFrequency: constants.DefaultFrequency,
	}
}

// Load reads path. A missing file yields the defaults; unknown keys are
// rejected so typos surface instead of being ignored.
func Load(path string) (*Config, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating its directory.
func (c *Config) Save(path string) error {
	path, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Storage == "" {
		c.Storage = def.Storage
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.PollInterval == "" {
		c.PollInterval = def.PollInterval
	}
	if c.DefaultColor == "" {
		c.DefaultColor = def.DefaultColor
	}
	if c.DefaultFrequency == "" {
		c.DefaultFrequency = def.DefaultFrequency
	}
}

func (c *Config) Validate() error {
	var errs []error
	if !utils.ValidateTimezone(c.Timezone) {
		errs = append(errs, fmt.Errorf("timezone: unknown location %q", c.Timezone))
	}
	if _, err := c.Interval(); err != nil {
		errs = append(errs, err)
	}
	if _, err := models.ParseFrequency(c.DefaultFrequency); err != nil {
		errs = append(errs, fmt.Errorf("default_frequency: %w", err))
	}
	if !ValidColor(c.DefaultColor) {
		errs = append(errs, fmt.Errorf("default_color: %q is not a #RRGGBB color", c.DefaultColor))
	}
	return errors.Join(errs...)
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	return utils.LoadLocation(c.Timezone)
}

// Interval parses PollInterval. It must be at least constants.MinPollInterval.
func (c *Config) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("poll_interval: %w", err)
	}
	if d < constants.MinPollInterval {
		return 0, fmt.Errorf("poll_interval: %s is below the minimum of %s", d, constants.MinPollInterval)
	}
	return d, nil
}

func (c *Config) Frequency() models.Frequency {
	f, err := models.ParseFrequency(c.DefaultFrequency)
	if err != nil {
		return models.FrequencyDaily
	}
	return f
}

func ValidColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range strings.ToLower(s[1:]) {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
