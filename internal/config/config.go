package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"weekcal/internal/model"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

var (
	ErrEmptyPath     = errors.New("config path is empty")
	ErrNilConfig     = errors.New("config is nil")
	ErrInvalidConfig = errors.New("invalid config")
)

// ICSConfig describes a single ICS subscription source feeding events.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// WorkingHours bounds the slots of a day, [Start:00, End:00).
type WorkingHours struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// LogConfig controls internal/log.
type LogConfig struct {
	// Level is debug, info or error.
	Level string `yaml:"level" json:"level"`
	// Format is json or console.
	Format string `yaml:"format" json:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// LocalTimezone is the zone used for day boundaries (week start, 08:00/23:00
	// bounds, "today"). Empty means the server's local zone.
	LocalTimezone string `yaml:"local_timezone" json:"local_timezone"`

	// Timezone is the initially selected display timezone. It must be one of
	// Timezones.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Timezones is the fixed set offered by the timezone selector.
	Timezones []string `yaml:"timezones" json:"timezones"`

	WorkingHours WorkingHours `yaml:"working_hours" json:"working_hours"`

	// SlotMinutes is the slot length.
	SlotMinutes int `yaml:"slot_minutes" json:"slot_minutes"`

	// Events is the inline event feed, loaded first.
	Events []model.Event `yaml:"events" json:"events"`

	// EventsFile is an optional YAML file with an `events:` list, loaded after
	// the inline events.
	EventsFile string `yaml:"events_file,omitempty" json:"events_file,omitempty"`

	// ICS is the list of subscribed ICS sources, loaded last.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// ICSCacheDir stores ETag/Last-Modified metadata and bodies per feed.
	ICSCacheDir string `yaml:"ics_cache_dir" json:"ics_cache_dir"`

	// HorizonDays is how far before and after now ICS recurrences are expanded.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *") used to
	// reload the event feed. Empty disables reloading.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Log LogConfig `yaml:"log" json:"log"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// SeedEvents are the events shipped with a fresh config.
func SeedEvents() []model.Event {
	return []model.Event{
		{ID: 101, Name: "test", Date: "2023-12-14", Time: "11:30"},
		{ID: 102, Name: "test 1", Date: "2023-12-14", Time: "09:00"},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        "127.0.0.1:8080",
		LocalTimezone: "",
		Timezone:      "UTC",
		Timezones:     []string{"UTC", "America/New_York"},
		WorkingHours:  WorkingHours{Start: 8, End: 23},
		SlotMinutes:   30,
		Events:        SeedEvents(),
		ICS:           []ICSConfig{},
		ICSCacheDir:   "./cache/ics-cache",
		HorizonDays:   28,
		RefreshCron:   "*/15 * * * *",
		Log:           LogConfig{Level: "info", Format: "json"},
		BasicAuth:     nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly. It never rejects values;
// that is Validate's job.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if len(c.Timezones) == 0 {
		c.Timezones = d.Timezones
	}
	if c.Timezone == "" {
		c.Timezone = c.Timezones[0]
	}
	if c.WorkingHours == (WorkingHours{}) {
		c.WorkingHours = d.WorkingHours
	}
	if c.SlotMinutes <= 0 {
		c.SlotMinutes = d.SlotMinutes
	}
	if c.Events == nil {
		c.Events = []model.Event{}
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.ICSCacheDir == "" {
		c.ICSCacheDir = d.ICSCacheDir
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = d.HorizonDays
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Validate reports configuration errors that must stop startup. All errors
// wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if _, err := c.LocalLocation(); err != nil {
		return fmt.Errorf("%w: local_timezone: %v", ErrInvalidConfig, err)
	}
	found := false
	for _, tz := range c.Timezones {
		if tz == "" {
			return fmt.Errorf("%w: empty entry in timezones", ErrInvalidConfig)
		}
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("%w: timezones: %v", ErrInvalidConfig, err)
		}
		if tz == c.Timezone {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: timezone %q is not one of %v", ErrInvalidConfig, c.Timezone, c.Timezones)
	}
	wh := c.WorkingHours
	if wh.Start < 0 || wh.End > 24 || wh.Start >= wh.End {
		return fmt.Errorf("%w: working_hours %d-%d", ErrInvalidConfig, wh.Start, wh.End)
	}
	if c.SlotMinutes <= 0 || (24*60)%c.SlotMinutes != 0 {
		return fmt.Errorf("%w: slot_minutes %d does not divide a day", ErrInvalidConfig, c.SlotMinutes)
	}
	for i, ev := range c.Events {
		if _, err := time.Parse(model.DateLayout, ev.Date); err != nil {
			return fmt.Errorf("%w: events[%d].date %q", ErrInvalidConfig, i, ev.Date)
		}
		if _, err := time.Parse(model.TimeLayout, ev.Time); err != nil {
			return fmt.Errorf("%w: events[%d].time %q", ErrInvalidConfig, i, ev.Time)
		}
	}
	return nil
}

// LocalLocation resolves LocalTimezone, defaulting to time.Local.
func (c *Config) LocalLocation() (*time.Location, error) {
	if c.LocalTimezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.LocalTimezone)
}

// SlotStep returns SlotMinutes as a duration.
func (c *Config) SlotStep() time.Duration {
	return time.Duration(c.SlotMinutes) * time.Minute
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return ErrNilConfig
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".weekcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
