// Package config holds the client options and their yaml loader.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RemoteURL is the address of the messaging web client being automated.
const RemoteURL = "https://web.whatsapp.com/"

// Referer sent on the initial navigation.
const Referer = "https://whatsapp.com/"

// Duration is a time.Duration that yaml-decodes from either a string like
// "45s" or raw nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Default configuration values exported for documentation and validation
const (
	DefaultAuthTimeout     = Duration(45 * time.Second)
	DefaultQRMaxRetries    = 0 // unlimited rotations
	DefaultTakeoverTimeout = Duration(0)
	DefaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultCacheType       = "local"
	DefaultCachePath       = "./.wabridge_cache/"
	DefaultDataPath        = "./.wabridge_auth/"
	DefaultLogPath         = "./.wabridge_logs/"
)

// Options configures a client instance.
type Options struct {
	// ClientID distinguishes instances sharing the same host. Generated
	// when empty.
	ClientID string `yaml:"client_id"`

	// AuthTimeout bounds the wait for the remote version identifier and
	// the authentication phase as a whole.
	AuthTimeout Duration `yaml:"auth_timeout"`

	// QRMaxRetries caps QR reference rotations before the session gives
	// up. Zero means unlimited.
	QRMaxRetries int `yaml:"qr_max_retries"`

	// TakeoverOnConflict tolerates a concurrent session on the same
	// account and schedules a takeover instead of disconnecting.
	TakeoverOnConflict bool `yaml:"takeover_on_conflict"`

	// TakeoverTimeout is the delay before the scheduled takeover runs.
	TakeoverTimeout Duration `yaml:"takeover_timeout"`

	UserAgent string `yaml:"user_agent"`

	// WebVersion pins the remote application version served from the
	// cache. Empty means whatever the network returns.
	WebVersion string `yaml:"web_version"`

	// CacheType selects the web version cache: "local" or "none".
	CacheType string `yaml:"cache_type"`
	CachePath string `yaml:"cache_path"`

	// DataPath is where auth strategies keep per-client state.
	DataPath string `yaml:"data_path"`

	// LogPath is the structured log directory. Empty disables logging.
	LogPath string `yaml:"log_path"`

	// Headless controls the launched browser when no control URL is set.
	Headless bool `yaml:"headless"`

	// BrowserURL connects to an already running browser instead of
	// launching one.
	BrowserURL string `yaml:"browser_url"`
}

// Default returns the recommended option set.
func Default() Options {
	return Options{
		AuthTimeout:        DefaultAuthTimeout,
		QRMaxRetries:       DefaultQRMaxRetries,
		TakeoverOnConflict: false,
		TakeoverTimeout:    DefaultTakeoverTimeout,
		UserAgent:          DefaultUserAgent,
		CacheType:          DefaultCacheType,
		CachePath:          DefaultCachePath,
		DataPath:           DefaultDataPath,
		LogPath:            DefaultLogPath,
		Headless:           true,
	}
}

// Load reads options from a yaml file, applying defaults for anything the
// file leaves unset.
func Load(path string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parse config: %w", err)
	}
	return opts.Normalize(), nil
}

// Normalize fills empty fields with defaults and validates enums.
func (o Options) Normalize() Options {
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = DefaultAuthTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.CacheType == "" {
		o.CacheType = DefaultCacheType
	}
	if o.CachePath == "" {
		o.CachePath = DefaultCachePath
	}
	if o.DataPath == "" {
		o.DataPath = DefaultDataPath
	}
	return o
}

// Validate rejects option combinations the client cannot honor.
func (o Options) Validate() error {
	switch o.CacheType {
	case "local", "none":
	default:
		return fmt.Errorf("unknown cache_type %q", o.CacheType)
	}
	if o.QRMaxRetries < 0 {
		return fmt.Errorf("qr_max_retries must be >= 0")
	}
	if o.TakeoverTimeout < 0 {
		return fmt.Errorf("takeover_timeout must be >= 0")
	}
	return nil
}
