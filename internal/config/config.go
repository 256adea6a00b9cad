package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Map     MapConfig     `mapstructure:"map"`
	Tiles   TilesConfig   `mapstructure:"tiles"`
	Search  SearchConfig  `mapstructure:"search"`
	Points  PointsConfig  `mapstructure:"points"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

type MapConfig struct {
	Lat         float64       `mapstructure:"lat"`
	Lng         float64       `mapstructure:"lng"`
	Zoom        int           `mapstructure:"zoom"`
	InitTimeout time.Duration `mapstructure:"init_timeout"`
}

type TilesConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	URL         string        `mapstructure:"url"`
	Attribution string        `mapstructure:"attribution"`
	UserAgent   string        `mapstructure:"user_agent"`
	Probe       bool          `mapstructure:"probe"`
	CacheSize   int           `mapstructure:"cache_size"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type SearchConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	UserAgent   string        `mapstructure:"user_agent"`
	RadiusM     float64       `mapstructure:"radius_m"`
	Limit       int           `mapstructure:"limit"`
	Debounce    time.Duration `mapstructure:"debounce"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	CacheAddr   string        `mapstructure:"cache_addr"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// PointsConfig selects the dataset; an empty File uses the built-in seed.
type PointsConfig struct {
	File string `mapstructure:"file"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// AuthConfig is the page-level gate for adding points.
type AuthConfig struct {
	AllowAdd        bool          `mapstructure:"allow_add"`
	OnboardingAfter time.Duration `mapstructure:"onboarding_after"`
}

const userAgent = "culturemap/0.1 (+https://github.com/culturemap/culturemap)"

func setDefaults(v *viper.Viper) {
	v.SetDefault("map.lat", 52.52)
	v.SetDefault("map.lng", 13.405)
	v.SetDefault("map.zoom", 13)
	v.SetDefault("map.init_timeout", 5*time.Second)
	v.SetDefault("tiles.enabled", true)
	v.SetDefault("tiles.url", "https://tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("tiles.attribution", "© OpenStreetMap contributors")
	v.SetDefault("tiles.user_agent", userAgent)
	v.SetDefault("tiles.probe", false)
	v.SetDefault("tiles.cache_size", 256)
	v.SetDefault("tiles.timeout", 10*time.Second)
	v.SetDefault("search.endpoint", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("search.user_agent", userAgent)
	v.SetDefault("search.radius_m", 20000)
	v.SetDefault("search.limit", 8)
	v.SetDefault("search.debounce", 350*time.Millisecond)
	v.SetDefault("search.timeout", 10*time.Second)
	v.SetDefault("search.min_interval", time.Second)
	v.SetDefault("search.cache_addr", "")
	v.SetDefault("search.cache_ttl", 24*time.Hour)
	v.SetDefault("points.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "culturemap.log")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("auth.allow_add", true)
	v.SetDefault("auth.onboarding_after", 0)
}

// Load reads configuration from defaults, an optional YAML file and
// CULTUREMAP_* environment variables. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("culturemap")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	// CULTUREMAP_SEARCH_CACHE_ADDR → search.cache_addr
	v.SetEnvPrefix("CULTUREMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Map.Lat < -90 || c.Map.Lat > 90 {
		errs = append(errs, fmt.Sprintf("map.lat must be -90..90, got %g", c.Map.Lat))
	}
	if c.Map.Lng < -180 || c.Map.Lng > 180 {
		errs = append(errs, fmt.Sprintf("map.lng must be -180..180, got %g", c.Map.Lng))
	}
	if c.Map.Zoom < 1 || c.Map.Zoom > 19 {
		errs = append(errs, fmt.Sprintf("map.zoom must be 1-19, got %d", c.Map.Zoom))
	}
	if c.Map.InitTimeout <= 0 {
		errs = append(errs, "map.init_timeout must be positive")
	}
	if c.Tiles.Enabled {
		for _, ph := range []string{"{z}", "{x}", "{y}"} {
			if !strings.Contains(c.Tiles.URL, ph) {
				errs = append(errs, fmt.Sprintf("tiles.url must contain %s", ph))
			}
		}
		if c.Tiles.CacheSize <= 0 {
			errs = append(errs, "tiles.cache_size must be positive")
		}
	}
	if u, err := url.Parse(c.Search.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Sprintf("search.endpoint must be an http(s) url, got %q", c.Search.Endpoint))
	}
	if c.Search.RadiusM <= 0 {
		errs = append(errs, "search.radius_m must be positive")
	}
	if c.Search.Limit <= 0 || c.Search.Limit > 50 {
		errs = append(errs, fmt.Sprintf("search.limit must be 1-50, got %d", c.Search.Limit))
	}
	if c.Search.Debounce < 0 {
		errs = append(errs, "search.debounce must not be negative")
	}
	if c.Search.CacheAddr != "" && c.Search.CacheTTL <= 0 {
		errs = append(errs, "search.cache_ttl must be positive when search.cache_addr is set")
	}
	if c.Auth.OnboardingAfter < 0 {
		errs = append(errs, "auth.onboarding_after must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
