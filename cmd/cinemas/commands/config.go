package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"londoncinemas/internal/cinema"
	"londoncinemas/internal/venues"
	"londoncinemas/lib/browser"
	"londoncinemas/lib/configutil"

	"dario.cat/mergo"
)

type CacheConfig struct {
	// RedisAddr enables the response cache when set.
	RedisAddr string `json:"redis_addr"`
	Ttl       string `json:"ttl"`
}

type HttpConfig struct {
	Port  int         `json:"port"`
	Cache CacheConfig `json:"cache"`
}

type Config struct {
	Snapshot     string     `json:"snapshot"`
	DaysAhead    int        `json:"days_ahead"`
	VenueTimeout string     `json:"venue_timeout"`
	Http         HttpConfig `json:"http"`
	// RefreshCron regenerates the snapshot from within `serve` when set.
	RefreshCron  string                `json:"refresh_cron"`
	Browser      browser.ChromeOptions `json:"browser"`
	Venues       venues.Config         `json:"venues"`
	DebugHttpDir string                `json:"debug_http_dir"`
}

func defaultConfig() Config {
	return Config{
		Snapshot:     "data/screenings.json",
		DaysAhead:    cinema.DefaultDaysAhead,
		VenueTimeout: "5m",
		Http: HttpConfig{
			Port:  8000,
			Cache: CacheConfig{Ttl: "5m"},
		},
	}
}

// loadConfig reads .env files, then the config file, then applies
// environment overrides. A missing config file leaves the defaults.
func loadConfig(path string) (Config, error) {
	err := configutil.LoadDotenv(".env", ".env.local")
	if err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	file, err := configutil.ReadConfig[Config](path)
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		err = mergo.Merge(&file, cfg)
		if err != nil {
			return Config{}, err
		}
		cfg = file
	}

	configutil.OverrideFromEnv(&cfg.Snapshot, "CINEMAS_SNAPSHOT")
	configutil.OverrideFromEnv(&cfg.Http.Cache.RedisAddr, "CINEMAS_REDIS_ADDR")
	configutil.OverrideFromEnv(&cfg.Browser.ExecPath, "CINEMAS_CHROME_PATH")
	port := ""
	configutil.OverrideFromEnv(&port, "CINEMAS_PORT")
	if port != "" {
		cfg.Http.Port, err = strconv.Atoi(port)
		if err != nil {
			return Config{}, fmt.Errorf("parse CINEMAS_PORT: %w", err)
		}
	}

	cfg.Venues.DebugHttpDir = cfg.DebugHttpDir
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	_, err := c.venueTimeout()
	if err != nil {
		return err
	}
	_, err = c.cacheTtl()
	return err
}

func (c Config) venueTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.VenueTimeout)
	if err != nil {
		return 0, fmt.Errorf("parse venue_timeout: %w", err)
	}
	return d, nil
}

func (c Config) cacheTtl() (time.Duration, error) {
	d, err := time.ParseDuration(c.Http.Cache.Ttl)
	if err != nil {
		return 0, fmt.Errorf("parse http.cache.ttl: %w", err)
	}
	return d, nil
}
