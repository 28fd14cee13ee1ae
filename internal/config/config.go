package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Nairobi is the default observation point.
const (
	DefaultLat = -1.2921
	DefaultLon = 36.8219
)

// Config holds all job settings, populated from the environment and an
// optional .env file.
type Config struct {
	// Credentials. Left empty when unset; the stages report a ConfigError.
	OpenWeatherAPIKey string
	DatabaseURL       string

	Lat                float64
	Lon                float64
	OpenWeatherBaseURL string
	OpenWeatherTimeout time.Duration
	RunTimeout         time.Duration
	ShutdownTimeout    time.Duration

	LogLevel  string
	LogFormat string

	// Publishing is enabled when at least one broker is set.
	KafkaBrokers []string
	KafkaTopic   string

	PushgatewayURL string
}

// Load reads configuration, applying defaults where unset. Values from the
// process environment win over the .env file. Missing credentials are not an
// error here; malformed numbers and durations are.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is ignored.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	lat, err := parseFloat("WEATHER_LAT", DefaultLat, -90, 90)
	if err != nil {
		return nil, err
	}
	lon, err := parseFloat("WEATHER_LON", DefaultLon, -180, 180)
	if err != nil {
		return nil, err
	}
	owTimeout, err := parseDuration("OPENWEATHER_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	runTimeout, err := parseDuration("RUN_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		OpenWeatherAPIKey:  strings.TrimSpace(os.Getenv("OPENWEATHER_API_KEY")),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Lat:                lat,
		Lon:                lon,
		OpenWeatherBaseURL: sharedcfg.EnvOrDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5/weather"),
		OpenWeatherTimeout: owTimeout,
		RunTimeout:         runTimeout,
		ShutdownTimeout:    shutdownTimeout,
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		KafkaTopic:         sharedcfg.EnvOrDefault("KAFKA_TOPIC", "weather-readings"),
		PushgatewayURL:     os.Getenv("PUSHGATEWAY_URL"),
	}

	if raw := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); raw != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(raw)
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("invalid LOG_FORMAT %q (allowed: json, text)", cfg.LogFormat)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// PublishEnabled reports whether observations should be published to Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parseFloat(key string, def, lo, hi float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("invalid %s: %v out of range [%v, %v]", key, v, lo, hi)
	}
	return v, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
