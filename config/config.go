package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Supabase  SupabaseConfig
	Places    PlacesConfig
	Server    ServerConfig
	Scheduler SchedulerConfig
	Matching  MatchingConfig
	LogPath   string
}

type SupabaseConfig struct {
	URL        string
	AnonKey    string
	ServiceKey string
	DBURL      string
	JWTSecret  string
}

type PlacesConfig struct {
	APIKey    string
	BaseURL   string
	CachePath string
	CacheTTL  time.Duration
}

type ServerConfig struct {
	ListenAddr         string
	AllowedOrigin      string
	AllowedEmailDomain string
}

type SchedulerConfig struct {
	RefreshCron     string
	RefreshInterval time.Duration
}

// MatchingConfig holds the matching thresholds, overridable from
// config/matching.yaml. The resolve-time and create-time thresholds are
// separate knobs on purpose.
type MatchingConfig struct {
	FuzzyMatch    float64 `yaml:"fuzzy_match"`
	FuzzyHigh     float64 `yaml:"fuzzy_high"`
	Duplicate     float64 `yaml:"duplicate"`
	DuplicateHigh float64 `yaml:"duplicate_high"`
	PartialFloor  float64 `yaml:"partial_floor"`
	CoordinateKm  float64 `yaml:"coordinate_km"`
}

func defaultMatching() MatchingConfig {
	return MatchingConfig{
		FuzzyMatch:    0.6,
		FuzzyHigh:     0.8,
		Duplicate:     0.6,
		DuplicateHigh: 0.8,
		PartialFloor:  0.3,
		CoordinateKm:  0.1,
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Supabase: SupabaseConfig{
			URL:        os.Getenv("SUPABASE_URL"),
			AnonKey:    os.Getenv("SUPABASE_ANON_KEY"),
			ServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
			DBURL:      os.Getenv("SUPABASE_DB_URL"),
			JWTSecret:  os.Getenv("SUPABASE_JWT_SECRET"),
		},
		Places: PlacesConfig{
			APIKey:    os.Getenv("PLACES_API_KEY"),
			BaseURL:   os.Getenv("PLACES_API_URL"),
			CachePath: getEnv("PLACES_CACHE_PATH", "places_cache.db"),
			CacheTTL:  getEnvDuration("PLACES_CACHE_TTL", 7*24*time.Hour),
		},
		Server: ServerConfig{
			ListenAddr:         getEnv("LISTEN_ADDR", ":8080"),
			AllowedOrigin:      getEnv("ALLOWED_ORIGIN", "*"),
			AllowedEmailDomain: getEnv("ALLOWED_EMAIL_DOMAIN", "gatech.edu"),
		},
		Scheduler: SchedulerConfig{
			RefreshCron:     os.Getenv("REFRESH_CRON"),
			RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 0),
		},
		Matching: defaultMatching(),
		LogPath:  getEnv("LOG_PATH", "resolver.log"),
	}

	if err := cfg.loadMatchingConfig(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadMatchingConfig() error {
	path := getEnv("MATCHING_CONFIG", "config/matching.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, &c.Matching)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
