package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	// Forecast engine.
	HorizonDays      int
	MinHistoryDays   int
	EnsembleStrategy string // "weighted" or "average"
	EnsembleWeights  []float64
	ModelSeed        int64
	ModelVersion     string

	// Keyed record store backing observations and the location registry.
	StoreBackend string // "in_memory" or "redis"
	RedisAddr    string
	RedisDB      int

	// Prediction cache.
	CacheBackend          string // "in_memory" or "memcached"
	CacheValidity         time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	// Optional external snapshot provider. Empty URL disables it.
	ProviderURL       string
	ProviderAPIKey    string
	ProviderTimeout   time.Duration
	ProviderRetries   int
	ProviderBaseDelay time.Duration
	ProviderMaxDelay  time.Duration

	// Background scheduler.
	RefreshInterval  time.Duration
	RetrainInterval  time.Duration
	RefreshBatchSize int
	RefreshDelay     time.Duration
	RetrainWindow    time.Duration
	RetrainMinPoints int

	// HTTP plumbing.
	RequestTimeout  time.Duration
	RateLimitRPS    int
	RateLimitBurst  int
	ShutdownTimeout time.Duration

	TrackedLocations []string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Forecast struct {
		HorizonDays      int       `yaml:"horizon_days"`
		MinHistoryDays   int       `yaml:"min_history_days"`
		EnsembleStrategy string    `yaml:"ensemble_strategy"`
		EnsembleWeights  []float64 `yaml:"ensemble_weights"`
		ModelSeed        int64     `yaml:"model_seed"`
		ModelVersion     string    `yaml:"model_version"`
	} `yaml:"forecast"`

	Store struct {
		Backend string `yaml:"backend"`
		Redis   struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"store"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Validity  string `yaml:"validity"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Provider struct {
		URL       string `yaml:"url"`
		Timeout   string `yaml:"timeout"`
		Retries   int    `yaml:"retries"`
		BaseDelay string `yaml:"base_delay"`
		MaxDelay  string `yaml:"max_delay"`
	} `yaml:"provider"`

	Scheduler struct {
		RefreshInterval  string `yaml:"refresh_interval"`
		RetrainInterval  string `yaml:"retrain_interval"`
		RefreshBatchSize int    `yaml:"refresh_batch_size"`
		RefreshDelay     string `yaml:"refresh_delay"`
		RetrainWindow    string `yaml:"retrain_window"`
		RetrainMinPoints int    `yaml:"retrain_min_points"`
	} `yaml:"scheduler"`

	HTTP struct {
		RequestTimeout  string `yaml:"request_timeout"`
		RateLimitRPS    int    `yaml:"rate_limit_rps"`
		RateLimitBurst  int    `yaml:"rate_limit_burst"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"http"`

	TrackedLocations []string `yaml:"tracked_locations"`
}

type secretsFile struct {
	ProviderAPIKey string `yaml:"provider_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) plus
// config/secrets.yaml. The provider API key comes from PROVIDER_API_KEY env or
// the secrets file; the provider itself is optional, so a missing key only
// disables opportunistic snapshot fetches. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.HorizonDays = fc.Forecast.HorizonDays
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 7
	}
	cfg.MinHistoryDays = fc.Forecast.MinHistoryDays
	if cfg.MinHistoryDays <= 0 {
		cfg.MinHistoryDays = 7
	}
	cfg.EnsembleStrategy = strings.TrimSpace(strings.ToLower(fc.Forecast.EnsembleStrategy))
	if cfg.EnsembleStrategy == "" {
		cfg.EnsembleStrategy = "weighted"
	}
	cfg.EnsembleWeights = fc.Forecast.EnsembleWeights
	if len(cfg.EnsembleWeights) == 0 {
		cfg.EnsembleWeights = []float64{0.6, 0.4}
	}
	cfg.ModelSeed = fc.Forecast.ModelSeed
	if cfg.ModelSeed == 0 {
		cfg.ModelSeed = 42
	}
	cfg.ModelVersion = fc.Forecast.ModelVersion
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = "ensemble-v1"
	}

	cfg.StoreBackend = backendFromEnvOrFile("STORE_BACKEND", fc.Store.Backend, "in_memory")
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = strings.TrimSpace(fc.Store.Redis.Addr)
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	cfg.RedisDB = fc.Store.Redis.DB

	cfg.CacheBackend = backendFromEnvOrFile("CACHE_BACKEND", fc.Cache.Backend, "in_memory")
	cfg.CacheValidity = parseDuration(fc.Cache.Validity, 24*time.Hour)
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.ProviderURL = strings.TrimSpace(fc.Provider.URL)
	cfg.ProviderTimeout = parseDuration(fc.Provider.Timeout, 2*time.Second)
	cfg.ProviderRetries = fc.Provider.Retries
	if cfg.ProviderRetries <= 0 {
		cfg.ProviderRetries = 3
	}
	cfg.ProviderBaseDelay = parseDuration(fc.Provider.BaseDelay, 100*time.Millisecond)
	cfg.ProviderMaxDelay = parseDuration(fc.Provider.MaxDelay, 2*time.Second)

	cfg.ProviderAPIKey = os.Getenv("PROVIDER_API_KEY")
	if cfg.ProviderAPIKey == "" {
		secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(secretsData, &sec); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			cfg.ProviderAPIKey = sec.ProviderAPIKey
		}
	}

	cfg.RefreshInterval = parseDuration(fc.Scheduler.RefreshInterval, 6*time.Hour)
	cfg.RetrainInterval = parseDuration(fc.Scheduler.RetrainInterval, 24*time.Hour)
	cfg.RefreshBatchSize = fc.Scheduler.RefreshBatchSize
	if cfg.RefreshBatchSize <= 0 {
		cfg.RefreshBatchSize = 10
	}
	cfg.RefreshDelay = parseDuration(fc.Scheduler.RefreshDelay, time.Second)
	cfg.RetrainWindow = parseDuration(fc.Scheduler.RetrainWindow, 30*24*time.Hour)
	cfg.RetrainMinPoints = fc.Scheduler.RetrainMinPoints
	if cfg.RetrainMinPoints <= 0 {
		cfg.RetrainMinPoints = 11
	}

	cfg.RequestTimeout = parseDuration(fc.HTTP.RequestTimeout, 10*time.Second)
	cfg.RateLimitRPS = fc.HTTP.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.HTTP.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.ShutdownTimeout = parseDuration(fc.HTTP.ShutdownTimeout, 30*time.Second)

	cfg.TrackedLocations = fc.TrackedLocations

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// backendFromEnvOrFile resolves a backend name from env first, then the config
// file, then the default. Backends are compared lowercase.
func backendFromEnvOrFile(envKey, fileVal, def string) string {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(envKey)))
	if v == "" {
		v = strings.TrimSpace(strings.ToLower(fileVal))
	}
	if v == "" {
		v = def
	}
	return v
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	switch cfg.EnsembleStrategy {
	case "weighted", "average":
	default:
		return fmt.Errorf("forecast.ensemble_strategy must be weighted or average, got %q", cfg.EnsembleStrategy)
	}
	if len(cfg.EnsembleWeights) != 2 {
		return fmt.Errorf("forecast.ensemble_weights must have exactly 2 entries, got %d", len(cfg.EnsembleWeights))
	}
	sum := cfg.EnsembleWeights[0] + cfg.EnsembleWeights[1]
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("forecast.ensemble_weights must sum to 1, got %.3f", sum)
	}
	switch cfg.StoreBackend {
	case "in_memory", "redis":
	default:
		return fmt.Errorf("store.backend must be in_memory or redis, got %q", cfg.StoreBackend)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
