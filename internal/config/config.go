package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the runner. It is built once at
// process start and handed to every component constructor; nothing else
// reads the environment.
type Config struct {
	API     APIConfig     `json:"api"`
	Browser BrowserConfig `json:"browser"`
	Scraper ScraperConfig `json:"scraper"`
	Cache   CacheConfig   `json:"cache"`
	Log     LogConfig     `json:"log"`
}

// APIConfig holds backend queue/report API configuration.
type APIConfig struct {
	BaseURL string        `json:"base_url"`
	Token   string        `json:"-"`
	Limit   int           `json:"limit"`
	Force   bool          `json:"force"`
	Timeout time.Duration `json:"timeout"`
}

// ProxyConfig holds optional upstream proxy settings for the browser.
type ProxyConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"-"`
	Password string `json:"-"`
}

// ServerURL returns the proxy address in the form Chrome expects, or an
// empty string when the proxy is disabled or incomplete.
func (p ProxyConfig) ServerURL() string {
	if !p.Enabled || p.Host == "" {
		return ""
	}
	if p.Port > 0 {
		return fmt.Sprintf("http://%s:%d", p.Host, p.Port)
	}
	return "http://" + p.Host
}

// BrowserConfig holds browser automation configuration.
type BrowserConfig struct {
	Headful      bool          `json:"headful"`
	UserAgent    string        `json:"user_agent"`
	Locale       string        `json:"locale"`
	WindowWidth  int           `json:"window_width"`
	WindowHeight int           `json:"window_height"`
	StartTimeout time.Duration `json:"start_timeout"`
	Proxy        ProxyConfig   `json:"proxy"`
}

// ScraperConfig holds per-item scraping and pacing configuration.
type ScraperConfig struct {
	EntryURL        string        `json:"entry_url"`
	LegacyEntryURL  string        `json:"legacy_entry_url"`
	NavTimeout      time.Duration `json:"nav_timeout"`
	SelectorTimeout time.Duration `json:"selector_timeout"`
	ResultTimeout   time.Duration `json:"result_timeout"`
	MinContentLen   int           `json:"min_content_len"`

	MaxAttempts    int           `json:"max_attempts"`
	RetryBaseDelay time.Duration `json:"retry_base_delay"`
	JitterMin      time.Duration `json:"jitter_min"`
	JitterMax      time.Duration `json:"jitter_max"`
	NavPerMinute   int           `json:"nav_per_minute"`

	ChallengeMaxCycles  int           `json:"challenge_max_cycles"`
	ChallengeCycleDelay time.Duration `json:"challenge_cycle_delay"`
	ChallengeMaxWait    time.Duration `json:"challenge_max_wait"`
}

// CacheConfig holds the optional result cache configuration. Redis is
// used when Addr is set; otherwise the cache falls back to process
// memory (which, for a one-shot run, effectively disables reuse).
type CacheConfig struct {
	Addr     string        `json:"addr"`
	Password string        `json:"-"`
	DB       int           `json:"db"`
	TTL      time.Duration `json:"ttl"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			BaseURL: getEnv("API_BASE", ""),
			Token:   getEnv("API_TOKEN", ""),
			Limit:   getEnvAliasInt(0, "LIMIT", "QUEUE_LIMIT"),
			Force:   getEnvAliasBool(false, "FORCE", "FORCE_QUEUE"),
			Timeout: time.Duration(getEnvAsInt("API_TIMEOUT", 30)) * time.Second,
		},
		Browser: BrowserConfig{
			Headful:      getEnvAsBool("HEADFUL", false),
			UserAgent:    getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"),
			Locale:       getEnv("BROWSER_LOCALE", "en-US"),
			WindowWidth:  getEnvAsInt("WINDOW_WIDTH", 1366),
			WindowHeight: getEnvAsInt("WINDOW_HEIGHT", 768),
			StartTimeout: time.Duration(getEnvAsInt("BROWSER_START_TIMEOUT", 30)) * time.Second,
			Proxy: ProxyConfig{
				Enabled:  getEnvAsBool("PROXY_ENABLED", false),
				Host:     getEnv("PROXY_HOST", ""),
				Port:     getEnvAsInt("PROXY_PORT", 0),
				Username: getEnv("PROXY_USERNAME", ""),
				Password: getEnv("PROXY_PASSWORD", ""),
			},
		},
		Scraper: ScraperConfig{
			EntryURL:        getEnv("ENTRY_URL", "https://egov.uscis.gov/casestatus/landing.do"),
			LegacyEntryURL:  getEnv("LEGACY_ENTRY_URL", "https://egov.uscis.gov/casestatus/mycasestatus.do"),
			NavTimeout:      time.Duration(getEnvAsInt("NAV_TIMEOUT", 45)) * time.Second,
			SelectorTimeout: time.Duration(getEnvAsInt("SELECTOR_TIMEOUT", 4)) * time.Second,
			ResultTimeout:   time.Duration(getEnvAsInt("RESULT_TIMEOUT", 30)) * time.Second,
			MinContentLen:   getEnvAsInt("MIN_CONTENT_LEN", 200),

			MaxAttempts:    getEnvAsInt("MAX_ATTEMPTS", 3),
			RetryBaseDelay: time.Duration(getEnvAsInt("RETRY_BASE_DELAY", 5)) * time.Second,
			JitterMin:      time.Duration(getEnvAsInt("JITTER_MIN", 2)) * time.Second,
			JitterMax:      time.Duration(getEnvAsInt("JITTER_MAX", 12)) * time.Second,
			NavPerMinute:   getEnvAsInt("NAV_PER_MINUTE", 6),

			ChallengeMaxCycles:  getEnvAsInt("CHALLENGE_MAX_CYCLES", 5),
			ChallengeCycleDelay: time.Duration(getEnvAsInt("CHALLENGE_CYCLE_DELAY", 2)) * time.Second,
			ChallengeMaxWait:    time.Duration(getEnvAsInt("CHALLENGE_MAX_WAIT", 90)) * time.Second,
		},
		Cache: CacheConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvAsInt("CACHE_TTL", 21600)) * time.Second,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	// Validate required fields
	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("API_BASE is required")
	}
	if cfg.API.Token == "" {
		return nil, fmt.Errorf("API_TOKEN is required")
	}
	if cfg.Scraper.JitterMax < cfg.Scraper.JitterMin {
		cfg.Scraper.JitterMax = cfg.Scraper.JitterMin
	}
	if cfg.Scraper.MaxAttempts < 1 {
		cfg.Scraper.MaxAttempts = 1
	}

	return cfg, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAliasInt returns the first alias that is set and parses as an
// integer. Different deployments historically used different names for
// the same knob; both spellings stay supported.
func getEnvAliasInt(defaultValue int, keys ...string) int {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
	}
	return defaultValue
}

func getEnvAliasBool(defaultValue bool, keys ...string) bool {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			if boolValue, err := strconv.ParseBool(value); err == nil {
				return boolValue
			}
		}
	}
	return defaultValue
}
