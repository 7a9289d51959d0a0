package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration. It is built once at
// startup and passed down by value or pointer; nothing mutates it afterwards.
type Config struct {
	Scraper  ScraperConfig  `yaml:"scraper"`
	Database DatabaseConfig `yaml:"database"`
	Broker   BrokerConfig   `yaml:"broker"`
	Tasks    TasksConfig    `yaml:"tasks"`
	API      APIConfig      `yaml:"api"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// WaitBand is a (min, max) pair of seconds for a randomized sleep.
type WaitBand struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// RandomWaitConfig holds the three sleep bands used between page loads
type RandomWaitConfig struct {
	Short  WaitBand `yaml:"short"`
	Medium WaitBand `yaml:"medium"`
	Long   WaitBand `yaml:"long"`
}

// ScraperConfig contains scraper-specific settings
type ScraperConfig struct {
	PageLoadTimeout     int              `yaml:"page_load_timeout"`
	ElementWaitTimeout  int              `yaml:"element_wait_timeout"`
	MaxRetries          int              `yaml:"max_retries"`
	RetryDelay          int              `yaml:"retry_delay"`
	WaitBetweenPages    float64          `yaml:"wait_between_pages"`
	RandomWait          RandomWaitConfig `yaml:"random_wait"`
	MaxPagesPerLocation int              `yaml:"max_pages_per_location"`
	BreakerThreshold    int              `yaml:"breaker_threshold"`
	Headless            bool             `yaml:"headless"`
	DisableImages       bool             `yaml:"disable_images"`
	UserAgent           string           `yaml:"user_agent"`
	ChromePath          string           `yaml:"chrome_path"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type         string `yaml:"type"` // mysql, postgres or sqlite
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	LogLevel     string `yaml:"log_level"`
}

// BrokerConfig contains progress broker settings. An empty RedisURL selects
// the in-process broker.
type BrokerConfig struct {
	RedisURL  string        `yaml:"redis_url"`
	StatusTTL time.Duration `yaml:"status_ttl"`
}

// TasksConfig contains task runtime settings
type TasksConfig struct {
	HardLimit               time.Duration `yaml:"hard_limit"`
	SoftLimit               time.Duration `yaml:"soft_limit"`
	PollInterval            time.Duration `yaml:"poll_interval"`
	Lease                   time.Duration `yaml:"lease"`
	MaintenanceSchedule     string        `yaml:"maintenance_schedule"`
	FailedPageRetentionDays int           `yaml:"failed_page_retention_days"`
}

// APIConfig contains dispatcher HTTP settings
type APIConfig struct {
	Port            string   `yaml:"port"`
	CORSOrigins     []string `yaml:"cors_origins"`
	SubmitPerMinute int      `yaml:"submit_per_minute"` // 0 disables the limit
	SubmitPerHour   int      `yaml:"submit_per_hour"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Index       string            `yaml:"index"`
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level     string       `yaml:"level"`
	JSON      bool         `yaml:"json"`
	AddSource bool         `yaml:"add_source"`
	Fluent    FluentConfig `yaml:"fluent"`
}

// FluentConfig configures the optional Fluent Bit sink
type FluentConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	TagPrefix string `yaml:"tag_prefix"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Scraper: ScraperConfig{
			PageLoadTimeout:    30,
			ElementWaitTimeout: 10,
			MaxRetries:         3,
			RetryDelay:         2,
			WaitBetweenPages:   2,
			RandomWait: RandomWaitConfig{
				Short:  WaitBand{Min: 1, Max: 3},
				Medium: WaitBand{Min: 3, Max: 6},
				Long:   WaitBand{Min: 8, Max: 15},
			},
			MaxPagesPerLocation: 50,
			BreakerThreshold:    3,
			Headless:            true,
			DisableImages:       true,
		},
		Database: DatabaseConfig{
			Type:         "mysql",
			MaxOpenConns: 10,
			LogLevel:     "warn",
		},
		Broker: BrokerConfig{
			StatusTTL: 24 * time.Hour,
		},
		Tasks: TasksConfig{
			HardLimit:               2 * time.Hour,
			SoftLimit:               2*time.Hour - 5*time.Minute,
			PollInterval:            5 * time.Second,
			Lease:                   10 * time.Minute,
			MaintenanceSchedule:     "@every 5m",
			FailedPageRetentionDays: 30,
		},
		API: APIConfig{
			Port:            "8080",
			CORSOrigins:     []string{"http://localhost:3000"},
			SubmitPerMinute: 10,
			SubmitPerHour:   120,
		},
		Search: SearchConfig{
			Index: "listings",
		},
		Logging: LoggingConfig{
			Level: "info",
			Fluent: FluentConfig{
				Port:      24224,
				TagPrefix: "emlak",
			},
		},
	}
}

// LoadConfig loads configuration from a YAML file, then applies .env and
// environment overrides.
func LoadConfig(filepath string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(filepath); err == nil {
		data, err := os.ReadFile(filepath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DATABASE_TYPE"); ok {
		c.Database.Type = v
	}
	if v, ok := lookup("DATABASE_DSN"); ok {
		c.Database.DSN = v
	}
	if v, ok := lookup("REDIS_URL"); ok {
		c.Broker.RedisURL = v
	}
	if v, ok := lookup("MEILI_HOST"); ok {
		c.Search.Meilisearch.Host = v
		c.Search.Enabled = v != ""
	}
	if v, ok := lookup("MEILI_API_KEY"); ok {
		c.Search.Meilisearch.APIKey = v
	}
	if v, ok := lookup("API_PORT"); ok {
		c.API.Port = v
	}
	if v, ok := lookup("CORS_ORIGINS"); ok {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.API.CORSOrigins = origins
	}
	if v, ok := lookup("SCRAPER_HEADLESS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SCRAPER_HEADLESS %q: %w", v, err)
		}
		c.Scraper.Headless = b
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks the values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	if c.Scraper.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.Scraper.MaxRetries)
	}
	for name, band := range map[string]WaitBand{
		"short":  c.Scraper.RandomWait.Short,
		"medium": c.Scraper.RandomWait.Medium,
		"long":   c.Scraper.RandomWait.Long,
	} {
		if band.Min < 0 || band.Max < band.Min {
			return fmt.Errorf("random_wait.%s: invalid band [%v, %v]", name, band.Min, band.Max)
		}
	}
	if c.Tasks.SoftLimit > c.Tasks.HardLimit {
		return fmt.Errorf("tasks.soft_limit (%v) exceeds hard_limit (%v)", c.Tasks.SoftLimit, c.Tasks.HardLimit)
	}
	return nil
}

// GetPageLoadTimeout returns the navigation timeout as a duration
func (c *ScraperConfig) GetPageLoadTimeout() time.Duration {
	return time.Duration(c.PageLoadTimeout) * time.Second
}

// GetElementWaitTimeout returns the element wait timeout as a duration
func (c *ScraperConfig) GetElementWaitTimeout() time.Duration {
	return time.Duration(c.ElementWaitTimeout) * time.Second
}

// GetRetryDelay returns the retry delay as a duration
func (c *ScraperConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelay) * time.Second
}

// GetWaitBetweenPages returns the fixed inter-page delay as a duration
func (c *ScraperConfig) GetWaitBetweenPages() time.Duration {
	return seconds(c.WaitBetweenPages)
}

// Bounds returns the band as durations
func (b WaitBand) Bounds() (time.Duration, time.Duration) {
	return seconds(b.Min), seconds(b.Max)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
