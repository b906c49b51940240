package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "GAME_HARVESTER_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	databaseDriverEnv = "DATABASE_DRIVER"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	envPrefix         = "GAME_HARVESTER_"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Ingest        IngestConfig       `yaml:"ingest"`
	Steam         SteamConfig        `yaml:"steam"`
	Database      DatabaseConfig     `yaml:"database"`
	Manifest      ManifestConfig     `yaml:"manifest"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Notifications NotificationConfig `yaml:"notifications"`
	LockFile      string             `yaml:"lock_file"`
}

// LoggingConfig selects verbosity and output format (text, json or auto).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IngestConfig tunes one ingestion run.
type IngestConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	Delay           time.Duration `yaml:"delay"`
	BatchSize       int           `yaml:"batch_size"`
	MinimumReviews  int           `yaml:"minimum_reviews"`
	UseBatch        bool          `yaml:"use_batch"`
	Limit           int           `yaml:"limit"`
	Workers         int           `yaml:"workers"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	BackoffFactor   float64       `yaml:"backoff_factor"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	FlushAttempts   int           `yaml:"flush_attempts"`
	FlushRetryDelay time.Duration `yaml:"flush_retry_delay"`
	ProgressEvery   int           `yaml:"progress_every"`
	Source          string        `yaml:"source"`
	IDs             []int64       `yaml:"ids"`
	ResumeManifest  string        `yaml:"resume_manifest"`
	Every           time.Duration `yaml:"every"`
}

// SourceNames splits the comma separated source list.
func (c IngestConfig) SourceNames() []string {
	var names []string
	for _, name := range strings.Split(c.Source, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// SteamConfig points the adapters at the store and bounds the request rate.
type SteamConfig struct {
	StoreURL          string         `yaml:"store_url"`
	APIURL            string         `yaml:"api_url"`
	AppListURL        string         `yaml:"applist_url"`
	ReviewsURL        string         `yaml:"reviews_url"`
	Country           string         `yaml:"country"`
	Language          string         `yaml:"language"`
	RequestsPerSecond float64        `yaml:"requests_per_second"`
	Burst             int            `yaml:"burst"`
	SteamSpy          SteamSpyConfig `yaml:"steamspy"`
}

// SteamSpyConfig drives the popular-games source. Requests are chart names
// or "genre:<name>". CheckReviews filters candidates against the review API
// using ingest.minimum_reviews.
type SteamSpyConfig struct {
	URL          string   `yaml:"url"`
	Requests     []string `yaml:"requests"`
	PerRequest   int      `yaml:"per_request"`
	CheckReviews bool     `yaml:"check_reviews"`
}

// DatabaseConfig describes the SQL connection.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ManifestConfig decides where failure manifests go. BucketURL wins over Dir.
type ManifestConfig struct {
	BucketURL string `yaml:"bucket_url"`
	Dir       string `yaml:"dir"`
	Prefix    string `yaml:"prefix"`
	Compress  bool   `yaml:"compress"`
}

// MetricsConfig enables the Prometheus endpoint when Address is set.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	APIURL   string `yaml:"api_url"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Load reads the YAML file at path (or $GAME_HARVESTER_CONFIG) over the
// defaults and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(envPrefix + "SOURCE"); v != "" {
		c.Ingest.Source = v
	}
	if v := os.Getenv(envPrefix + "MANIFEST_URL"); v != "" {
		c.Manifest.BucketURL = v
	}
	if v := os.Getenv(envPrefix + "METRICS_ADDRESS"); v != "" {
		c.Metrics.Address = v
	}

	ints := map[string]*int{
		"MAX_RETRIES":     &c.Ingest.MaxRetries,
		"BATCH_SIZE":      &c.Ingest.BatchSize,
		"MINIMUM_REVIEWS": &c.Ingest.MinimumReviews,
		"LIMIT":           &c.Ingest.Limit,
		"WORKERS":         &c.Ingest.Workers,
	}
	for name, dest := range ints {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", envPrefix, name, err)
		}
		*dest = n
	}

	if v := os.Getenv(envPrefix + "DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %sDELAY: %w", envPrefix, err)
		}
		c.Ingest.Delay = d
	}
	if v := os.Getenv(envPrefix + "USE_BATCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %sUSE_BATCH: %w", envPrefix, err)
		}
		c.Ingest.UseBatch = b
	}
	return nil
}

// Validate rejects settings no run could honor.
func (c Config) Validate() error {
	var errs []error
	in := c.Ingest

	if in.MaxRetries < 0 {
		errs = append(errs, errors.New("ingest.max_retries must be >= 0"))
	}
	if in.Delay < 0 {
		errs = append(errs, errors.New("ingest.delay must be >= 0"))
	}
	if in.BatchSize < 1 {
		errs = append(errs, errors.New("ingest.batch_size must be >= 1"))
	}
	if in.MinimumReviews < 0 {
		errs = append(errs, errors.New("ingest.minimum_reviews must be >= 0"))
	}
	if in.Workers < 1 {
		errs = append(errs, errors.New("ingest.workers must be >= 1"))
	}
	if in.BackoffFactor < 1 {
		errs = append(errs, errors.New("ingest.backoff_factor must be >= 1"))
	}
	if in.BaseDelay < 0 || in.MaxDelay < in.BaseDelay {
		errs = append(errs, errors.New("ingest.max_delay must be >= base_delay >= 0"))
	}
	if in.FlushAttempts < 1 {
		errs = append(errs, errors.New("ingest.flush_attempts must be >= 1"))
	}
	if in.ProgressEvery < 1 {
		errs = append(errs, errors.New("ingest.progress_every must be >= 1"))
	}
	if len(in.SourceNames()) == 0 {
		errs = append(errs, errors.New("ingest.source must name at least one id source"))
	}
	if c.Steam.SteamSpy.PerRequest < 0 {
		errs = append(errs, errors.New("steam.steamspy.per_request must be >= 0"))
	}
	if c.Steam.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("steam.requests_per_second must be >= 0"))
	}

	switch strings.ToLower(c.Database.Driver) {
	case "pgx", "postgres", "postgresql", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of text, json, auto", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "auto"},
		Ingest: IngestConfig{
			MaxRetries:      10,
			Delay:           500 * time.Millisecond,
			BatchSize:       100,
			MinimumReviews:  100,
			UseBatch:        true,
			Workers:         8,
			BaseDelay:       2 * time.Second,
			BackoffFactor:   2,
			MaxDelay:        60 * time.Second,
			RequestTimeout:  30 * time.Second,
			FlushAttempts:   3,
			FlushRetryDelay: time.Second,
			ProgressEvery:   1000,
			Source:          "applist",
		},
		Steam: SteamConfig{
			StoreURL:   "https://store.steampowered.com",
			APIURL:     "https://store.steampowered.com/api",
			AppListURL: "https://api.steampowered.com/ISteamApps/GetAppList/v0002/",
			ReviewsURL: "https://store.steampowered.com/appreviews",
			Country:    "us",
			Language:   "english",
			Burst:      1,
			SteamSpy: SteamSpyConfig{
				URL:        "https://steamspy.com/api.php",
				Requests:   []string{"top100owned", "top100in2weeks", "top100forever"},
				PerRequest: 50,
			},
		},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "gameharvester.db"},
		Manifest: ManifestConfig{Dir: "manifests"},
		LockFile: "gameharvester.lock",
	}
}
