package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "VEILLE_SCANNER_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	logLevelEnv       = "LOG_LEVEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	huggingFaceEnv    = "HUGGINGFACE_TOKEN"
)

// Source kinds understood by the collector registry.
const (
	KindFeed             = "feed"
	KindRepositorySearch = "repository-search"
)

// Verifier names for model surveillance.
const (
	VerifierStatic      = "static"
	VerifierHuggingFace = "huggingface"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	HTTP          HTTPConfig         `yaml:"http"`
	Collection    CollectionConfig   `yaml:"collection"`
	Sources       []SourceConfig     `yaml:"sources"`
	Models        ModelsConfig       `yaml:"models"`
	Alerts        AlertsConfig       `yaml:"alerts"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig controls slog level and the optional rotating file sink.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	FileOnly   bool   `yaml:"fileOnly"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// DatabaseConfig selects the store. A postgres:// DSN switches to Postgres,
// anything else is treated as a SQLite file path.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// HTTPConfig bounds outbound requests.
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"userAgent"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
}

// CollectionConfig tunes how sources are walked.
type CollectionConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// SourceConfig describes a single watched source.
type SourceConfig struct {
	Name         string            `yaml:"name"`
	Kind         string            `yaml:"kind"`
	URL          string            `yaml:"url"`
	Keywords     []string          `yaml:"keywords"`
	Limit        int               `yaml:"limit"`
	ResourceType string            `yaml:"resourceType"`
	Description  string            `yaml:"description"`
	Options      map[string]string `yaml:"options"`
}

// ModelsConfig lists tracked models and how they are verified.
type ModelsConfig struct {
	Verifier    string         `yaml:"verifier"`
	Endpoint    string         `yaml:"endpoint"`
	APIToken    string         `yaml:"apiToken"`
	Tracked     []TrackedModel `yaml:"tracked"`
	Performance string         `yaml:"performance"`
	Changes     string         `yaml:"changes"`
}

// TrackedModel maps a local model name to its upstream identifier.
type TrackedModel struct {
	Name       string `yaml:"name"`
	Identifier string `yaml:"identifier"`
}

// AlertsConfig holds rule thresholds.
type AlertsConfig struct {
	Window             time.Duration `yaml:"window"`
	VolumeThreshold    int           `yaml:"volumeThreshold"`
	CriticalPatterns   []string      `yaml:"criticalPatterns"`
	SuppressDuplicates bool          `yaml:"suppressDuplicates"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	Endpoint string `yaml:"endpoint"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Load reads YAML configuration from the env-provided path (if present)
// and applies environment overrides.
func Load() Config {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile reads YAML configuration from path (if non-empty) and applies
// environment overrides. Unreadable files fall back to defaults.
func LoadFile(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			// -1 marks an absent volumeThreshold so an explicit 0 survives the merge.
			fileCfg := Config{Alerts: AlertsConfig{VolumeThreshold: -1}}
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultConfig().Sources
	}
	for i := range cfg.Sources {
		cfg.Sources[i].applyDefaults()
	}

	return cfg
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	var errs []error

	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database dsn is empty"))
	}

	seen := map[string]struct{}{}
	for i, src := range c.Sources {
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("source #%d: name is empty", i))
			continue
		}
		if _, dup := seen[src.Name]; dup {
			errs = append(errs, fmt.Errorf("source %s: duplicate name", src.Name))
		}
		seen[src.Name] = struct{}{}
		if src.URL == "" {
			errs = append(errs, fmt.Errorf("source %s: url is empty", src.Name))
		}
		if src.Kind != KindFeed && src.Kind != KindRepositorySearch {
			errs = append(errs, fmt.Errorf("source %s: unknown kind %q", src.Name, src.Kind))
		}
	}

	switch c.Models.Verifier {
	case VerifierStatic, VerifierHuggingFace:
	default:
		errs = append(errs, fmt.Errorf("models: unknown verifier %q", c.Models.Verifier))
	}

	if c.Alerts.VolumeThreshold < 0 {
		errs = append(errs, errors.New("alerts: volumeThreshold must not be negative"))
	}

	if c.Alerts.Window <= 0 {
		errs = append(errs, errors.New("alerts: window must be positive"))
	}

	return errors.Join(errs...)
}

func (s *SourceConfig) applyDefaults() {
	switch s.Kind {
	case KindFeed:
		if s.Limit <= 0 {
			s.Limit = 10
		}
		if s.ResourceType == "" {
			s.ResourceType = "article"
		}
	case KindRepositorySearch:
		if s.Limit <= 0 {
			s.Limit = 15
		}
		if s.ResourceType == "" {
			s.ResourceType = "repository"
		}
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(huggingFaceEnv); v != "" {
		c.Models.APIToken = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.File != "" {
		base.Logging.File = override.Logging.File
		base.Logging.FileOnly = override.Logging.FileOnly
	}
	if override.Logging.MaxSizeMB > 0 {
		base.Logging.MaxSizeMB = override.Logging.MaxSizeMB
	}
	if override.Logging.MaxBackups > 0 {
		base.Logging.MaxBackups = override.Logging.MaxBackups
	}
	if override.Logging.MaxAgeDays > 0 {
		base.Logging.MaxAgeDays = override.Logging.MaxAgeDays
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.HTTP.Timeout > 0 {
		base.HTTP.Timeout = override.HTTP.Timeout
	}
	if override.HTTP.UserAgent != "" {
		base.HTTP.UserAgent = override.HTTP.UserAgent
	}
	if override.HTTP.RequestsPerSecond > 0 {
		base.HTTP.RequestsPerSecond = override.HTTP.RequestsPerSecond
	}
	if override.HTTP.Burst > 0 {
		base.HTTP.Burst = override.HTTP.Burst
	}

	if override.Collection.Concurrency > 0 {
		base.Collection.Concurrency = override.Collection.Concurrency
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	if override.Models.Verifier != "" {
		base.Models.Verifier = override.Models.Verifier
	}
	if override.Models.Endpoint != "" {
		base.Models.Endpoint = override.Models.Endpoint
	}
	if override.Models.APIToken != "" {
		base.Models.APIToken = override.Models.APIToken
	}
	if len(override.Models.Tracked) > 0 {
		base.Models.Tracked = override.Models.Tracked
	}
	if override.Models.Performance != "" {
		base.Models.Performance = override.Models.Performance
	}
	if override.Models.Changes != "" {
		base.Models.Changes = override.Models.Changes
	}

	if override.Alerts.Window > 0 {
		base.Alerts.Window = override.Alerts.Window
	}
	if override.Alerts.VolumeThreshold >= 0 {
		base.Alerts.VolumeThreshold = override.Alerts.VolumeThreshold
	}
	if len(override.Alerts.CriticalPatterns) > 0 {
		base.Alerts.CriticalPatterns = override.Alerts.CriticalPatterns
	}
	if override.Alerts.SuppressDuplicates {
		base.Alerts.SuppressDuplicates = true
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}
	if override.Notifications.Telegram.Endpoint != "" {
		base.Notifications.Telegram.Endpoint = override.Notifications.Telegram.Endpoint
	}

	return base
}

// Default returns the built-in configuration without reading files or env.
func Default() Config {
	cfg := defaultConfig()
	for i := range cfg.Sources {
		cfg.Sources[i].applyDefaults()
	}
	return cfg
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info", MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 30},
		Database:  DatabaseConfig{DSN: "veille_sentiment.db"},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
		HTTP: HTTPConfig{
			Timeout:           20 * time.Second,
			UserAgent:         "VeilleScanner/1.0",
			RequestsPerSecond: 2,
			Burst:             1,
		},
		Collection: CollectionConfig{Concurrency: 1},
		Sources: []SourceConfig{
			{
				Name:        "arxiv_papers",
				Kind:        KindFeed,
				URL:         "http://export.arxiv.org/api/query?search_query=cat:cs.CL+AND+sentiment+analysis&start=0&max_results=50",
				Keywords:    []string{"sentiment analysis", "emotion recognition", "text classification"},
				Description: "Recent research papers on sentiment analysis",
			},
			{
				Name:        "github",
				Kind:        KindRepositorySearch,
				URL:         "https://api.github.com/search/repositories?q=sentiment+analysis+language:python&sort=updated",
				Keywords:    []string{"sentiment-analysis", "nlp", "text-classification"},
				Description: "Recently updated GitHub repositories on sentiment analysis",
			},
			{
				Name:        "medium_articles",
				Kind:        KindFeed,
				URL:         "https://medium.com/feed/tag/sentiment-analysis",
				Keywords:    []string{"sentiment analysis", "NLP", "machine learning"},
				Description: "Medium posts about sentiment analysis",
			},
		},
		Models: ModelsConfig{
			Verifier:    VerifierStatic,
			Endpoint:    "https://huggingface.co",
			Performance: "Accuracy: 89.5%",
			Changes:     "Minor optimisations",
			Tracked: []TrackedModel{
				{Name: "distilbert-sentiment", Identifier: "distilbert-base-uncased-finetuned-sst-2-english"},
				{Name: "bert-multilingual", Identifier: "nlptown/bert-base-multilingual-uncased-sentiment"},
				{Name: "roberta-twitter", Identifier: "cardiffnlp/twitter-roberta-base-sentiment"},
				{Name: "vader-sentiment", Identifier: "vaderSentiment"},
				{Name: "textblob", Identifier: "textblob"},
			},
		},
		Alerts: AlertsConfig{
			Window:           24 * time.Hour,
			VolumeThreshold:  5,
			CriticalPatterns: []string{"breakthrough", "state-of-the-art"},
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{Endpoint: "https://api.telegram.org"},
		},
	}
}
