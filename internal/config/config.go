package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "NEWS_DIGEST_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	databaseDriverEnv = "DATABASE_DRIVER"
	llmProviderEnv    = "LLM_PROVIDER"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	githubTokenEnv    = "GITHUB_TOKEN"
	githubRepoEnv     = "GITHUB_REPO"
	logLevelEnv       = "LOG_LEVEL"
	readerAPIKeyEnv   = "READER_API_KEY"
)

// providerKeyEnv maps provider names to the env variable holding their API key.
var providerKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"gemini":     "GEMINI_API_KEY",
}

// Config holds high-level settings required across the application.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Digest      DigestConfig      `yaml:"digest"`
	Sites       []SiteConfig      `yaml:"sites" validate:"required,min=1,dive"`
	Extractor   ExtractorConfig   `yaml:"extractor"`
	LLM         LLMConfig         `yaml:"llm"`
	Publish     PublishConfig     `yaml:"publish"`
	Logging     LoggingConfig     `yaml:"logging"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// DatabaseConfig selects the SQL driver and connection string.
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"required,oneof=sqlite3 postgres"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// SchedulerConfig defines when serve mode triggers an invocation.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression" validate:"required"`
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

// DigestConfig shapes one daily task.
type DigestConfig struct {
	StoryLimit       int           `yaml:"storyLimit" validate:"gt=0"`
	BatchSize        int           `yaml:"batchSize" validate:"gt=0"`
	AlignBatchSize   int           `yaml:"alignBatchSize" validate:"gte=0"`
	Concurrency      int           `yaml:"concurrency" validate:"gt=0"`
	CommentsPerStory int           `yaml:"commentsPerStory" validate:"gte=0"`
	Language         string        `yaml:"language" validate:"required,bcp47_language_tag"`
	Temperature      float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	ClaimLease       time.Duration `yaml:"claimLease" validate:"gt=0"`
	PublishLease     time.Duration `yaml:"publishLease" validate:"gt=0"`
}

// SiteConfig describes a single site with its scanner strategy.
type SiteConfig struct {
	Name       string            `yaml:"name" validate:"required"`
	Scanner    string            `yaml:"scanner" validate:"required"`
	BaseURL    string            `yaml:"baseUrl" validate:"omitempty,url"`
	Timeout    time.Duration     `yaml:"timeout"`
	Categories []CategoryConfig  `yaml:"categories" validate:"dive"`
	Options    map[string]string `yaml:"options"`
}

// Option returns a scanner option or fallback when unset.
func (s SiteConfig) Option(key, fallback string) string {
	if v, ok := s.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// CategoryConfig holds the concrete endpoints to crawl (e.g., Arxiv category URLs).
type CategoryConfig struct {
	Name string `yaml:"name" validate:"required"`
	URL  string `yaml:"url" validate:"required,url"`
}

// ExtractorConfig controls article text extraction.
type ExtractorConfig struct {
	ReaderURL string        `yaml:"readerUrl" validate:"omitempty,url"`
	APIKey    string        `yaml:"apiKey"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxChars  int           `yaml:"maxChars" validate:"gt=0"`
	UserAgent string        `yaml:"userAgent"`
}

// LLMConfig picks the active provider among the configured ones.
type LLMConfig struct {
	Provider  string                    `yaml:"provider" validate:"required"`
	Providers map[string]ProviderConfig `yaml:"providers" validate:"required,dive"`
}

// Active returns the selected provider settings.
func (l LLMConfig) Active() (ProviderConfig, bool) {
	p, ok := l.Providers[l.Provider]
	return p, ok
}

// ProviderConfig defines how to contact one model backend.
type ProviderConfig struct {
	Kind              string        `yaml:"kind" validate:"required,oneof=openai gemini"`
	BaseURL           string        `yaml:"baseUrl" validate:"omitempty,url"`
	Model             string        `yaml:"model" validate:"required"`
	APIKey            string        `yaml:"apiKey"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerMinute int           `yaml:"requestsPerMinute" validate:"gte=0"`
	MaxRetries        int           `yaml:"maxRetries" validate:"gte=0"`
	RetryDelay        time.Duration `yaml:"retryDelay" validate:"gte=0"`
}

// PublishConfig lists the enabled targets and their settings.
type PublishConfig struct {
	Targets  []string       `yaml:"targets" validate:"dive,oneof=terminal telegram github file"`
	Timeout  time.Duration  `yaml:"timeout" validate:"gt=0"`
	Telegram TelegramConfig `yaml:"telegram"`
	GitHub   GitHubConfig   `yaml:"github"`
	File     FileConfig     `yaml:"file"`
}

// Enabled reports whether target is listed.
func (p PublishConfig) Enabled(target string) bool {
	for _, t := range p.Targets {
		if t == target {
			return true
		}
	}
	return false
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	APIURL   string `yaml:"apiUrl" validate:"omitempty,url"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// GitHubConfig points at the repository receiving digest files.
type GitHubConfig struct {
	APIURL       string `yaml:"apiUrl" validate:"omitempty,url"`
	Token        string `yaml:"token"`
	Repo         string `yaml:"repo"`
	Branch       string `yaml:"branch"`
	PathTemplate string `yaml:"pathTemplate"`
}

// FileConfig stores digests on local disk.
type FileConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig describes slog output.
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format     string `yaml:"format" validate:"omitempty,oneof=text json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB" validate:"gte=0"`
	MaxBackups int    `yaml:"maxBackups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"maxAgeDays" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// MaintenanceConfig schedules archival of published tasks.
type MaintenanceConfig struct {
	ArchiveAfter   time.Duration `yaml:"archiveAfter" validate:"gte=0"`
	CronExpression string        `yaml:"cronExpression"`
}

// Load reads .env files, the YAML configuration (path argument, else NEWS_DIGEST_CONFIG)
// and environment overrides, then validates the result.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: cannot read .env: %v", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints and cross-field requirements of enabled features.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if _, ok := c.LLM.Active(); !ok {
		return fmt.Errorf("validate config: llm provider %q is not configured", c.LLM.Provider)
	}
	if c.Publish.Enabled("telegram") && (c.Publish.Telegram.BotToken == "" || c.Publish.Telegram.ChatID == "") {
		return errors.New("validate config: telegram target needs botToken and chatId")
	}
	if c.Publish.Enabled("github") && (c.Publish.GitHub.Token == "" || c.Publish.GitHub.Repo == "") {
		return errors.New("validate config: github target needs token and repo")
	}
	if c.Publish.Enabled("file") && c.Publish.File.Dir == "" {
		return errors.New("validate config: file target needs dir")
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(llmProviderEnv); v != "" {
		c.LLM.Provider = v
	}
	for name, env := range providerKeyEnv {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		if p, ok := c.LLM.Providers[name]; ok {
			p.APIKey = v
			c.LLM.Providers[name] = p
		}
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Publish.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Publish.Telegram.ChatID = v
	}
	if v := os.Getenv(githubTokenEnv); v != "" {
		c.Publish.GitHub.Token = v
	}
	if v := os.Getenv(githubRepoEnv); v != "" {
		c.Publish.GitHub.Repo = v
	}

	if v := os.Getenv(readerAPIKeyEnv); v != "" {
		c.Extractor.APIKey = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

// bindTimezone resolves the work-date timezone. An unknown zone is an error since it
// would move every task onto a different date.
func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("scheduler timezone %q: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

// ParseAge reads durations such as "36h" or "7d".
func ParseAge(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("parse age %q: invalid day count", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse age %q: %w", raw, err)
	}
	return d, nil
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database:  DatabaseConfig{Driver: "sqlite3", DSN: "newsdigest.db"},
		Scheduler: SchedulerConfig{CronExpression: "*/10 * * * *", Timezone: defaultTimezone, location: tz},
		Digest: DigestConfig{
			StoryLimit:       30,
			BatchSize:        10,
			AlignBatchSize:   10,
			Concurrency:      4,
			CommentsPerStory: 5,
			Language:         "zh-Hans",
			Temperature:      0.3,
			ClaimLease:       15 * time.Minute,
			PublishLease:     5 * time.Minute,
		},
		Sites: []SiteConfig{
			{
				Name:    "hackernews",
				Scanner: "hackernews",
				BaseURL: "https://hacker-news.firebaseio.com/v0",
				Timeout: 10 * time.Second,
				Options: map[string]string{"list": "topstories"},
			},
		},
		Extractor: ExtractorConfig{
			Timeout:   20 * time.Second,
			MaxChars:  8000,
			UserAgent: "NewsDigest/1.0",
		},
		LLM: LLMConfig{
			Provider: "openai",
			Providers: map[string]ProviderConfig{
				"openai": {
					Kind:              "openai",
					BaseURL:           "https://api.openai.com/v1",
					Model:             "gpt-4o-mini",
					Timeout:           60 * time.Second,
					RequestsPerMinute: 60,
					MaxRetries:        3,
					RetryDelay:        5 * time.Second,
				},
				"deepseek": {
					Kind:              "openai",
					BaseURL:           "https://api.deepseek.com/v1",
					Model:             "deepseek-chat",
					Timeout:           90 * time.Second,
					RequestsPerMinute: 30,
					MaxRetries:        3,
					RetryDelay:        5 * time.Second,
				},
				"openrouter": {
					Kind:              "openai",
					BaseURL:           "https://openrouter.ai/api/v1",
					Model:             "openai/gpt-4o-mini",
					Timeout:           90 * time.Second,
					RequestsPerMinute: 20,
					MaxRetries:        3,
					RetryDelay:        5 * time.Second,
				},
				"gemini": {
					Kind:              "gemini",
					Model:             "gemini-2.0-flash",
					Timeout:           60 * time.Second,
					RequestsPerMinute: 15,
					MaxRetries:        3,
					RetryDelay:        10 * time.Second,
				},
			},
		},
		Publish: PublishConfig{
			Targets:  []string{"terminal"},
			Timeout:  30 * time.Second,
			Telegram: TelegramConfig{APIURL: "https://api.telegram.org"},
			GitHub: GitHubConfig{
				APIURL:       "https://api.github.com",
				Branch:       "main",
				PathTemplate: "digests/{{date}}.md",
			},
			File: FileConfig{Dir: "digests"},
		},
		Logging: LoggingConfig{Level: "info", Format: "text", MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 28},
		Maintenance: MaintenanceConfig{
			ArchiveAfter:   7 * 24 * time.Hour,
			CronExpression: "30 3 * * *",
		},
	}
}
