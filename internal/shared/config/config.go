package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Env              string
	Port             string
	ScheduleInterval time.Duration

	Search      SearchConfig
	Application ApplicationConfig
	RateLimit   RateLimitConfig
	Storage     StorageConfig
	Browser     BrowserConfig

	LinkedInEmail    string
	LinkedInPassword string

	AWSRegion string
	S3Bucket  string
	S3Prefix  string
}

// SearchConfig controls what the boards are asked for.
type SearchConfig struct {
	Keywords   []string
	Locations  []string
	Boards     []string
	DatePosted string
	Limit      int
}

// ApplicationConfig controls the apply step.
type ApplicationConfig struct {
	ResumePath      string
	CoverLetterPath string
	DailyLimit      int
	AutoApply       bool
	ApplyExternal   bool
	Delay           time.Duration

	Phone       string
	Website     string
	LinkedInURL string
}

// RateLimitConfig controls the request governor shared by every board.
type RateLimitConfig struct {
	PerMinute      int
	PerHour        int
	MinInterval    time.Duration
	RetryAttempts  int
	RetryBase      time.Duration
	RetryMax       time.Duration
	RequestTimeout time.Duration
	Cooldown       time.Duration
	BudgetStore    string
	RedisURL       string
}

// StorageConfig selects the posting store.
type StorageConfig struct {
	Store       string
	LocalPath   string
	SQLitePath  string
	DatabaseURL string
	LogFilePath string
}

// BrowserConfig configures the automation browser.
type BrowserConfig struct {
	Headless   bool
	ChromePath string
	OAuthWait  time.Duration
}

// Defaults returns the configuration used when neither a file nor the environment says otherwise.
func Defaults() Config {
	return Config{
		Env:              "dev",
		Port:             "8080",
		ScheduleInterval: 6 * time.Hour,
		Search: SearchConfig{
			Keywords:   []string{"software engineer", "python developer"},
			Locations:  []string{"Remote", "San Francisco", "New York"},
			Boards:     []string{"linkedin", "indeed", "glassdoor"},
			DatePosted: "week",
			Limit:      20,
		},
		Application: ApplicationConfig{
			ResumePath:      "documents/resume.pdf",
			CoverLetterPath: "documents/cover_letter.txt",
			DailyLimit:      10,
			Delay:           5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			PerMinute:      30,
			PerHour:        100,
			MinInterval:    2 * time.Second,
			RetryAttempts:  3,
			RetryBase:      time.Second,
			RetryMax:       10 * time.Second,
			RequestTimeout: 30 * time.Second,
			Cooldown:       300 * time.Second,
			BudgetStore:    "memory",
		},
		Storage: StorageConfig{
			Store:       "json",
			LocalPath:   "data/job_postings.json",
			SQLitePath:  "data/jobbot.db",
			LogFilePath: "logs/application_log.txt",
		},
		Browser: BrowserConfig{
			Headless:  true,
			OAuthWait: 60 * time.Second,
		},
	}
}

// Load reads configuration from defaults, an optional JSON file and the environment, in that order.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	cfg := Defaults()
	path := getEnv("CONFIG_FILE", "config.json")
	if err := applyFile(&cfg, path, os.Getenv("CONFIG_FILE") != ""); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)

	if cfg.Env == "production" && cfg.Storage.Store == "postgres" && cfg.Storage.DatabaseURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}
	return cfg, nil
}

func loadEnvFiles(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		// Load never overrides variables already present in the process environment.
		if err := godotenv.Load(p); err != nil {
			log.Printf("env file %s ignored: %v", p, err)
		}
	}
}

func applyEnv(cfg *Config) {
	cfg.Env = normalizeEnv(getEnv("ENV", cfg.Env))
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.ScheduleInterval = getEnvDuration("SCHEDULE_INTERVAL", cfg.ScheduleInterval)

	cfg.Search.Keywords = getEnvList("KEYWORDS", cfg.Search.Keywords)
	cfg.Search.Locations = getEnvList("LOCATIONS", cfg.Search.Locations)
	cfg.Search.Boards = normalizeList(getEnvList("BOARDS", cfg.Search.Boards))
	cfg.Search.DatePosted = normalizeDatePosted(getEnv("DATE_POSTED", cfg.Search.DatePosted))
	cfg.Search.Limit = getEnvInt("SEARCH_LIMIT", cfg.Search.Limit)

	app := &cfg.Application
	app.ResumePath = getEnv("RESUME_PATH", app.ResumePath)
	app.CoverLetterPath = getEnv("COVER_LETTER_PATH", app.CoverLetterPath)
	app.DailyLimit = getEnvInt("DAILY_APPLICATION_LIMIT", app.DailyLimit)
	app.AutoApply = getEnvBool("AUTO_APPLY_ENABLED", app.AutoApply)
	app.ApplyExternal = getEnvBool("APPLY_TO_EXTERNAL_SITES", app.ApplyExternal)
	app.Delay = getEnvDuration("APPLICATION_DELAY", app.Delay)
	app.Phone = getEnv("APPLICANT_PHONE", app.Phone)
	app.Website = getEnv("APPLICANT_WEBSITE", app.Website)
	app.LinkedInURL = getEnv("APPLICANT_LINKEDIN", app.LinkedInURL)

	rl := &cfg.RateLimit
	rl.PerMinute = getEnvInt("REQUESTS_PER_MINUTE", rl.PerMinute)
	rl.PerHour = getEnvInt("REQUESTS_PER_HOUR", rl.PerHour)
	rl.MinInterval = getEnvDuration("MIN_REQUEST_INTERVAL", rl.MinInterval)
	rl.RetryAttempts = getEnvInt("RETRY_ATTEMPTS", rl.RetryAttempts)
	rl.RetryBase = getEnvDuration("RETRY_DELAY_BASE", rl.RetryBase)
	rl.RetryMax = getEnvDuration("RETRY_DELAY_MAX", rl.RetryMax)
	rl.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", rl.RequestTimeout)
	rl.Cooldown = getEnvDuration("COOLDOWN_PERIOD", rl.Cooldown)
	rl.BudgetStore = normalizeBudgetStore(getEnv("RATE_BUDGET_STORE", rl.BudgetStore))
	rl.RedisURL = getEnv("REDIS_URL", rl.RedisURL)

	st := &cfg.Storage
	st.Store = normalizeStoreType(getEnv("STORE", st.Store))
	st.LocalPath = getEnv("LOCAL_STORAGE_PATH", st.LocalPath)
	st.SQLitePath = getEnv("SQLITE_PATH", st.SQLitePath)
	st.DatabaseURL = getEnv("DATABASE_URL", st.DatabaseURL)
	st.LogFilePath = getEnv("LOG_FILE_PATH", st.LogFilePath)

	cfg.Browser.Headless = getEnvBool("CHROME_HEADLESS", cfg.Browser.Headless)
	cfg.Browser.ChromePath = getEnv("CHROME_PATH", cfg.Browser.ChromePath)
	cfg.Browser.OAuthWait = getEnvDuration("OAUTH_WAIT", cfg.Browser.OAuthWait)

	cfg.LinkedInEmail = getEnv("LINKEDIN_EMAIL", cfg.LinkedInEmail)
	cfg.LinkedInPassword = getEnv("LINKEDIN_PASSWORD", cfg.LinkedInPassword)

	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Prefix = getEnv("S3_PREFIX", cfg.S3Prefix)
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvList(key string, def []string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return def
	}
	return splitAndTrim(raw)
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config env %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config env %s invalid bool: %v", key, err)
		return def
	}
	return val
}

// getEnvDuration accepts Go durations ("90s") and bare numbers, read as seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := parseDuration(raw)
	if err != nil {
		log.Printf("config env %s invalid duration: %v", key, err)
		return def
	}
	return val
}

func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(raw)
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "postgresql", "pg":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "memory", "mem":
		return "memory"
	default:
		return "json"
	}
}

func normalizeBudgetStore(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "redis":
		return "redis"
	default:
		return "memory"
	}
}

func normalizeDatePosted(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "today", "day", "24h":
		return "today"
	case "month":
		return "month"
	default:
		return "week"
	}
}
