package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

var knownBoards = []string{"linkedin", "indeed", "glassdoor"}

// ConfigurationError lists every problem found by Validate.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return "invalid configuration"
	}
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks settings that must hold before any network action. It returns nil or a *ConfigurationError.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.Search.Keywords) == 0 {
		add("at least one keyword must be specified")
	}
	if len(c.Search.Locations) == 0 {
		add("at least one location must be specified")
	}
	if len(c.Search.Boards) == 0 {
		add("at least one board must be enabled")
	}
	for _, b := range c.Search.Boards {
		if !slices.Contains(knownBoards, b) {
			add("unknown board %q", b)
		}
	}
	if c.Search.Limit < 1 {
		add("search limit must be at least 1")
	}

	rl := c.RateLimit
	if rl.PerMinute < 1 {
		add("requests_per_minute must be at least 1")
	}
	if rl.PerHour < 1 {
		add("requests_per_hour must be at least 1")
	}
	if rl.RetryAttempts < 1 {
		add("retry_attempts must be at least 1")
	}
	if rl.RetryBase < 0 || rl.Cooldown < 0 || rl.MinInterval < 0 {
		add("rate limit durations must not be negative")
	}
	if rl.BudgetStore == "redis" && strings.TrimSpace(rl.RedisURL) == "" {
		add("REDIS_URL is required when RATE_BUDGET_STORE=redis")
	}

	if c.Application.DailyLimit < 1 {
		add("daily_application_limit must be at least 1")
	}
	if c.Application.AutoApply {
		if !fileExists(c.Application.ResumePath) {
			add("resume file not found: %s", c.Application.ResumePath)
		}
		if !fileExists(c.Application.CoverLetterPath) {
			add("cover letter file not found: %s", c.Application.CoverLetterPath)
		}
		if slices.Contains(c.Search.Boards, "linkedin") && (c.LinkedInEmail == "" || c.LinkedInPassword == "") {
			add("LINKEDIN_EMAIL and LINKEDIN_PASSWORD are required to apply on linkedin")
		}
	}

	switch c.Storage.Store {
	case "postgres":
		if strings.TrimSpace(c.Storage.DatabaseURL) == "" {
			add("DATABASE_URL is required when STORE=postgres")
		}
	case "sqlite":
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			add("SQLITE_PATH is required when STORE=sqlite")
		}
	case "json":
		if strings.TrimSpace(c.Storage.LocalPath) == "" {
			add("LOCAL_STORAGE_PATH is required when STORE=json")
		}
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

func fileExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
