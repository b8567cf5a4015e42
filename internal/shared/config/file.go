package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// fileConfig mirrors the sectioned config.json layout. Absent keys leave defaults untouched.
type fileConfig struct {
	JobSearch *struct {
		Keywords   []string `json:"keywords"`
		Locations  []string `json:"locations"`
		Boards     []string `json:"boards"`
		DatePosted *string  `json:"date_posted"`
		Limit      *int     `json:"search_limit"`
	} `json:"job_search"`
	Application *struct {
		ResumePath      *string  `json:"resume_path"`
		CoverLetterPath *string  `json:"cover_letter_path"`
		DailyLimit      *int     `json:"daily_application_limit"`
		AutoApply       *bool    `json:"auto_apply_enabled"`
		ApplyExternal   *bool    `json:"apply_to_external_sites"`
		DelaySeconds    *float64 `json:"application_delay"`
		Phone           *string  `json:"phone"`
		Website         *string  `json:"website"`
		LinkedInURL     *string  `json:"linkedin_url"`
	} `json:"application"`
	RateLimit *struct {
		PerMinute      *int     `json:"requests_per_minute"`
		PerHour        *int     `json:"requests_per_hour"`
		MinInterval    *float64 `json:"min_request_interval"`
		RetryAttempts  *int     `json:"retry_attempts"`
		RetryBase      *float64 `json:"retry_delay_base"`
		RetryMax       *float64 `json:"retry_delay_max"`
		RequestTimeout *float64 `json:"request_timeout"`
		Cooldown       *float64 `json:"cooldown_period"`
	} `json:"rate_limit"`
	Storage *struct {
		Store       *string `json:"store"`
		LocalPath   *string `json:"local_storage_path"`
		SQLitePath  *string `json:"sqlite_path"`
		LogFilePath *string `json:"log_file_path"`
	} `json:"storage"`
}

// applyFile overlays path onto cfg. A missing file is only an error when it was asked for explicitly.
func applyFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if s := fc.JobSearch; s != nil {
		if s.Keywords != nil {
			cfg.Search.Keywords = s.Keywords
		}
		if s.Locations != nil {
			cfg.Search.Locations = s.Locations
		}
		if s.Boards != nil {
			cfg.Search.Boards = normalizeList(s.Boards)
		}
		if s.DatePosted != nil {
			cfg.Search.DatePosted = normalizeDatePosted(*s.DatePosted)
		}
		setInt(&cfg.Search.Limit, s.Limit)
	}
	if a := fc.Application; a != nil {
		setString(&cfg.Application.ResumePath, a.ResumePath)
		setString(&cfg.Application.CoverLetterPath, a.CoverLetterPath)
		setInt(&cfg.Application.DailyLimit, a.DailyLimit)
		setBool(&cfg.Application.AutoApply, a.AutoApply)
		setBool(&cfg.Application.ApplyExternal, a.ApplyExternal)
		setSeconds(&cfg.Application.Delay, a.DelaySeconds)
		setString(&cfg.Application.Phone, a.Phone)
		setString(&cfg.Application.Website, a.Website)
		setString(&cfg.Application.LinkedInURL, a.LinkedInURL)
	}
	if r := fc.RateLimit; r != nil {
		setInt(&cfg.RateLimit.PerMinute, r.PerMinute)
		setInt(&cfg.RateLimit.PerHour, r.PerHour)
		setSeconds(&cfg.RateLimit.MinInterval, r.MinInterval)
		setInt(&cfg.RateLimit.RetryAttempts, r.RetryAttempts)
		setSeconds(&cfg.RateLimit.RetryBase, r.RetryBase)
		setSeconds(&cfg.RateLimit.RetryMax, r.RetryMax)
		setSeconds(&cfg.RateLimit.RequestTimeout, r.RequestTimeout)
		setSeconds(&cfg.RateLimit.Cooldown, r.Cooldown)
	}
	if s := fc.Storage; s != nil {
		if s.Store != nil {
			cfg.Storage.Store = normalizeStoreType(*s.Store)
		}
		setString(&cfg.Storage.LocalPath, s.LocalPath)
		setString(&cfg.Storage.SQLitePath, s.SQLitePath)
		setString(&cfg.Storage.LogFilePath, s.LogFilePath)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setSeconds(dst *time.Duration, v *float64) {
	if v != nil {
		*dst = time.Duration(*v * float64(time.Second))
	}
}
