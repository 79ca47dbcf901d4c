package config

import (
	"fmt"
	"time"

	"mira/internal/errors"
)

// Defaults for every recognized option.
const (
	DefaultLogLevel            = "info"
	DefaultConfidenceThreshold = 0.80

	DefaultWorkdayStartHour        = 9
	DefaultWorkdayEndHour          = 22
	DefaultSleepStart              = "00:30"
	DefaultSleepEnd                = "08:00"
	DefaultMaxDeepWorkMinutes      = 240
	DefaultBreakEveryMinutes       = 90
	DefaultBreakDurationMinutes    = 10
	DefaultAvoidAfterHour          = 23
	DefaultFreeSpaceBufferMinutes  = 45
	DefaultActivePollingMinutes    = 10
	DefaultNormalPollingMinutes    = 15
	DefaultIdlePollingMinutes      = 45
	DefaultMaxBackoffMinutes       = 120
	DefaultManagedCalendarName     = "Mira Plan"
	DefaultLLMBaseURL              = "http://localhost:11434"
	DefaultLLMModel                = "qwen2.5:7b-instruct"
	DefaultLLMTimeoutSeconds       = 60
	DefaultChatAckDeadlineSeconds  = 3
	DefaultExtractionCacheSize     = 512
	DefaultProviderTimeoutSeconds  = 30
	DefaultDailyReplanCronSchedule = "0 8 * * *"
)

// PlannerConfig holds the scheduling constraints applied to every plan.
type PlannerConfig struct {
	WorkdayStartHour        int    `json:"workday_start_hour" yaml:"workday_start_hour" mapstructure:"workday_start_hour"`
	WorkdayEndHour          int    `json:"workday_end_hour" yaml:"workday_end_hour" mapstructure:"workday_end_hour"`
	SleepStart              string `json:"sleep_start" yaml:"sleep_start" mapstructure:"sleep_start"`
	SleepEnd                string `json:"sleep_end" yaml:"sleep_end" mapstructure:"sleep_end"`
	MaxDeepWorkMinutesPerDay int   `json:"max_deep_work_minutes_per_day" yaml:"max_deep_work_minutes_per_day" mapstructure:"max_deep_work_minutes_per_day"`
	BreakEveryMinutes       int    `json:"break_every_minutes" yaml:"break_every_minutes" mapstructure:"break_every_minutes"`
	BreakDurationMinutes    int    `json:"break_duration_minutes" yaml:"break_duration_minutes" mapstructure:"break_duration_minutes"`
	AvoidAfterHour          int    `json:"avoid_after_hour" yaml:"avoid_after_hour" mapstructure:"avoid_after_hour"`
	FreeSpaceBufferMinutes  int    `json:"free_space_buffer_minutes" yaml:"free_space_buffer_minutes" mapstructure:"free_space_buffer_minutes"`
}

// SyncConfig holds adaptive polling intervals, all in minutes.
type SyncConfig struct {
	ActivePollingMinutes int `json:"active_polling_minutes" yaml:"active_polling_minutes" mapstructure:"active_polling_minutes"`
	NormalPollingMinutes int `json:"normal_polling_minutes" yaml:"normal_polling_minutes" mapstructure:"normal_polling_minutes"`
	IdlePollingMinutes   int `json:"idle_polling_minutes" yaml:"idle_polling_minutes" mapstructure:"idle_polling_minutes"`
	MaxBackoffMinutes    int `json:"max_backoff_minutes" yaml:"max_backoff_minutes" mapstructure:"max_backoff_minutes"`
}

// LLMConfig points at the local model runtime.
type LLMConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	Model          string `json:"model" yaml:"model" mapstructure:"model"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	CacheSize      int    `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`
}

// Config captures every user-configurable setting.
type Config struct {
	DatabasePath        string        `json:"database_path" yaml:"database_path" mapstructure:"database_path"`
	LogDir              string        `json:"log_dir" yaml:"log_dir" mapstructure:"log_dir"`
	LogLevel            string        `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	ConfidenceThreshold float64       `json:"confidence_threshold" yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	ManagedCalendarName string        `json:"managed_calendar_name" yaml:"managed_calendar_name" mapstructure:"managed_calendar_name"`
	TrustedSenders      []string      `json:"trusted_senders" yaml:"trusted_senders" mapstructure:"trusted_senders"`
	Timezone            string        `json:"timezone" yaml:"timezone" mapstructure:"timezone"`
	MetricsAddr         string        `json:"metrics_addr" yaml:"metrics_addr" mapstructure:"metrics_addr"`
	DailyReplanSchedule string        `json:"daily_replan_schedule" yaml:"daily_replan_schedule" mapstructure:"daily_replan_schedule"`
	Planner             PlannerConfig `json:"planner" yaml:"planner" mapstructure:"planner"`
	Sync                SyncConfig    `json:"sync" yaml:"sync" mapstructure:"sync"`
	LLM                 LLMConfig     `json:"llm" yaml:"llm" mapstructure:"llm"`

	ProviderTimeoutSeconds int `json:"provider_timeout_seconds" yaml:"provider_timeout_seconds" mapstructure:"provider_timeout_seconds"`
	ChatAckDeadlineSeconds int `json:"chat_ack_deadline_seconds" yaml:"chat_ack_deadline_seconds" mapstructure:"chat_ack_deadline_seconds"`
}

// Default returns a config populated with every documented default. The
// database path is intentionally left empty: it is required.
func Default() Config {
	return Config{
		LogLevel:            DefaultLogLevel,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		ManagedCalendarName: DefaultManagedCalendarName,
		Timezone:            "Local",
		DailyReplanSchedule: DefaultDailyReplanCronSchedule,
		TrustedSenders: []string{
			"@buffalo.edu",
			"@piazza.com",
			"no-reply@ublearns",
		},
		Planner: PlannerConfig{
			WorkdayStartHour:         DefaultWorkdayStartHour,
			WorkdayEndHour:           DefaultWorkdayEndHour,
			SleepStart:               DefaultSleepStart,
			SleepEnd:                 DefaultSleepEnd,
			MaxDeepWorkMinutesPerDay: DefaultMaxDeepWorkMinutes,
			BreakEveryMinutes:        DefaultBreakEveryMinutes,
			BreakDurationMinutes:     DefaultBreakDurationMinutes,
			AvoidAfterHour:           DefaultAvoidAfterHour,
			FreeSpaceBufferMinutes:   DefaultFreeSpaceBufferMinutes,
		},
		Sync: SyncConfig{
			ActivePollingMinutes: DefaultActivePollingMinutes,
			NormalPollingMinutes: DefaultNormalPollingMinutes,
			IdlePollingMinutes:   DefaultIdlePollingMinutes,
			MaxBackoffMinutes:    DefaultMaxBackoffMinutes,
		},
		LLM: LLMConfig{
			BaseURL:        DefaultLLMBaseURL,
			Model:          DefaultLLMModel,
			TimeoutSeconds: DefaultLLMTimeoutSeconds,
			CacheSize:      DefaultExtractionCacheSize,
		},
		ProviderTimeoutSeconds: DefaultProviderTimeoutSeconds,
		ChatAckDeadlineSeconds: DefaultChatAckDeadlineSeconds,
	}
}

// Validate fails fast on configuration that cannot be worked around.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return &errors.ConfigurationError{Field: "database_path", Err: fmt.Errorf("required")}
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return &errors.ConfigurationError{
			Field: "confidence_threshold",
			Err:   fmt.Errorf("must be in [0,1], got %v", c.ConfidenceThreshold),
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return &errors.ConfigurationError{Field: "log_level", Err: fmt.Errorf("unknown level %q", c.LogLevel)}
	}
	if c.Planner.WorkdayStartHour >= c.Planner.WorkdayEndHour {
		return &errors.ConfigurationError{
			Field: "planner",
			Err: fmt.Errorf("workday_start_hour %d must precede workday_end_hour %d",
				c.Planner.WorkdayStartHour, c.Planner.WorkdayEndHour),
		}
	}
	if c.ManagedCalendarName == "" {
		return &errors.ConfigurationError{Field: "managed_calendar_name", Err: fmt.Errorf("required")}
	}
	if c.Sync.ActivePollingMinutes <= 0 || c.Sync.MaxBackoffMinutes <= 0 {
		return &errors.ConfigurationError{Field: "sync", Err: fmt.Errorf("polling intervals must be positive")}
	}
	return nil
}

// Location resolves the configured timezone. "Local" and the empty string
// resolve to the workstation's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, &errors.ConfigurationError{Field: "timezone", Err: err}
	}
	return loc, nil
}
