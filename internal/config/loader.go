package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"mira/internal/errors"
)

// Load reads configuration with the usual layering: documented defaults,
// then the config file (explicit path, else ~/.mira/config.yaml if present),
// then MIRA_* environment overrides. The result is validated before return.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	bindDefaults(v, cfg)

	v.SetEnvPrefix("MIRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case path != "":
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &errors.ConfigurationError{Field: "config_file", Err: err}
		}
	default:
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".mira", "config.yaml")
			if _, statErr := os.Stat(candidate); statErr == nil {
				v.SetConfigFile(candidate)
				if err := v.ReadInConfig(); err != nil {
					return Config{}, &errors.ConfigurationError{Field: "config_file", Err: err}
				}
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &errors.ConfigurationError{Field: "config_file", Err: fmt.Errorf("decode: %w", err)}
	}
	if cfg.LogDir == "" && cfg.DatabasePath != "" {
		cfg.LogDir = filepath.Dir(cfg.DatabasePath)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// bindDefaults registers every default so viper can overlay file and env
// values field by field.
func bindDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("log_dir", cfg.LogDir)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("confidence_threshold", cfg.ConfidenceThreshold)
	v.SetDefault("managed_calendar_name", cfg.ManagedCalendarName)
	v.SetDefault("trusted_senders", cfg.TrustedSenders)
	v.SetDefault("timezone", cfg.Timezone)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("daily_replan_schedule", cfg.DailyReplanSchedule)
	v.SetDefault("provider_timeout_seconds", cfg.ProviderTimeoutSeconds)
	v.SetDefault("chat_ack_deadline_seconds", cfg.ChatAckDeadlineSeconds)

	v.SetDefault("planner.workday_start_hour", cfg.Planner.WorkdayStartHour)
	v.SetDefault("planner.workday_end_hour", cfg.Planner.WorkdayEndHour)
	v.SetDefault("planner.sleep_start", cfg.Planner.SleepStart)
	v.SetDefault("planner.sleep_end", cfg.Planner.SleepEnd)
	v.SetDefault("planner.max_deep_work_minutes_per_day", cfg.Planner.MaxDeepWorkMinutesPerDay)
	v.SetDefault("planner.break_every_minutes", cfg.Planner.BreakEveryMinutes)
	v.SetDefault("planner.break_duration_minutes", cfg.Planner.BreakDurationMinutes)
	v.SetDefault("planner.avoid_after_hour", cfg.Planner.AvoidAfterHour)
	v.SetDefault("planner.free_space_buffer_minutes", cfg.Planner.FreeSpaceBufferMinutes)

	v.SetDefault("sync.active_polling_minutes", cfg.Sync.ActivePollingMinutes)
	v.SetDefault("sync.normal_polling_minutes", cfg.Sync.NormalPollingMinutes)
	v.SetDefault("sync.idle_polling_minutes", cfg.Sync.IdlePollingMinutes)
	v.SetDefault("sync.max_backoff_minutes", cfg.Sync.MaxBackoffMinutes)

	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.timeout_seconds", cfg.LLM.TimeoutSeconds)
	v.SetDefault("llm.cache_size", cfg.LLM.CacheSize)
}
