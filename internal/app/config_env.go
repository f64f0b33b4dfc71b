package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. It runs after the config file so env wins over file values; flags are
// applied afterwards by the caller. Malformed numeric or duration values are
// reported and leave the field untouched.
func ApplyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var errs []string

	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("AI_RATE_PER_MINUTE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AIRatePerMinute = n
		} else {
			errs = append(errs, fmt.Sprintf("AI_RATE_PER_MINUTE=%q", v))
		}
	}

	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := strings.TrimSpace(os.Getenv("CACHE_MAX_AGE")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheMaxAge = d
		} else {
			errs = append(errs, fmt.Sprintf("CACHE_MAX_AGE=%q", v))
		}
	}

	if v := strings.TrimSpace(os.Getenv("NOTELO_PROXIES")); v != "" {
		if strings.EqualFold(v, "off") {
			cfg.NoProxies = true
			cfg.Proxies = nil
		} else {
			cfg.NoProxies = false
			cfg.Proxies = splitList(v)
		}
	}
	if v := os.Getenv("NOTELO_TRANSCRIPT_LANG"); v != "" {
		cfg.TranscriptLang = v
	}
	if v := os.Getenv("NOTELO_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}

	if s := strings.ToLower(strings.TrimSpace(os.Getenv("VERBOSE"))); s != "" {
		cfg.Verbose = s == "1" || s == "true" || s == "yes" || s == "on"
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, ", "))
	}
	return nil
}
