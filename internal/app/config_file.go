package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk configuration schema. YAML and JSON share it.
type FileConfig struct {
	Output    string   `yaml:"output" json:"output"`
	OutputPDF string   `yaml:"outputPDF" json:"outputPDF"`
	JSON      bool     `yaml:"json" json:"json"`
	Generate  []string `yaml:"generate" json:"generate"`
	Verbose   bool     `yaml:"verbose" json:"verbose"`

	LLM struct {
		BaseURL string `yaml:"base" json:"base"`
		Model   string `yaml:"model" json:"model"`
		APIKey  string `yaml:"key" json:"key"`
		// RatePerMinute caps study generation calls.
		RatePerMinute int `yaml:"ratePerMinute" json:"ratePerMinute"`
	} `yaml:"llm" json:"llm"`

	Fetch struct {
		UserAgent      string        `yaml:"userAgent" json:"userAgent"`
		Proxies        []string      `yaml:"proxies" json:"proxies"`
		NoProxies      bool          `yaml:"noProxies" json:"noProxies"`
		TranscriptLang string        `yaml:"transcriptLang" json:"transcriptLang"`
		Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	} `yaml:"fetch" json:"fetch"`

	Chunk struct {
		Max     int  `yaml:"max" json:"max"`
		Preview bool `yaml:"preview" json:"preview"`
	} `yaml:"chunk" json:"chunk"`

	Study struct {
		Questions  int `yaml:"questions" json:"questions"`
		Flashcards int `yaml:"flashcards" json:"flashcards"`
	} `yaml:"study" json:"study"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool          `yaml:"clear" json:"clear"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
		Purge       []string      `yaml:"purge" json:"purge"`
	} `yaml:"cache" json:"cache"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays every value the file sets onto cfg. It runs on top
// of Defaults and below env and flags.
func ApplyFileConfig(cfg *Config, fc FileConfig) error {
	if cfg == nil {
		return nil
	}
	if fc.Output != "" {
		cfg.OutputPath = fc.Output
	}
	if fc.OutputPDF != "" {
		cfg.OutputPDFPath = fc.OutputPDF
	}
	if fc.JSON {
		cfg.JSON = true
	}
	if fc.Verbose {
		cfg.Verbose = true
	}
	if len(fc.Generate) > 0 {
		gen, err := ParseGenerate(strings.Join(fc.Generate, ","))
		if err != nil {
			return fmt.Errorf("config generate: %w", err)
		}
		cfg.Generate = gen
	}

	if fc.LLM.BaseURL != "" {
		cfg.LLMBaseURL = fc.LLM.BaseURL
	}
	if fc.LLM.Model != "" {
		cfg.LLMModel = fc.LLM.Model
	}
	if fc.LLM.APIKey != "" {
		cfg.LLMAPIKey = fc.LLM.APIKey
	}
	if fc.LLM.RatePerMinute > 0 {
		cfg.AIRatePerMinute = fc.LLM.RatePerMinute
	}

	if fc.Fetch.UserAgent != "" {
		cfg.UserAgent = fc.Fetch.UserAgent
	}
	if len(fc.Fetch.Proxies) > 0 {
		cfg.Proxies = append([]string(nil), fc.Fetch.Proxies...)
	}
	if fc.Fetch.NoProxies {
		cfg.NoProxies = true
	}
	if fc.Fetch.TranscriptLang != "" {
		cfg.TranscriptLang = fc.Fetch.TranscriptLang
	}
	if fc.Fetch.Timeout > 0 {
		cfg.FetchTimeout = fc.Fetch.Timeout
	}

	if fc.Chunk.Max > 0 {
		cfg.ChunkMax = fc.Chunk.Max
	}
	if fc.Chunk.Preview {
		cfg.Preview = true
	}
	if fc.Study.Questions > 0 {
		cfg.QuizCount = fc.Study.Questions
	}
	if fc.Study.Flashcards > 0 {
		cfg.FlashcardCount = fc.Study.Flashcards
	}

	if fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = fc.Cache.MaxAge
	}
	if fc.Cache.Clear {
		cfg.CacheClear = true
	}
	if fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
	if len(fc.Cache.Purge) > 0 {
		kinds, err := ParseCacheKinds(strings.Join(fc.Cache.Purge, ","))
		if err != nil {
			return fmt.Errorf("config cache.purge: %w", err)
		}
		cfg.CachePurge = kinds
	}
	return nil
}
