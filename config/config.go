package config

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/maastricht-university/transcript-pipeline/progress"
	"github.com/maastricht-university/transcript-pipeline/reconcile"
	"github.com/maastricht-university/transcript-pipeline/transcribe"
	"github.com/maastricht-university/transcript-pipeline/translate"
)

type Recognizer struct {
	URL      string `yaml:"url"`
	Provider string `yaml:"provider"` // preferred execution provider, e.g. "cuda"
	Model    string `yaml:"model"`
}

type OpenAI struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	System         string  `yaml:"system"`
	Temperature    float64 `yaml:"temperature"`
	IdleTimeoutSec int     `yaml:"idle_timeout_seconds"`
}

type Gemini struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

type Services struct {
	Recognizer Recognizer `yaml:"recognizer"`
	// LLM selects the text-generation backend: "openai" or "gemini".
	LLM    string `yaml:"llm"`
	OpenAI OpenAI `yaml:"openai"`
	Gemini Gemini `yaml:"gemini"`
}

type Chunking struct {
	WindowSeconds int `yaml:"window_seconds"`
	OverlapMs     int `yaml:"overlap_ms"`
}

type Translate struct {
	TargetLang      string `yaml:"target_lang"`
	MaxItems        int    `yaml:"max_items"`
	MaxChars        int    `yaml:"max_chars"`
	Concurrency     int    `yaml:"concurrency"`
	MaxSplits       int    `yaml:"max_splits"`
	MaxIterations   int    `yaml:"max_iterations"`
	RetryDelaysMs   []int  `yaml:"retry_delays_ms"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

type Progress struct {
	MinIntervalMs int     `yaml:"min_interval_ms"`
	MinDelta      float64 `yaml:"min_delta"`
	ListenAddr    string  `yaml:"listen_addr"`
}

type Store struct {
	Driver string `yaml:"driver"` // file | postgres
	DSN    string `yaml:"dsn"`
}

type Root struct {
	Pipeline struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		LogLvl  string `yaml:"log_level"`
	} `yaml:"pipeline"`
	Services  Services         `yaml:"services"`
	Chunking  Chunking         `yaml:"chunking"`
	Reconcile reconcile.Config `yaml:"reconcile"`
	Translate Translate        `yaml:"translate"`
	Progress  Progress         `yaml:"progress"`
	Paths     struct {
		Data    string `yaml:"data"`
		Outputs string `yaml:"outputs"`
	} `yaml:"paths"`
	Store Store `yaml:"store"`
}

func Default() *Root {
	var c Root
	c.Pipeline.Name = "transcript-pipeline"
	c.Pipeline.Version = "0.1.0"
	c.Pipeline.LogLvl = "info"
	c.Services.Recognizer = Recognizer{URL: "http://localhost:8000", Provider: "cuda", Model: "sensevoice"}
	c.Services.LLM = "openai"
	c.Services.OpenAI = OpenAI{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini", IdleTimeoutSec: 60}
	c.Services.Gemini = Gemini{Model: "gemini-1.5-flash"}
	c.Chunking = Chunking{WindowSeconds: 45, OverlapMs: 8000}
	c.Reconcile = reconcile.DefaultConfig()

	t := translate.DefaultOptions()
	c.Translate = Translate{
		TargetLang:      "zh",
		MaxItems:        t.MaxItems,
		MaxChars:        t.MaxChars,
		Concurrency:     t.Concurrency,
		MaxSplits:       t.MaxSplits,
		MaxIterations:   t.MaxIterations,
		MaxOutputTokens: t.MaxOutputTokens,
	}
	for _, d := range t.RetryDelays {
		c.Translate.RetryDelaysMs = append(c.Translate.RetryDelaysMs, int(d/time.Millisecond))
	}

	p := progress.DefaultOptions()
	c.Progress = Progress{MinIntervalMs: int(p.MinInterval / time.Millisecond), MinDelta: p.MinDelta}
	c.Paths.Data = "data"
	c.Paths.Outputs = "outputs"
	c.Store = Store{Driver: "file"}
	return &c
}

// Load decodes path over Default(). With an empty path it tries
// config/<CONFIG_ENV>/config.yaml and then config.yaml; finding neither is
// not an error.
func Load(path string) (*Root, error) {
	cfg := Default()
	if path != "" {
		return cfg, decodeFile(path, cfg)
	}
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	guess := []string{
		filepath.Join("config", env, "config.yaml"),
		"config.yaml",
	}
	for _, p := range guess {
		err := decodeFile(p, cfg)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Root) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// NewViper reads PIPELINE_* environment variables, e.g.
// PIPELINE_TRANSLATE_TARGET_LANG for translate.target_lang. The usual
// OPENAI_API_KEY and GEMINI_API_KEY variables are honoured too.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("PIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("services.openai.api_key", "PIPELINE_SERVICES_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("services.gemini.api_key", "PIPELINE_SERVICES_GEMINI_API_KEY", "GEMINI_API_KEY")
	return v
}

// Overlay copies every key set in v (env, bound flag or explicit Set) onto c.
func Overlay(c *Root, v *viper.Viper) {
	for key, dst := range c.keys() {
		if !v.IsSet(key) {
			continue
		}
		switch p := dst.(type) {
		case *string:
			*p = v.GetString(key)
		case *int:
			*p = v.GetInt(key)
		case *int64:
			*p = v.GetInt64(key)
		case *float64:
			*p = v.GetFloat64(key)
		}
	}
}

// Keys lists the overridable keys, for flag binding.
func Keys() []string {
	var out []string
	for k := range Default().keys() {
		out = append(out, k)
	}
	return out
}

func (c *Root) keys() map[string]any {
	return map[string]any{
		"pipeline.log_level":                   &c.Pipeline.LogLvl,
		"services.recognizer.url":              &c.Services.Recognizer.URL,
		"services.recognizer.provider":         &c.Services.Recognizer.Provider,
		"services.recognizer.model":            &c.Services.Recognizer.Model,
		"services.llm":                         &c.Services.LLM,
		"services.openai.base_url":             &c.Services.OpenAI.BaseURL,
		"services.openai.api_key":              &c.Services.OpenAI.APIKey,
		"services.openai.model":                &c.Services.OpenAI.Model,
		"services.openai.idle_timeout_seconds": &c.Services.OpenAI.IdleTimeoutSec,
		"services.gemini.base_url":             &c.Services.Gemini.BaseURL,
		"services.gemini.api_key":              &c.Services.Gemini.APIKey,
		"services.gemini.model":                &c.Services.Gemini.Model,
		"chunking.window_seconds":              &c.Chunking.WindowSeconds,
		"chunking.overlap_ms":                  &c.Chunking.OverlapMs,
		"reconcile.edge_guard_ms":              &c.Reconcile.EdgeGuardMs,
		"reconcile.lock_in_share":              &c.Reconcile.LockInShare,
		"translate.target_lang":                &c.Translate.TargetLang,
		"translate.max_items":                  &c.Translate.MaxItems,
		"translate.max_chars":                  &c.Translate.MaxChars,
		"translate.concurrency":                &c.Translate.Concurrency,
		"translate.max_output_tokens":          &c.Translate.MaxOutputTokens,
		"progress.listen_addr":                 &c.Progress.ListenAddr,
		"paths.data":                           &c.Paths.Data,
		"paths.outputs":                        &c.Paths.Outputs,
		"store.driver":                         &c.Store.Driver,
		"store.dsn":                            &c.Store.DSN,
	}
}

func (c *Root) LogLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.Pipeline.LogLvl)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func (c *Root) TranscribeOptions() transcribe.Options {
	return transcribe.Options{
		WindowMs:  int64(c.Chunking.WindowSeconds) * 1000,
		OverlapMs: int64(c.Chunking.OverlapMs),
		Model:     c.Services.Recognizer.Model,
	}
}

func (c *Root) TranslateOptions(targetLang string) translate.Options {
	if strings.TrimSpace(targetLang) == "" {
		targetLang = c.Translate.TargetLang
	}
	o := translate.Options{
		TargetLang:      strings.ToLower(strings.TrimSpace(targetLang)),
		MaxItems:        c.Translate.MaxItems,
		MaxChars:        c.Translate.MaxChars,
		Concurrency:     c.Translate.Concurrency,
		MaxSplits:       c.Translate.MaxSplits,
		MaxIterations:   c.Translate.MaxIterations,
		MaxOutputTokens: c.Translate.MaxOutputTokens,
	}
	if c.Translate.RetryDelaysMs != nil {
		o.RetryDelays = make([]time.Duration, 0, len(c.Translate.RetryDelaysMs))
		for _, ms := range c.Translate.RetryDelaysMs {
			o.RetryDelays = append(o.RetryDelays, time.Duration(ms)*time.Millisecond)
		}
	}
	return o
}

func (c *Root) ProgressOptions(log logrus.FieldLogger) progress.Options {
	return progress.Options{
		MinInterval: time.Duration(c.Progress.MinIntervalMs) * time.Millisecond,
		MinDelta:    c.Progress.MinDelta,
		Log:         log,
	}
}

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }
