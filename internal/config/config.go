// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // time zones on hosts without a zone database

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/triage-router/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete triage-router configuration.
type Config struct {
	Routing   RoutingConfig   `toml:"routing" json:"routing"`
	Local     LocalConfig     `toml:"local" json:"local"`
	Cloud     CloudConfig     `toml:"cloud" json:"cloud"`
	Triage    TriageConfig    `toml:"triage" json:"triage"`
	Storage   StorageConfig   `toml:"storage" json:"storage"`
	Telemetry TelemetryConfig `toml:"telemetry" json:"telemetry"`
	Log       LogConfig       `toml:"log" json:"log"`
}

// RoutingConfig controls tier classification and dispatch.
type RoutingConfig struct {
	// Priority is "basic_first" or "advanced_first": which keyword list wins
	// when a query matches both.
	Priority         string   `toml:"priority" json:"priority"`
	BasicKeywords    []string `toml:"basic_keywords" json:"basic_keywords"`
	AdvancedKeywords []string `toml:"advanced_keywords" json:"advanced_keywords"`

	// Fallback asks the local model to classify queries no keyword matched.
	// When false those queries go to the advanced tier.
	Fallback bool `toml:"fallback" json:"fallback"`
	// ClassifierPrompt replaces the built-in prompt. "{query}" marks where
	// the recent conversation goes.
	ClassifierPrompt string   `toml:"classifier_prompt" json:"classifier_prompt"`
	BasicMarkers     []string `toml:"basic_markers" json:"basic_markers"`
	HistoryWindow    int      `toml:"history_window" json:"history_window"`

	// MaxNested bounds tool follow-up rounds for one query.
	MaxNested int `toml:"max_nested" json:"max_nested"`
}

// LocalConfig is the Ollama model used for the basic tier and the
// fallback classifier.
type LocalConfig struct {
	OllamaURL   string `toml:"ollama_url" json:"ollama_url"`
	OllamaModel string `toml:"ollama_model" json:"ollama_model"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
	MaxRetries  int    `toml:"max_retries" json:"max_retries"`
}

// CloudConfig is the OpenAI-compatible provider used for the advanced tier.
type CloudConfig struct {
	BaseURL           string  `toml:"base_url" json:"base_url"`
	APIKey            string  `toml:"api_key" json:"api_key"`
	Model             string  `toml:"model" json:"model"`
	TimeoutSecs       int     `toml:"timeout_secs" json:"timeout_secs"`
	MaxRetries        int     `toml:"max_retries" json:"max_retries"`
	RequestsPerMinute int     `toml:"requests_per_minute" json:"requests_per_minute"`
	MaxTokens         int     `toml:"max_tokens" json:"max_tokens"`
	Temperature       float64 `toml:"temperature" json:"temperature"`
}

// TriageConfig holds the clinic-facing settings.
type TriageConfig struct {
	Timezone     string `toml:"timezone" json:"timezone"`
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`
	IntakePrompt string `toml:"intake_prompt" json:"intake_prompt"`
	// Intents enables the direct tool short-circuit for known requests.
	Intents         bool              `toml:"intents" json:"intents"`
	ToolTimeoutSecs int               `toml:"tool_timeout_secs" json:"tool_timeout_secs"`
	WaitTimes       map[string]string `toml:"wait_times" json:"wait_times"`
}

// StorageConfig selects the triage record store.
type StorageConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `toml:"driver" json:"driver"`
	// Path is the SQLite file. Empty means records.db in the config dir.
	Path string `toml:"path" json:"path"`
}

// TelemetryConfig controls routing statistics.
type TelemetryConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path is the stats file. Empty means stats.json in the config dir.
	Path string `toml:"path" json:"path"`
}

// LogConfig controls the logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" json:"level"`
	// Format is text, json or logfmt.
	Format string `toml:"format" json:"format"`
}

// DefaultSystemPrompt is sent ahead of every model conversation.
const DefaultSystemPrompt = `You are an AI healthcare triage assistant with two-tier processing:

Simple Queries (Basic Model):
- Routine appointment scheduling
- Facility information
- Basic health advice
- Wait time inquiries
- Minor symptoms (common cold, etc.)

Complex/Urgent Queries (Advanced Model):
- Multiple symptom assessment
- Chest pain or breathing issues
- Mental health concerns
- Medication interactions
- Complex medical conditions
- Urgent care needs
- Pediatric/elderly concerns

Critical Guidelines:
- ALWAYS refer emergency situations to immediate medical care
- Maintain professional, empathetic communication
- Protect patient privacy
- Be clear about AI limitations
- Recommend healthcare provider consultation when in doubt`

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Routing: RoutingConfig{
			Priority: "basic_first",
			BasicKeywords: []string{
				"routine checkup", "schedule appointment", "wait time", "office hours",
				"where is", "directions", "mild cold", "registration",
			},
			AdvancedKeywords: []string{
				"severe", "emergency", "chest pain", "difficulty breathing",
				"multiple symptoms", "drug interaction", "mental health", "suicidal",
				"confusion", "elderly", "pregnancy",
			},
			Fallback:      true,
			BasicMarkers:  []string{"CHEAP"},
			HistoryWindow: 3,
			MaxNested:     3,
		},
		Local: LocalConfig{
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "llama3.2:3b",
			TimeoutSecs: 60,
			MaxRetries:  2,
		},
		Cloud: CloudConfig{
			BaseURL:           "https://api.groq.com/openai/v1",
			Model:             "mixtral-8x7b-32768",
			TimeoutSecs:       60,
			MaxRetries:        3,
			RequestsPerMinute: 30,
			MaxTokens:         1024,
			Temperature:       0.3,
		},
		Triage: TriageConfig{
			Timezone:        "America/New_York",
			SystemPrompt:    DefaultSystemPrompt,
			Intents:         true,
			ToolTimeoutSecs: 30,
			WaitTimes: map[string]string{
				"routine":   "2-3 hours",
				"urgent":    "30-45 minutes",
				"emergency": "Immediate attention",
			},
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the triage-router configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".triage-router"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// StoragePath returns the SQLite path, resolving the default.
func (c *Config) StoragePath() (string, error) {
	return c.resolve(c.Storage.Path, "records.db")
}

// TelemetryPath returns the stats file path, resolving the default.
func (c *Config) TelemetryPath() (string, error) {
	return c.resolve(c.Telemetry.Path, "stats.json")
}

func (c *Config) resolve(path, name string) (string, error) {
	if path != "" {
		return expandHome(path), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load builds the configuration: defaults, then the TOML file at path
// (the default path when empty; a missing default file is fine), then
// .env files, then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	loadDotEnv(filepath.Dir(path))
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys the file doesn't set keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// loadDotEnv reads .env from the working directory and from dir. Variables
// already set in the environment win.
func loadDotEnv(dir string) {
	for _, p := range []string{".env", filepath.Join(dir, ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg as TOML. The file is created 0600 since it may hold an
// API key.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# triage-router configuration file\n")
	buf.WriteString("# Generated by triage - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every setting and returns all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch strings.ToLower(c.Routing.Priority) {
	case "basic_first", "advanced_first":
	default:
		add("routing.priority", "invalid priority '%s', must be one of: basic_first, advanced_first", c.Routing.Priority)
	}
	if c.Routing.HistoryWindow < 1 || c.Routing.HistoryWindow > 50 {
		add("routing.history_window", "must be between 1 and 50, got %d", c.Routing.HistoryWindow)
	}
	if c.Routing.MaxNested < 0 || c.Routing.MaxNested > 10 {
		add("routing.max_nested", "must be between 0 and 10, got %d", c.Routing.MaxNested)
	}
	for _, k := range append(append([]string{}, c.Routing.BasicKeywords...), c.Routing.AdvancedKeywords...) {
		if strings.TrimSpace(k) == "" {
			add("routing.keywords", "keywords must not be blank")
			break
		}
	}

	if err := validateURL(c.Local.OllamaURL); err != nil {
		add("local.ollama_url", "%v", err)
	}
	if c.Local.OllamaModel == "" {
		add("local.ollama_model", "must not be empty")
	}
	if c.Local.TimeoutSecs <= 0 {
		add("local.timeout_secs", "must be positive, got %d", c.Local.TimeoutSecs)
	}

	if err := validateURL(c.Cloud.BaseURL); err != nil {
		add("cloud.base_url", "%v", err)
	}
	if c.Cloud.TimeoutSecs <= 0 {
		add("cloud.timeout_secs", "must be positive, got %d", c.Cloud.TimeoutSecs)
	}
	if c.Cloud.MaxRetries < 0 || c.Cloud.MaxRetries > 10 {
		add("cloud.max_retries", "must be between 0 and 10, got %d", c.Cloud.MaxRetries)
	}
	if c.Cloud.Temperature < 0 || c.Cloud.Temperature > 2 {
		add("cloud.temperature", "must be between 0 and 2, got %g", c.Cloud.Temperature)
	}

	if _, err := time.LoadLocation(c.Triage.Timezone); err != nil {
		add("triage.timezone", "unknown time zone '%s'", c.Triage.Timezone)
	}
	if c.Triage.ToolTimeoutSecs <= 0 {
		add("triage.tool_timeout_secs", "must be positive, got %d", c.Triage.ToolTimeoutSecs)
	}
	for _, level := range []string{"routine", "urgent", "emergency"} {
		if c.Triage.WaitTimes[level] == "" {
			add("triage.wait_times", "missing estimate for '%s'", level)
		}
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "memory", "sqlite":
	default:
		add("storage.driver", "invalid driver '%s', must be one of: memory, sqlite", c.Storage.Driver)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "logfmt":
	default:
		add("log.format", "invalid format '%s', must be one of: text, json, logfmt", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL '%s': %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got '%s'", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: '%s'", raw)
	}
	return nil
}

// SetDefaults fills zero values a partial file or environment left behind.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Routing.Priority == "" {
		c.Routing.Priority = d.Routing.Priority
	}
	if c.Routing.HistoryWindow == 0 {
		c.Routing.HistoryWindow = d.Routing.HistoryWindow
	}
	if len(c.Routing.BasicMarkers) == 0 {
		c.Routing.BasicMarkers = d.Routing.BasicMarkers
	}
	if c.Local.OllamaURL == "" {
		c.Local.OllamaURL = d.Local.OllamaURL
	}
	if c.Local.OllamaModel == "" {
		c.Local.OllamaModel = d.Local.OllamaModel
	}
	if c.Local.TimeoutSecs == 0 {
		c.Local.TimeoutSecs = d.Local.TimeoutSecs
	}
	if c.Cloud.BaseURL == "" {
		c.Cloud.BaseURL = d.Cloud.BaseURL
	}
	if c.Cloud.Model == "" {
		c.Cloud.Model = d.Cloud.Model
	}
	if c.Cloud.TimeoutSecs == 0 {
		c.Cloud.TimeoutSecs = d.Cloud.TimeoutSecs
	}
	if c.Triage.Timezone == "" {
		c.Triage.Timezone = d.Triage.Timezone
	}
	if c.Triage.SystemPrompt == "" {
		c.Triage.SystemPrompt = d.Triage.SystemPrompt
	}
	if c.Triage.ToolTimeoutSecs == 0 {
		c.Triage.ToolTimeoutSecs = d.Triage.ToolTimeoutSecs
	}
	if c.Triage.WaitTimes == nil {
		c.Triage.WaitTimes = map[string]string{}
	}
	for k, v := range d.Triage.WaitTimes {
		if c.Triage.WaitTimes[k] == "" {
			c.Triage.WaitTimes[k] = v
		}
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - GROQ_API_KEY: overrides cloud.api_key
//   - GROQ_MODEL: overrides cloud.model
//   - OLLAMA_MODEL: overrides local.ollama_model
//   - OLLAMA_URL: overrides local.ollama_url
//   - TRIAGE_CLOUD_URL: overrides cloud.base_url
//   - TRIAGE_PRIORITY: overrides routing.priority
//   - TRIAGE_FALLBACK: "0" or "false" disables the fallback classifier
//   - TRIAGE_TIMEZONE: overrides triage.timezone
//   - TRIAGE_STORAGE: overrides storage.driver
//   - TRIAGE_STORAGE_PATH: overrides storage.path
//   - TRIAGE_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	str("GROQ_API_KEY", &c.Cloud.APIKey)
	str("GROQ_MODEL", &c.Cloud.Model)
	str("OLLAMA_MODEL", &c.Local.OllamaModel)
	str("OLLAMA_URL", &c.Local.OllamaURL)
	str("TRIAGE_CLOUD_URL", &c.Cloud.BaseURL)
	str("TRIAGE_PRIORITY", &c.Routing.Priority)
	str("TRIAGE_TIMEZONE", &c.Triage.Timezone)
	str("TRIAGE_STORAGE", &c.Storage.Driver)
	str("TRIAGE_STORAGE_PATH", &c.Storage.Path)
	str("TRIAGE_LOG_LEVEL", &c.Log.Level)

	if v := os.Getenv("TRIAGE_FALLBACK"); v != "" {
		c.Routing.Fallback = parseBool(v)
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "routing.priority").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type; lists are comma separated.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
		if strings.EqualFold(tag, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strings.TrimSpace(strVal), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strings.TrimSpace(strVal), 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var list []string
				for _, item := range strings.Split(strVal, ",") {
					if item = strings.TrimSpace(item); item != "" {
						list = append(list, item)
					}
				}
				field.Set(reflect.ValueOf(list))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns every settable key in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		prefix := section.Tag.Get("toml")
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, prefix+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Routing.BasicKeywords = append([]string(nil), c.Routing.BasicKeywords...)
	clone.Routing.AdvancedKeywords = append([]string(nil), c.Routing.AdvancedKeywords...)
	clone.Routing.BasicMarkers = append([]string(nil), c.Routing.BasicMarkers...)
	if c.Triage.WaitTimes != nil {
		clone.Triage.WaitTimes = make(map[string]string, len(c.Triage.WaitTimes))
		for k, v := range c.Triage.WaitTimes {
			clone.Triage.WaitTimes[k] = v
		}
	}
	return &clone
}

// Location returns the configured time zone. Validate has already
// checked it loads; UTC covers a config built by hand.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Triage.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// String returns the config as JSON with the API key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Cloud.APIKey != "" {
		safe.Cloud.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
