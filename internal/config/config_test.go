// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"GROQ_API_KEY", "GROQ_MODEL", "OLLAMA_MODEL", "OLLAMA_URL", "TRIAGE_CLOUD_URL",
	"TRIAGE_PRIORITY", "TRIAGE_FALLBACK", "TRIAGE_TIMEZONE", "TRIAGE_STORAGE",
	"TRIAGE_STORAGE_PATH", "TRIAGE_LOG_LEVEL",
}

// isolate points HOME at a temp dir and unsets every override variable.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, name := range envVars {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Routing.BasicKeywords, cfg.Routing.BasicKeywords)
	assert.Equal(t, "llama3.2:3b", cfg.Local.OllamaModel)
	assert.Equal(t, "mixtral-8x7b-32768", cfg.Cloud.Model)
	assert.True(t, cfg.Routing.Fallback)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
[routing]
priority = "advanced_first"
basic_keywords = ["flu shot"]
fallback = false
max_nested = 0

[triage.wait_times]
routine = "about an hour"

[log]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "advanced_first", cfg.Routing.Priority)
	assert.Equal(t, []string{"flu shot"}, cfg.Routing.BasicKeywords)
	assert.Equal(t, Default().Routing.AdvancedKeywords, cfg.Routing.AdvancedKeywords)
	assert.False(t, cfg.Routing.Fallback)
	assert.Zero(t, cfg.Routing.MaxNested)
	assert.Equal(t, "about an hour", cfg.Triage.WaitTimes["routine"])
	assert.Equal(t, "30-45 minutes", cfg.Triage.WaitTimes["urgent"])
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[routing]\nprioriti = \"basic_first\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routing.prioriti")
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("GROQ_MODEL", "llama-3.1-70b")
	t.Setenv("OLLAMA_URL", "http://gpu-box:11434")
	t.Setenv("TRIAGE_FALLBACK", "false")
	t.Setenv("TRIAGE_STORAGE", "sqlite")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gsk_test", cfg.Cloud.APIKey)
	assert.Equal(t, "llama-3.1-70b", cfg.Cloud.Model)
	assert.Equal(t, "http://gpu-box:11434", cfg.Local.OllamaURL)
	assert.False(t, cfg.Routing.Fallback)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestDotEnvInConfigDir(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".triage-router", ".env"), "GROQ_MODEL=from-dotenv\n")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Cloud.Model)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Routing.Priority = "random"
	cfg.Routing.HistoryWindow = 0
	cfg.Local.OllamaURL = "ftp://x"
	cfg.Triage.Timezone = "Mars/Olympus"
	cfg.Storage.Driver = "postgres"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)

	var errs ValidateErrors
	require.True(t, errors.As(err, &errs))
	fields := make([]string, len(errs))
	for i, e := range errs {
		fields[i] = e.Field
	}
	assert.ElementsMatch(t, []string{
		"routing.priority", "routing.history_window", "local.ollama_url",
		"triage.timezone", "storage.driver", "log.level",
	}, fields)
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("routing.priority")
	require.NoError(t, err)
	assert.Equal(t, "basic_first", v)

	require.NoError(t, cfg.Set("routing.max_nested", "5"))
	assert.Equal(t, 5, cfg.Routing.MaxNested)

	require.NoError(t, cfg.Set("routing.fallback", "no"))
	assert.False(t, cfg.Routing.Fallback)

	require.NoError(t, cfg.Set("routing.basic_keywords", "flu shot, refill ,"))
	assert.Equal(t, []string{"flu shot", "refill"}, cfg.Routing.BasicKeywords)

	require.NoError(t, cfg.Set("cloud.temperature", "0.7"))
	assert.InDelta(t, 0.7, cfg.Cloud.Temperature, 1e-9)

	_, err = cfg.Get("routing.nope")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("routing.priority.x", "a"))
	assert.Error(t, cfg.Set("local.timeout_secs", "soon"))
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "routing.priority")
	assert.Contains(t, keys, "cloud.api_key")
	assert.Contains(t, keys, "storage.driver")
	for _, k := range keys {
		_, err := Default().Get(k)
		assert.NoError(t, err, k)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := Default()
	cfg.Routing.Priority = "advanced_first"
	cfg.Cloud.APIKey = "secret"

	require.NoError(t, Save(cfg, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "advanced_first", loaded.Routing.Priority)
	assert.Equal(t, "secret", loaded.Cloud.APIKey)
}

func TestStringRedactsKey(t *testing.T) {
	cfg := Default()
	cfg.Cloud.APIKey = "gsk_live"
	s := cfg.String()
	assert.NotContains(t, s, "gsk_live")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "gsk_live", cfg.Cloud.APIKey)
}

func TestClone(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Routing.BasicKeywords[0] = "changed"
	clone.Triage.WaitTimes["routine"] = "changed"
	assert.NotEqual(t, "changed", cfg.Routing.BasicKeywords[0])
	assert.NotEqual(t, "changed", cfg.Triage.WaitTimes["routine"])
}

func TestPaths(t *testing.T) {
	home := isolate(t)
	cfg := Default()

	p, err := cfg.StoragePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".triage-router", "records.db"), p)

	cfg.Telemetry.Path = "~/stats/s.json"
	p, err = cfg.TelemetryPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "stats", "s.json"), p)
}

func TestWatchReloads(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[routing]\npriority = \"basic_first\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var latest atomic.Pointer[Config]
	require.NoError(t, Watch(ctx, path, 20*time.Millisecond, func(cfg *Config, err error) {
		if err == nil {
			latest.Store(cfg)
		}
	}))

	writeFile(t, path, "[routing]\npriority = \"advanced_first\"\n")

	require.Eventually(t, func() bool {
		cfg := latest.Load()
		return cfg != nil && cfg.Routing.Priority == "advanced_first"
	}, 3*time.Second, 20*time.Millisecond)
}
