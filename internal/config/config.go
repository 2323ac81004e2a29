/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package config holds the user configuration: a YAML file in the user
// scope, overridden by GCP_* environment variables. The remote-control token
// never touches the file; it lives in the OS keyring.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	applog "gochatpresenter/internal/log"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// TimingConfig holds animation and pacing delays in milliseconds.
type TimingConfig struct {
	TypingSpeedMs      int `yaml:"typing_speed_ms"`
	TypingVariationMs  int `yaml:"typing_variation_ms"`
	PunctuationPauseMs int `yaml:"punctuation_pause_ms"`
	ThinkingDelayMs    int `yaml:"ai_thinking_delay_ms"`
	ButtonFadeInMs     int `yaml:"button_fade_in_ms"`
	ChoiceAdvanceMs    int `yaml:"choice_advance_ms"`
	CompletionGraceMs  int `yaml:"completion_grace_ms"`
}

type UXConfig struct {
	TypingAnimation bool `yaml:"typing_animation"`
	SkipTyping      bool `yaml:"skip_typing"`
	AutoSave        bool `yaml:"auto_save"`
}

type AccessibilityConfig struct {
	ReducedMotion bool `yaml:"reduced_motion"`
}

// StorageConfig selects where playback state is saved.
type StorageConfig struct {
	Backend string `yaml:"backend"` // file | sqlite | postgres | memory
	Key     string `yaml:"key"`
	Version string `yaml:"version"`
	Dir     string `yaml:"dir"`
	DSN     string `yaml:"dsn"`
}

type PresenterConfig struct {
	EstimatedDurationMin int  `yaml:"estimated_duration_min"`
	ShowNotes            bool `yaml:"show_notes"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

type GeneralConfig struct {
	Language       string `yaml:"language"`
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Source  bool   `yaml:"source"`
	File    string `yaml:"file"`
	Journal bool   `yaml:"journal"`
}

// AppConfig is the whole configuration file.
//
// config_version: bump when the structure changes incompatibly.
type AppConfig struct {
	ConfigVersion int                 `yaml:"config_version"`
	General       GeneralConfig       `yaml:"general"`
	Timing        TimingConfig        `yaml:"timing"`
	UX            UXConfig            `yaml:"ux"`
	Accessibility AccessibilityConfig `yaml:"accessibility"`
	Storage       StorageConfig       `yaml:"storage"`
	Presenter     PresenterConfig     `yaml:"presenter"`
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{Language: "en"},
		Timing: TimingConfig{
			TypingSpeedMs:      30,
			TypingVariationMs:  20,
			PunctuationPauseMs: 300,
			ThinkingDelayMs:    1500,
			ButtonFadeInMs:     300,
			ChoiceAdvanceMs:    500,
			CompletionGraceMs:  10,
		},
		UX:        UXConfig{TypingAnimation: true, SkipTyping: true, AutoSave: true},
		Storage:   StorageConfig{Backend: "file", Key: "gochatpresenter-state", Version: "1.0.0"},
		Presenter: PresenterConfig{EstimatedDurationMin: 15, ShowNotes: true},
		Server:    ServerConfig{Addr: ":8080"},
		Logging:   LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath         = "GCP_CONFIG"
	EnvRemoteToken        = "GCP_REMOTE_TOKEN"
	EnvTypingSpeedMs      = "GCP_TYPING_SPEED_MS"
	EnvTypingVariationMs  = "GCP_TYPING_VARIATION_MS"
	EnvPunctuationPauseMs = "GCP_PUNCTUATION_PAUSE_MS"
	EnvThinkingDelayMs    = "GCP_THINKING_DELAY_MS"
	EnvTypingAnimation    = "GCP_TYPING_ANIMATION"
	EnvReducedMotion      = "GCP_REDUCED_MOTION"
	EnvAutoSave           = "GCP_AUTO_SAVE"
	EnvStorageBackend     = "GCP_STORAGE_BACKEND"
	EnvStorageDir         = "GCP_STORAGE_DIR"
	EnvStorageDSN         = "GCP_STORAGE_DSN"
	EnvServerAddr         = "GCP_SERVER_ADDR"
	EnvLanguage           = "GCP_LANG"
	EnvTelemetryOptIn     = "GCP_TELEMETRY_OPT_IN"
	EnvLogLevel           = "GCP_LOG_LEVEL"
	EnvLogFormat          = "GCP_LOG_FORMAT"
	EnvLogSource          = "GCP_LOG_SOURCE"
	EnvLogFile            = "GCP_LOG_FILE"
	EnvLogJournal         = "GCP_LOG_JOURNAL"
)

type envOverride struct {
	key   string
	env   string
	apply func(cfg *AppConfig, v string)
}

func intField(f func(*AppConfig) *int) func(*AppConfig, string) {
	return func(cfg *AppConfig, v string) {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*f(cfg) = n
		}
	}
}

func boolField(f func(*AppConfig) *bool) func(*AppConfig, string) {
	return func(cfg *AppConfig, v string) { *f(cfg) = parseBool(v) }
}

func stringField(f func(*AppConfig) *string, lower bool) func(*AppConfig, string) {
	return func(cfg *AppConfig, v string) {
		if lower {
			v = strings.ToLower(v)
		}
		*f(cfg) = v
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

var envOverrides = []envOverride{
	{"timing.typing_speed_ms", EnvTypingSpeedMs, intField(func(c *AppConfig) *int { return &c.Timing.TypingSpeedMs })},
	{"timing.typing_variation_ms", EnvTypingVariationMs, intField(func(c *AppConfig) *int { return &c.Timing.TypingVariationMs })},
	{"timing.punctuation_pause_ms", EnvPunctuationPauseMs, intField(func(c *AppConfig) *int { return &c.Timing.PunctuationPauseMs })},
	{"timing.ai_thinking_delay_ms", EnvThinkingDelayMs, intField(func(c *AppConfig) *int { return &c.Timing.ThinkingDelayMs })},
	{"ux.typing_animation", EnvTypingAnimation, boolField(func(c *AppConfig) *bool { return &c.UX.TypingAnimation })},
	{"ux.auto_save", EnvAutoSave, boolField(func(c *AppConfig) *bool { return &c.UX.AutoSave })},
	{"accessibility.reduced_motion", EnvReducedMotion, boolField(func(c *AppConfig) *bool { return &c.Accessibility.ReducedMotion })},
	{"storage.backend", EnvStorageBackend, stringField(func(c *AppConfig) *string { return &c.Storage.Backend }, true)},
	{"storage.dir", EnvStorageDir, stringField(func(c *AppConfig) *string { return &c.Storage.Dir }, false)},
	{"storage.dsn", EnvStorageDSN, stringField(func(c *AppConfig) *string { return &c.Storage.DSN }, false)},
	{"server.addr", EnvServerAddr, stringField(func(c *AppConfig) *string { return &c.Server.Addr }, false)},
	{"general.language", EnvLanguage, stringField(func(c *AppConfig) *string { return &c.General.Language }, true)},
	{"general.telemetry_opt_in", EnvTelemetryOptIn, boolField(func(c *AppConfig) *bool { return &c.General.TelemetryOptIn })},
	{"logging.level", EnvLogLevel, stringField(func(c *AppConfig) *string { return &c.Logging.Level }, true)},
	{"logging.format", EnvLogFormat, stringField(func(c *AppConfig) *string { return &c.Logging.Format }, true)},
	{"logging.source", EnvLogSource, boolField(func(c *AppConfig) *bool { return &c.Logging.Source })},
	{"logging.file", EnvLogFile, stringField(func(c *AppConfig) *string { return &c.Logging.File }, false)},
	{"logging.journal", EnvLogJournal, boolField(func(c *AppConfig) *bool { return &c.Logging.Journal })},
}

// Service/keys for OS keyring.
const (
	keyringService = "GoChatPresenter"
	keyringToken   = "remote_token"
)

// TokenStore abstracts the keyring so tests can stub it.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

var tokenStore TokenStore = osKeyring{}

// ConfigPath returns the per-user config file path, or GCP_CONFIG if set.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	base, err := userDir("config")
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.yaml"), nil
}

// DataDir returns the per-user directory for saved playback state.
func DataDir() (string, error) { return userDir("data") }

func userDir(kind string) (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		env := "AppData"
		if kind == "data" {
			env = "LocalAppData"
		}
		base = os.Getenv(env)
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "GoChatPresenter")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "GoChatPresenter")
	default:
		xdg, fallback := "XDG_CONFIG_HOME", ".config"
		if kind == "data" {
			xdg, fallback = "XDG_DATA_HOME", filepath.Join(".local", "share")
		}
		if v := os.Getenv(xdg); v != "" {
			base = filepath.Join(v, "gochatpresenter")
		} else if home := os.Getenv("HOME"); home != "" {
			base = filepath.Join(home, fallback, "gochatpresenter")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve user directory")
	}
	return base, nil
}

// Load reads the config file (if present) over the defaults, applies
// environment overrides and returns the remote-control token separately.
func Load() (AppConfig, string, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, loadToken(), err
	}
	cfg, err := LoadFile(path)
	if err != nil {
		applog.WithComponent("config").Warn("ignoring unreadable config file", slog.String("path", path), slog.Any("err", err))
		cfg = Defaults()
	}
	applyEnvOverrides(&cfg)
	return cfg, loadToken(), nil
}

// LoadFile decodes path over the defaults. A missing file yields defaults.
func LoadFile(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Defaults(), fmt.Errorf("parse %s: %w", path, err)
	}
	normalize(&cfg)
	return cfg, nil
}

func loadToken() string {
	if v := strings.TrimSpace(os.Getenv(EnvRemoteToken)); v != "" {
		return v
	}
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return tok
}

// Save writes the config YAML and stores a non-empty token in the keyring.
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		return SetToken(token)
	}
	return nil
}

// SetToken stores the remote-control token in the keyring.
func SetToken(token string) error { return tokenStore.Set(keyringService, keyringToken, token) }

// ClearToken removes the remote-control token from the keyring.
func ClearToken() error {
	err := tokenStore.Delete(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// normalize trims and lower-cases enumerated values and restores defaults for
// values the file blanked out.
func normalize(cfg *AppConfig) {
	d := Defaults()
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	cfg.General.Language = strings.ToLower(strings.TrimSpace(cfg.General.Language))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = d.Storage.Backend
	}
	if cfg.Storage.Key == "" {
		cfg.Storage.Key = d.Storage.Key
	}
	if cfg.Storage.Version == "" {
		cfg.Storage.Version = d.Storage.Version
	}
	if cfg.General.Language == "" {
		cfg.General.Language = d.General.Language
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	for _, o := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			o.apply(cfg, v)
		}
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	for _, o := range envOverrides {
		if o.key == key && os.Getenv(o.env) != "" {
			return o.env, true
		}
	}
	return "", false
}

// Validate reports values that cannot work.
func (c AppConfig) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "file", "sqlite", "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of file, sqlite, postgres, memory", c.Storage.Backend))
	}
	t := c.Timing
	for name, v := range map[string]int{
		"typing_speed_ms":      t.TypingSpeedMs,
		"typing_variation_ms":  t.TypingVariationMs,
		"punctuation_pause_ms": t.PunctuationPauseMs,
		"ai_thinking_delay_ms": t.ThinkingDelayMs,
		"button_fade_in_ms":    t.ButtonFadeInMs,
		"choice_advance_ms":    t.ChoiceAdvanceMs,
		"completion_grace_ms":  t.CompletionGraceMs,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("timing.%s must not be negative", name))
		}
	}
	if c.Presenter.EstimatedDurationMin < 0 {
		errs = append(errs, errors.New("presenter.estimated_duration_min must not be negative"))
	}
	return errors.Join(errs...)
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (t TimingConfig) TypingSpeed() time.Duration      { return ms(t.TypingSpeedMs) }
func (t TimingConfig) TypingVariation() time.Duration  { return ms(t.TypingVariationMs) }
func (t TimingConfig) PunctuationPause() time.Duration { return ms(t.PunctuationPauseMs) }
func (t TimingConfig) ThinkingDelay() time.Duration    { return ms(t.ThinkingDelayMs) }
func (t TimingConfig) ButtonFadeIn() time.Duration     { return ms(t.ButtonFadeInMs) }
func (t TimingConfig) ChoiceAdvance() time.Duration    { return ms(t.ChoiceAdvanceMs) }
func (t TimingConfig) CompletionGrace() time.Duration  { return ms(t.CompletionGraceMs) }

// EstimatedDuration is the planned length of the talk.
func (p PresenterConfig) EstimatedDuration() time.Duration {
	return time.Duration(p.EstimatedDurationMin) * time.Minute
}

// Options converts the logging section for applog.Init.
func (l LoggingConfig) Options() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File, Journal: l.Journal}
}

// StorageDir returns the configured storage dir or the per-user data dir.
func (s StorageConfig) StorageDir() (string, error) {
	if strings.TrimSpace(s.Dir) != "" {
		return s.Dir, nil
	}
	return DataDir()
}
