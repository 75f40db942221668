// Package config handles configuration, the API key and the preprompt
// library for geminichat.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/renameio/v2"
	"github.com/spf13/viper"

	apperrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/models"
)

const (
	configFileName = "config.json"
	envPrefix      = "GEMINICHAT"
	// HomeEnv overrides the data directory
	HomeEnv = "GEMINICHAT_HOME"
)

// MarkdownConfig configures markdown rendering options
type MarkdownConfig struct {
	EnableEmoji      bool `json:"enable_emoji" mapstructure:"enable_emoji"`             // Convert :emoji: to unicode
	PreserveNewLines bool `json:"preserve_newlines" mapstructure:"preserve_newlines"`   // Preserve original line breaks
	TableWrap        bool `json:"table_wrap" mapstructure:"table_wrap"`                 // Enable word wrap in table cells
	InlineTableLinks bool `json:"inline_table_links" mapstructure:"inline_table_links"` // Render links inline in tables
}

// Config represents the user configuration
type Config struct {
	DarkMode        bool   `json:"dark_mode" mapstructure:"dark_mode"`
	MaxOutputTokens int    `json:"max_output_tokens" mapstructure:"max_output_tokens" validate:"gt=0"`
	Model           string `json:"model" mapstructure:"model" validate:"required"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel        string         `json:"log_level" mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	LogFile         string         `json:"log_file,omitempty" mapstructure:"log_file"`
	CopyToClipboard bool           `json:"copy_to_clipboard" mapstructure:"copy_to_clipboard"`
	Markdown        MarkdownConfig `json:"markdown" mapstructure:"markdown"`
}

// DefaultMarkdownConfig returns the default markdown configuration
func DefaultMarkdownConfig() MarkdownConfig {
	return MarkdownConfig{
		EnableEmoji:      true,
		PreserveNewLines: true,
		TableWrap:        true,
		InlineTableLinks: false,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		DarkMode:        false,
		MaxOutputTokens: models.DefaultMaxOutputTokens,
		Model:           models.DefaultModel.Name,
		LogLevel:        "info",
		CopyToClipboard: false,
		Markdown:        DefaultMarkdownConfig(),
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks the config field constraints
func (c Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	var msgs []string
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag()))
	}
	return apperrors.NewValidationError("config", strings.Join(msgs, "; "))
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".geminichat"), nil
}

// EnsureDir creates dir if it doesn't exist
func EnsureDir(dir string) error {
	// 0o700: the directory holds the API key and conversations
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// GetConfigPath returns the path to the config file in dir
func GetConfigPath(dir string) string {
	return filepath.Join(dir, configFileName)
}

// DefaultLogFile returns the log file path used when the config names none
func DefaultLogFile(dir string) string {
	return filepath.Join(dir, "geminichat.log")
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	def := DefaultConfig()

	v.SetDefault("dark_mode", def.DarkMode)
	v.SetDefault("max_output_tokens", def.MaxOutputTokens)
	v.SetDefault("model", def.Model)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_file", "")
	v.SetDefault("copy_to_clipboard", def.CopyToClipboard)
	v.SetDefault("markdown.enable_emoji", def.Markdown.EnableEmoji)
	v.SetDefault("markdown.preserve_newlines", def.Markdown.PreserveNewLines)
	v.SetDefault("markdown.table_wrap", def.Markdown.TableWrap)
	v.SetDefault("markdown.inline_table_links", def.Markdown.InlineTableLinks)

	v.SetConfigFile(GetConfigPath(dir))
	v.SetConfigType("json")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// LoadConfig loads the configuration from dir. Absent keys fall back to
// defaults. On a parse or validation failure the defaults are returned
// together with the error.
func LoadConfig(dir string) (Config, error) {
	v := newViper(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.LogFile == "" {
		cfg.LogFile = DefaultLogFile(dir)
	}

	if err := cfg.Validate(); err != nil {
		def := DefaultConfig()
		def.LogFile = DefaultLogFile(dir)
		return def, err
	}

	return cfg, nil
}

// SaveConfig saves the configuration to dir
func SaveConfig(dir string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := EnsureDir(dir); err != nil {
		return err
	}

	if cfg.LogFile == DefaultLogFile(dir) {
		cfg.LogFile = ""
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := renameio.WriteFile(GetConfigPath(dir), data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setters maps the user-settable keys to their parsers
var setters = map[string]func(*Config, string) error{
	"dark_mode": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("dark_mode must be true or false")
		}
		c.DarkMode = b
		return nil
	},
	"max_output_tokens": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return apperrors.NewValidationError("max_output_tokens", "must be a positive integer")
		}
		c.MaxOutputTokens = n
		return nil
	},
	"model": func(c *Config, v string) error {
		if strings.TrimSpace(v) == "" {
			return apperrors.NewValidationError("model", "must not be empty")
		}
		c.Model = models.ModelFromName(strings.TrimSpace(v)).Name
		return nil
	},
	"log_level": func(c *Config, v string) error {
		c.LogLevel = strings.ToLower(v)
		return nil
	},
	"log_file": func(c *Config, v string) error {
		c.LogFile = v
		return nil
	},
	"copy_to_clipboard": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("copy_to_clipboard must be true or false")
		}
		c.CopyToClipboard = b
		return nil
	},
}

// Keys returns the settable config keys, sorted
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set parses value and assigns it to key, then validates the result
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(Keys(), ", "))
	}

	next := *c
	if err := set(&next, strings.TrimSpace(value)); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// Get returns the string form of key
func (c Config) Get(key string) (string, error) {
	switch key {
	case "dark_mode":
		return strconv.FormatBool(c.DarkMode), nil
	case "max_output_tokens":
		return strconv.Itoa(c.MaxOutputTokens), nil
	case "model":
		return c.Model, nil
	case "log_level":
		return c.LogLevel, nil
	case "log_file":
		return c.LogFile, nil
	case "copy_to_clipboard":
		return strconv.FormatBool(c.CopyToClipboard), nil
	}
	return "", fmt.Errorf("unknown config key %q", key)
}

// AvailableModels returns a list of available model names
func AvailableModels() []string {
	all := models.AllModels()
	names := make([]string, len(all))
	for i, m := range all {
		names[i] = m.Name
	}
	return names
}
