// Package config loads PuffleBot settings from a JSON or YAML file, a .env
// file, and the environment, in that order of increasing precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	General GeneralConfig `json:"general" yaml:"general"`
	Twitter TwitterConfig `json:"twitter" yaml:"twitter"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Replies RepliesConfig `json:"replies" yaml:"replies"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel" yaml:"logLevel"`   // debug | info | warn | error
	LogFormat string `json:"logFormat" yaml:"logFormat"` // text | json
	LogFile   string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
}

// TwitterConfig holds the app and bot account credentials and API tuning.
type TwitterConfig struct {
	ConsumerKey       string `json:"consumerKey" yaml:"consumerKey"`
	ConsumerSecret    string `json:"consumerSecret" yaml:"consumerSecret"`
	AccessToken       string `json:"accessToken" yaml:"accessToken"`
	AccessTokenSecret string `json:"accessTokenSecret" yaml:"accessTokenSecret"`
	BotUserID         string `json:"botUserId" yaml:"botUserId"`
	APIURL            string `json:"apiUrl" yaml:"apiUrl"`
	UploadURL         string `json:"uploadUrl" yaml:"uploadUrl"`
	TimeoutMs         int    `json:"timeoutMs" yaml:"timeoutMs"`
	SegmentSize       int    `json:"segmentSize" yaml:"segmentSize"`
	MaxMediaBytes     int64  `json:"maxMediaBytes" yaml:"maxMediaBytes"`
}

// ServerConfig is the gateway HTTP listener.
type ServerConfig struct {
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	WebhookPath string `json:"webhookPath" yaml:"webhookPath"`
}

type RepliesConfig struct {
	RulesPath     string  `json:"rulesPath,omitempty" yaml:"rulesPath,omitempty"` // file or directory of YAML rules
	Builtins      bool    `json:"builtins" yaml:"builtins"`
	Concurrency   int     `json:"concurrency" yaml:"concurrency"`
	RateBurst     int     `json:"rateBurst" yaml:"rateBurst"`
	RatePerMinute float64 `json:"ratePerMinute" yaml:"ratePerMinute"`
}

type StoreConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"dbPath" yaml:"dbPath"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfigDir returns ~/.pufflebot.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pufflebot"
	}
	return filepath.Join(home, ".pufflebot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// LoadDotEnv loads the given .env files (default ./.env) into the process
// environment. Variables already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the config file at path, expands ${VAR} references, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	return finish(cfg)
}

// FromEnv builds a config from defaults and the environment alone.
func FromEnv() (*Config, error) {
	return finish(Defaults())
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.Replies.RulesPath = ExpandPath(cfg.Replies.RulesPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the variable's value and ${VAR:-default}
// with default when VAR is unset or empty. Unset references without a
// default are left as they are.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[2]
		hasDefault := strings.Contains(match, ":-")

		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// Save writes cfg to path as YAML or indented JSON, by extension.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	// Credentials live here.
	return os.WriteFile(path, data, 0o600)
}

// Validate reports every invalid value at once.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}

	if cfg.Twitter.TimeoutMs < 1 {
		errs = append(errs, "twitter.timeoutMs must be >= 1")
	}
	if cfg.Twitter.SegmentSize < 1 || cfg.Twitter.SegmentSize > 5<<20 {
		errs = append(errs, "twitter.segmentSize must be between 1 and 5242880")
	}
	if cfg.Twitter.MaxMediaBytes < 1 {
		errs = append(errs, "twitter.maxMediaBytes must be >= 1")
	}
	for name, u := range map[string]string{"twitter.apiUrl": cfg.Twitter.APIURL, "twitter.uploadUrl": cfg.Twitter.UploadURL} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			errs = append(errs, name+" must be an http(s) URL")
		}
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.WebhookPath, "/") {
		errs = append(errs, "server.webhookPath must start with /")
	}

	if cfg.Replies.Concurrency < 1 || cfg.Replies.Concurrency > 100 {
		errs = append(errs, "replies.concurrency must be between 1 and 100")
	}
	if cfg.Replies.RateBurst < 1 {
		errs = append(errs, "replies.rateBurst must be >= 1")
	}
	if cfg.Replies.RatePerMinute <= 0 {
		errs = append(errs, "replies.ratePerMinute must be > 0")
	}

	if cfg.Store.Enabled && cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required when the store is enabled")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MissingCredentials lists the Twitter credential paths that are empty.
func (c *Config) MissingCredentials() []string {
	var missing []string
	for path, v := range map[string]string{
		"twitter.consumerKey":       c.Twitter.ConsumerKey,
		"twitter.consumerSecret":    c.Twitter.ConsumerSecret,
		"twitter.accessToken":       c.Twitter.AccessToken,
		"twitter.accessTokenSecret": c.Twitter.AccessTokenSecret,
	} {
		if v == "" {
			missing = append(missing, path)
		}
	}
	sort.Strings(missing)
	return missing
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// ExpandPath resolves a leading ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
