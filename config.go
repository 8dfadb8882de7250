package airbrake

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/roadrunner-server/errors"
)

const PluginName = "airbrake"

const (
	FormatJSON = "json"
	FormatXML  = "xml"
)

// Config represents the notifier configuration. It is read-only once a
// Notifier has been built from it.
type Config struct {
	// Environment name reported with every notice
	Environment string `mapstructure:"environment" envconfig:"environment"`
	AppVersion  string `mapstructure:"app_version" envconfig:"app_version"`

	ProjectID  string `mapstructure:"project_id" envconfig:"project_id"`
	ProjectKey string `mapstructure:"project_key" envconfig:"project_key"`

	// Endpoint host, DefaultHost when empty
	Host string `mapstructure:"host" envconfig:"host" validate:"omitempty,url"`

	// Outcome log file, resolved against the working directory when relative
	LogFile string `mapstructure:"log_file" envconfig:"log_file"`

	Proxy ProxyConfig `mapstructure:"proxy" envconfig:"proxy"`

	// Notices are not sent while Environment is one of these (case-insensitive)
	IgnoreEnvironments []string `mapstructure:"ignore_environments" envconfig:"ignore_environments"`

	// Parameter name patterns, case-insensitive regular expressions
	AllowList []string `mapstructure:"allow_list" envconfig:"allow_list"`
	BlockList []string `mapstructure:"block_list" envconfig:"block_list"`

	// Wire format: json (v3) or xml (legacy v2)
	Format string `mapstructure:"format" envconfig:"format" validate:"omitempty,oneof=json xml"`

	// Maximum number of concurrent deliveries
	MaxInFlight int `mapstructure:"max_in_flight" envconfig:"max_in_flight" validate:"gte=0"`

	Transport TransportConfig `mapstructure:"transport" envconfig:"transport"`
}

// ProxyConfig contains outbound proxy settings
type ProxyConfig struct {
	URI      string `mapstructure:"uri" envconfig:"uri" validate:"omitempty,url"`
	Username string `mapstructure:"username" envconfig:"username"`
	Password string `mapstructure:"password" envconfig:"password"`
}

// TransportConfig contains HTTP transport settings
type TransportConfig struct {
	// Request timeout, zero leaves timing to the caller's context
	Timeout time.Duration `mapstructure:"timeout" envconfig:"timeout"`
	// SSL verification
	SSLVerify *bool `mapstructure:"ssl_verify" envconfig:"ssl_verify"`
	// Enable gzip request compression
	Compression bool `mapstructure:"compression" envconfig:"compression"`

	Breaker BreakerConfig `mapstructure:"breaker" envconfig:"breaker"`
}

// BreakerConfig controls the optional circuit breaker around the transport
type BreakerConfig struct {
	Enabled bool `mapstructure:"enabled" envconfig:"enabled"`
	// Consecutive failures before the breaker opens
	MaxFailures uint32 `mapstructure:"max_failures" envconfig:"max_failures"`
	// Time the breaker stays open before probing again
	OpenTimeout time.Duration `mapstructure:"open_timeout" envconfig:"open_timeout"`
}

// InitDefaults initializes default configuration values
func (cfg *Config) InitDefaults() {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.MaxInFlight == 0 {
		cfg.MaxInFlight = 100
	}
	if cfg.Transport.SSLVerify == nil {
		verify := true
		cfg.Transport.SSLVerify = &verify
	}
	if cfg.Transport.Breaker.MaxFailures == 0 {
		cfg.Transport.Breaker.MaxFailures = 5
	}
	if cfg.Transport.Breaker.OpenTimeout == 0 {
		cfg.Transport.Breaker.OpenTimeout = 30 * time.Second
	}
}

// Validate validates the configuration. Project id and key are checked at
// notify time so a half-configured notifier can still be constructed.
func (cfg *Config) Validate() error {
	const op = errors.Op("airbrake_config_validate")

	if err := validator.New().Struct(cfg); err != nil {
		return errors.E(op, err)
	}
	if _, err := NewParameterFilter(cfg.BlockList, cfg.AllowList); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// EnvironmentIgnored reports whether Environment is in IgnoreEnvironments
func (cfg *Config) EnvironmentIgnored() bool {
	for _, env := range cfg.IgnoreEnvironments {
		if strings.EqualFold(strings.TrimSpace(env), cfg.Environment) {
			return true
		}
	}
	return false
}

func (cfg *Config) verifySSL() bool {
	return cfg.Transport.SSLVerify == nil || *cfg.Transport.SSLVerify
}

// LoadFromEnv reads AIRBRAKE_* variables, loading a .env file first when one
// exists. Variables already set in the process win over the file.
func LoadFromEnv() (*Config, error) {
	const op = errors.Op("airbrake_load_env")

	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process(PluginName, cfg); err != nil {
		return nil, errors.E(op, err)
	}

	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.E(op, err)
	}
	return cfg, nil
}

var (
	settingPrefixes    = []string{"airbrake.", "airbrake:", "airbrake_"}
	settingKeyReplacer = strings.NewReplacer("_", "", ".", "", "-", "")
)

// LoadSettings maps flat key/value settings (app settings, ini files, CLI
// flags) onto a Config. Keys match case-insensitively, an "Airbrake." style
// prefix is optional, and unknown keys are ignored. List values are comma
// separated.
func LoadSettings(settings map[string]string) (*Config, error) {
	const op = errors.Op("airbrake_load_settings")

	cfg := &Config{}
	for rawKey, value := range settings {
		key := strings.ToLower(strings.TrimSpace(rawKey))
		for _, prefix := range settingPrefixes {
			if strings.HasPrefix(key, prefix) {
				key = key[len(prefix):]
				break
			}
		}
		key = settingKeyReplacer.Replace(key)

		var err error
		switch key {
		case "environment", "environmentname":
			cfg.Environment = value
		case "appversion":
			cfg.AppVersion = value
		case "projectid":
			cfg.ProjectID = value
		case "projectkey", "apikey":
			cfg.ProjectKey = value
		case "host":
			cfg.Host = value
		case "logfile":
			cfg.LogFile = value
		case "proxyuri":
			cfg.Proxy.URI = value
		case "proxyusername":
			cfg.Proxy.Username = value
		case "proxypassword":
			cfg.Proxy.Password = value
		case "ignoreenvironments":
			cfg.IgnoreEnvironments = splitList(value)
		case "allowlist", "whitelistkeys":
			cfg.AllowList = splitList(value)
		case "blocklist", "blacklistkeys":
			cfg.BlockList = splitList(value)
		case "format":
			cfg.Format = strings.ToLower(strings.TrimSpace(value))
		case "maxinflight":
			cfg.MaxInFlight, err = strconv.Atoi(strings.TrimSpace(value))
		case "timeout":
			cfg.Transport.Timeout, err = time.ParseDuration(strings.TrimSpace(value))
		case "compression":
			cfg.Transport.Compression, err = strconv.ParseBool(strings.TrimSpace(value))
		case "sslverify":
			var verify bool
			verify, err = strconv.ParseBool(strings.TrimSpace(value))
			cfg.Transport.SSLVerify = &verify
		}
		if err != nil {
			return nil, errors.E(op, fmt.Errorf("setting %s: %w", rawKey, err))
		}
	}

	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.E(op, err)
	}
	return cfg, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
