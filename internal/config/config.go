package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"escrowline/internal/domain"
)

const fileName = "escrowline.yml"

// Config models escrowline.yml.
type Config struct {
	Platform struct {
		FeeBps         int      `yaml:"fee_bps"`
		Currencies     []string `yaml:"currencies"`
		AdminRecipient string   `yaml:"admin_recipient"`
	} `yaml:"platform"`
	Engine struct {
		MaxTxAttempts int `yaml:"max_tx_attempts"`
	} `yaml:"engine"`
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Notifications struct {
		NATS struct {
			URL           string `yaml:"url"`
			SubjectPrefix string `yaml:"subject_prefix"`
		} `yaml:"nats"`
	} `yaml:"notifications"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Webhooks    []WebhookConfig   `yaml:"webhooks"`
	Log         LogConfig         `yaml:"log"`
}

type AttachmentsConfig struct {
	Driver   string `yaml:"driver"`
	Dir      string `yaml:"dir"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Prefix   string `yaml:"prefix"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Platform.FeeBps < 0 || c.Platform.FeeBps >= 10000 {
		return fmt.Errorf("config.platform.fee_bps must be in [0, 10000)")
	}
	for _, cur := range c.Platform.Currencies {
		if len(cur) != 3 || strings.ToUpper(cur) != cur {
			return fmt.Errorf("config.platform.currencies has invalid code %q", cur)
		}
	}
	if c.Engine.MaxTxAttempts < 1 {
		return fmt.Errorf("config.engine.max_tx_attempts must be at least 1")
	}
	if c.Server.RateLimit.RPS < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("config.server.rate_limit must not be negative")
	}
	switch c.Attachments.Driver {
	case "", "none":
	case "file":
		// an empty dir resolves to the workspace state dir on open
	case "s3":
		if c.Attachments.Bucket == "" {
			return fmt.Errorf("config.attachments.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("config.attachments.driver must be file, s3 or none")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("config.log.level %q is not a known level", c.Log.Level)
	}
	return nil
}

// FeeBps returns the configured platform fee, falling back to the default cut.
func (c *Config) FeeBps() int {
	if c == nil {
		return domain.DefaultFeeBps
	}
	return c.Platform.FeeBps
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace. A missing file yields the defaults.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `platform:
  fee_bps: 1000
  currencies: [USD, EUR, XAF, XOF, NGN, GHS, KES]
  admin_recipient: admin

engine:
  max_tx_attempts: 5

server:
  addr: 127.0.0.1:8080
  base_path: /v1
  rate_limit:
    rps: 20
    burst: 40

notifications:
  nats:
    url: ""
    subject_prefix: escrowline.notifications

attachments:
  driver: none

log:
  level: info
  max_size_mb: 50
  max_backups: 3
`
