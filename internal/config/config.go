package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StrategyBasic    = "basic"
	StrategyThorough = "thorough"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config models leadready.yml.
type Config struct {
	Validation struct {
		Strategy              string `yaml:"strategy" json:"strategy"`
		Lenient               bool   `yaml:"lenient" json:"lenient"`
		BrokenWebsiteBlocks   bool   `yaml:"broken_website_blocks" json:"broken_website_blocks"`
		MinBusinessNameLength int    `yaml:"min_business_name_length" json:"min_business_name_length"`
	} `yaml:"validation" json:"validation"`
	Domains struct {
		FreeMail   []string `yaml:"free_mail" json:"free_mail"`
		Disposable []string `yaml:"disposable" json:"disposable"`
	} `yaml:"domains" json:"domains"`
	DNS struct {
		Nameservers []string      `yaml:"nameservers" json:"nameservers,omitempty"`
		Timeout     time.Duration `yaml:"timeout" json:"timeout"`
		CacheTTL    time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	} `yaml:"dns" json:"dns"`
	SMTP struct {
		Timeout       time.Duration `yaml:"timeout" json:"timeout"`
		MaxMXHosts    int           `yaml:"max_mx_hosts" json:"max_mx_hosts"`
		HeloDomain    string        `yaml:"helo_domain" json:"helo_domain,omitempty"`
		RatePerSecond float64       `yaml:"rate_per_second" json:"rate_per_second"`
	} `yaml:"smtp" json:"smtp"`
	HTTP struct {
		Timeout   time.Duration `yaml:"timeout" json:"timeout"`
		UserAgent string        `yaml:"user_agent" json:"user_agent"`
		CacheTTL  time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	} `yaml:"http" json:"http"`
	Search struct {
		Enabled       bool          `yaml:"enabled" json:"enabled"`
		Endpoint      string        `yaml:"endpoint" json:"endpoint"`
		RatePerSecond float64       `yaml:"rate_per_second" json:"rate_per_second"`
		Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	} `yaml:"search" json:"search"`
	Cache struct {
		Backend       string `yaml:"backend" json:"backend"`
		RedisAddr     string `yaml:"redis_addr" json:"redis_addr,omitempty"`
		RedisPassword string `yaml:"redis_password" json:"-"`
		RedisDB       int    `yaml:"redis_db" json:"redis_db"`
		Prefix        string `yaml:"prefix" json:"prefix"`
	} `yaml:"cache" json:"cache"`
	Duplicates struct {
		BlockConfirmed bool `yaml:"block_confirmed" json:"block_confirmed"`
	} `yaml:"duplicates" json:"duplicates"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

// WebhookConfig forwards recorded events to an HTTP endpoint.
type WebhookConfig struct {
	URL     string        `yaml:"url" json:"url"`
	Events  []string      `yaml:"events" json:"events,omitempty"`
	Secret  string        `yaml:"secret" json:"-"`
	Timeout time.Duration `yaml:"timeout" json:"timeout,omitempty"`
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled" json:"enabled,omitempty"`
}

// Active reports whether the hook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return (w.Enabled == nil || *w.Enabled) && strings.TrimSpace(w.URL) != ""
}

// Load reads and validates config from workspace, falling back to the
// defaults when no leadready.yml exists.
func Load(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Validation.Strategy {
	case StrategyBasic, StrategyThorough:
	default:
		return fmt.Errorf("config.validation.strategy must be %q or %q, got %q", StrategyBasic, StrategyThorough, c.Validation.Strategy)
	}
	if c.Validation.MinBusinessNameLength < 1 {
		return fmt.Errorf("config.validation.min_business_name_length must be positive")
	}
	for _, list := range [][]string{c.Domains.FreeMail, c.Domains.Disposable} {
		for _, d := range list {
			if d == "" {
				return fmt.Errorf("config.domains contains an empty domain")
			}
		}
	}
	if c.DNS.Timeout <= 0 || c.SMTP.Timeout <= 0 || c.HTTP.Timeout <= 0 {
		return fmt.Errorf("dns, smtp and http timeouts must be positive")
	}
	if c.DNS.CacheTTL < 0 || c.HTTP.CacheTTL < 0 {
		return fmt.Errorf("cache ttls must not be negative")
	}
	if c.SMTP.MaxMXHosts < 1 {
		return fmt.Errorf("config.smtp.max_mx_hosts must be positive")
	}
	if c.SMTP.RatePerSecond < 0 || c.Search.RatePerSecond < 0 {
		return fmt.Errorf("rate_per_second must not be negative")
	}
	if c.Search.Enabled && c.Search.Endpoint == "" {
		return fmt.Errorf("config.search.endpoint is required when search is enabled")
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("config.cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config.cache.backend must be %q or %q, got %q", CacheMemory, CacheRedis, c.Cache.Backend)
	}
	for i, hook := range c.Webhooks {
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.webhooks[%d].url must be an absolute http(s) url", i)
		}
		if hook.Timeout < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "leadready.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
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

const defaultTemplate = `validation:
  # basic: MX records only. thorough: also probe business mailboxes over SMTP.
  strategy: thorough
  # accept addresses whose mailbox could be neither confirmed nor denied
  lenient: true
  # a supplied website that does not answer makes the whole contact invalid
  broken_website_blocks: true
  min_business_name_length: 3

domains:
  free_mail:
    - gmail.com
    - googlemail.com
    - yahoo.com
    - ymail.com
    - outlook.com
    - hotmail.com
    - live.com
    - msn.com
    - aol.com
    - icloud.com
    - me.com
    - mac.com
    - protonmail.com
    - proton.me
    - gmx.com
    - gmx.net
    - mail.com
    - zoho.com
    - yandex.com
    - yandex.ru
    - mail.ru
    - qq.com
    - 163.com
    - web.de
  disposable:
    - mailinator.com
    - guerrillamail.com
    - 10minutemail.com
    - tempmail.com
    - temp-mail.org
    - throwawaymail.com
    - yopmail.com
    - sharklasers.com
    - trashmail.com
    - getnada.com
    - dispostable.com
    - maildrop.cc

dns:
  nameservers: []
  timeout: 5s
  cache_ttl: 24h

smtp:
  timeout: 8s
  max_mx_hosts: 3
  # empty: HELO and MAIL FROM use the domain of the address being checked.
  helo_domain: ""
  rate_per_second: 2

http:
  timeout: 10s
  user_agent: "leadready-validator/1.0 (+https://leadready.dev/bot)"
  cache_ttl: 1h

search:
  enabled: true
  endpoint: https://html.duckduckgo.com/html/
  rate_per_second: 0.5
  timeout: 15s

cache:
  backend: memory
  redis_addr: ""
  redis_db: 0
  prefix: leadready

duplicates:
  # mark confirmed duplicates with status "duplicate" instead of leaving them ready
  block_confirmed: false

# event forwarding, e.g.
# webhooks:
#   - url: https://crm.example.com/hooks/leadready
#     events: [upload.validated]
#     secret: change-me
#     timeout: 5s
webhooks: []
`
