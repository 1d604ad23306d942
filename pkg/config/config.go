package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	env "github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultConfigFileName = "augment2api.toml"

	// EnvPrefix is prepended to every environment override, e.g. AUGMENT2API_LISTEN_ADDR.
	EnvPrefix = "AUGMENT2API_"

	StoreBackendBolt   = "bolt"
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"

	DefaultAuthorizeURL = "https://auth.augmentcode.com/authorize"
	DefaultClientID     = "v"

	DefaultSystemPrompt   = "Your are claude3.7, All replies cannot create, modify, or delete files, and must provide content directly!"
	DefaultPrefix         = "You are AI assistant,help me to solve problems!"
	DefaultUserGuidelines = "使用中文回答，不要调用任何工具，联网搜索类问题请根据你的已有知识回答"
	DefaultMode           = "AGENT"
)

var DefaultUserAgents = []string{
	"augment.intellij/0.160.0 (Mac OS X; aarch64; 15.2) GoLand/2024.3.5",
	"augment.intellij/0.160.0 (Mac OS X; aarch64; 15.2) WebStorm/2024.3.5",
	"augment.intellij/0.160.0 (Mac OS X; aarch64; 15.2) PyCharm/2024.3.5",
}

type StoreConfig struct {
	Backend       string `toml:"backend" env:"BACKEND"`
	Path          string `toml:"path,omitempty" env:"PATH"`
	RedisURL      string `toml:"redis_url,omitempty" env:"REDIS_URL"`
	SweepSchedule string `toml:"sweep_schedule,omitempty" env:"SWEEP_SCHEDULE"`
}

type OAuthConfig struct {
	ClientID        string `toml:"client_id" env:"CLIENT_ID"`
	AuthorizeURL    string `toml:"authorize_url" env:"AUTHORIZE_URL"`
	StateTTLSeconds int    `toml:"state_ttl_seconds" env:"STATE_TTL_SECONDS"`
}

type UpstreamConfig struct {
	TimeoutSeconds int      `toml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	APIVersion     string   `toml:"api_version" env:"API_VERSION"`
	UserAgents     []string `toml:"user_agents" env:"USER_AGENTS" envSeparator:"|"`
	Mode           string   `toml:"mode" env:"MODE"`
	SystemPrompt   string   `toml:"system_prompt" env:"SYSTEM_PROMPT"`
	Prefix         string   `toml:"prefix" env:"PREFIX"`
	UserGuidelines string   `toml:"user_guidelines" env:"USER_GUIDELINES"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" env:"ENABLED"`
	Path    string `toml:"path,omitempty" env:"PATH"`
}

type TLSConfig struct {
	Enabled  bool   `toml:"enabled" env:"ENABLED"`
	Domain   string `toml:"domain" env:"DOMAIN"`
	Email    string `toml:"email" env:"EMAIL"`
	CacheDir string `toml:"cache_dir" env:"CACHE_DIR"`
}

type ServerConfig struct {
	ListenAddr      string         `toml:"listen_addr" env:"LISTEN_ADDR"`
	LogLevel        string         `toml:"log_level" env:"LOG_LEVEL"`
	StaticDir       string         `toml:"static_dir" env:"STATIC_DIR"`
	IncomingAPIKeys []string       `toml:"incoming_api_keys" env:"INCOMING_API_KEYS" envSeparator:","`
	Store           StoreConfig    `toml:"store" envPrefix:"STORE_"`
	OAuth           OAuthConfig    `toml:"oauth" envPrefix:"OAUTH_"`
	Upstream        UpstreamConfig `toml:"upstream" envPrefix:"UPSTREAM_"`
	Metrics         MetricsConfig  `toml:"metrics" envPrefix:"METRICS_"`
	TLS             TLSConfig      `toml:"tls" envPrefix:"TLS_"`
}

func DefaultServerConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigFileName
	}
	return filepath.Join(home, ".config", "augment2api", defaultConfigFileName)
}

func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "augment2api.db"
	}
	return filepath.Join(home, ".local", "share", "augment2api", "augment2api.db")
}

func DefaultTLSCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tls-autocert"
	}
	return filepath.Join(home, ".cache", "augment2api", "tls-autocert")
}

func NewDefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:      ":4242",
		LogLevel:        "info",
		StaticDir:       "",
		IncomingAPIKeys: []string{},
		Store: StoreConfig{
			Backend:       StoreBackendBolt,
			Path:          DefaultStorePath(),
			SweepSchedule: "@every 1m",
		},
		OAuth: OAuthConfig{
			ClientID:        DefaultClientID,
			AuthorizeURL:    DefaultAuthorizeURL,
			StateTTLSeconds: 60,
		},
		Upstream: UpstreamConfig{
			TimeoutSeconds: 600,
			APIVersion:     "2",
			UserAgents:     append([]string(nil), DefaultUserAgents...),
			Mode:           DefaultMode,
			SystemPrompt:   DefaultSystemPrompt,
			Prefix:         DefaultPrefix,
			UserGuidelines: DefaultUserGuidelines,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		TLS: TLSConfig{
			Enabled:  false,
			CacheDir: DefaultTLSCacheDir(),
		},
	}
}

// LoadServerConfig reads the TOML file at path and then applies environment
// overrides. A missing file is reported with os.ErrNotExist in the chain.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := NewDefaultServerConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	return finish(cfg)
}

// LoadServerConfigOrDefault behaves like LoadServerConfig but starts from the
// defaults when no file exists yet.
func LoadServerConfigOrDefault(path string) (*ServerConfig, bool, error) {
	cfg, err := LoadServerConfig(path)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	cfg, err = finish(NewDefaultServerConfig())
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

func finish(cfg *ServerConfig) (*ServerConfig, error) {
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays AUGMENT2API_* environment variables onto cfg.
func ApplyEnv(cfg *ServerConfig) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return writeAtomic(path, v)
}

func writeAtomic(path string, v any) error {
	b, err := marshalTOML(v)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func marshalTOML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetArraysMultiline(true)
	enc.SetIndentSymbol("  ")
	enc.SetIndentTables(true)
	enc.SetTablesInline(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

func (c *ServerConfig) Normalize() {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = ":4242"
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.StaticDir = strings.TrimSpace(c.StaticDir)
	keys := make([]string, 0, len(c.IncomingAPIKeys))
	seen := map[string]struct{}{}
	for _, k := range c.IncomingAPIKeys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	c.IncomingAPIKeys = keys

	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = StoreBackendBolt
	}
	c.Store.Path = strings.TrimSpace(c.Store.Path)
	if c.Store.Path == "" && c.Store.Backend == StoreBackendBolt {
		c.Store.Path = DefaultStorePath()
	}
	c.Store.RedisURL = strings.TrimSpace(c.Store.RedisURL)
	c.Store.SweepSchedule = strings.TrimSpace(c.Store.SweepSchedule)

	c.OAuth.ClientID = strings.TrimSpace(c.OAuth.ClientID)
	if c.OAuth.ClientID == "" {
		c.OAuth.ClientID = DefaultClientID
	}
	c.OAuth.AuthorizeURL = strings.TrimSpace(c.OAuth.AuthorizeURL)
	if c.OAuth.AuthorizeURL == "" {
		c.OAuth.AuthorizeURL = DefaultAuthorizeURL
	}
	if c.OAuth.StateTTLSeconds <= 0 {
		c.OAuth.StateTTLSeconds = 60
	}

	if c.Upstream.TimeoutSeconds < 0 {
		c.Upstream.TimeoutSeconds = 0
	}
	c.Upstream.APIVersion = strings.TrimSpace(c.Upstream.APIVersion)
	agents := make([]string, 0, len(c.Upstream.UserAgents))
	for _, ua := range c.Upstream.UserAgents {
		if ua = strings.TrimSpace(ua); ua != "" {
			agents = append(agents, ua)
		}
	}
	if len(agents) == 0 {
		agents = append(agents, DefaultUserAgents...)
	}
	c.Upstream.UserAgents = agents
	c.Upstream.Mode = strings.TrimSpace(c.Upstream.Mode)
	if c.Upstream.Mode == "" {
		c.Upstream.Mode = DefaultMode
	}

	c.Metrics.Path = strings.TrimSpace(c.Metrics.Path)
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		c.Metrics.Path = "/" + c.Metrics.Path
	}

	c.TLS.Domain = strings.TrimSpace(c.TLS.Domain)
	c.TLS.Email = strings.TrimSpace(c.TLS.Email)
	c.TLS.CacheDir = strings.TrimSpace(c.TLS.CacheDir)
	if c.TLS.CacheDir == "" {
		c.TLS.CacheDir = DefaultTLSCacheDir()
	}
}

func (c *ServerConfig) Validate() error {
	switch c.Store.Backend {
	case StoreBackendBolt:
		if c.Store.Path == "" {
			return errors.New("store.path is required when store.backend=bolt")
		}
	case StoreBackendRedis:
		if c.Store.RedisURL == "" {
			return errors.New("store.redis_url is required when store.backend=redis")
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("store.backend must be one of %s, %s, %s", StoreBackendBolt, StoreBackendMemory, StoreBackendRedis)
	}
	u, err := url.Parse(c.OAuth.AuthorizeURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("oauth.authorize_url %q must be an absolute http(s) url", c.OAuth.AuthorizeURL)
	}
	if c.OAuth.StateTTLSeconds > 3600 {
		return errors.New("oauth.state_ttl_seconds must be <= 3600")
	}
	if c.TLS.Enabled && c.TLS.Domain == "" {
		return errors.New("tls.domain is required when tls.enabled=true")
	}
	return nil
}
