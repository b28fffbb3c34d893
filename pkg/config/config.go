package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/goliatone/go-config/cfgx"
)

// Config captures module-level configuration knobs. Feature packages
// (server, client, snapshot cache) pull from these nested structs.
type Config struct {
	Server Server `mapstructure:"server" json:"server"`
	Client Client `mapstructure:"client" json:"client"`
	Cache  Cache  `mapstructure:"cache" json:"cache"`
}

// Server configures the websocket endpoint and the auth handshake.
type Server struct {
	Addr          string        `mapstructure:"addr" json:"addr"`
	PublishAddr   string        `mapstructure:"publish_addr" json:"publish_addr"`
	TokenTTL      time.Duration `mapstructure:"token_ttl" json:"token_ttl"`
	TokenSweep    time.Duration `mapstructure:"token_sweep" json:"token_sweep"`
	HandshakeWait time.Duration `mapstructure:"handshake_wait" json:"handshake_wait"`
}

// Client configures the socket manager and the notification de-duplicator.
type Client struct {
	URL            string        `mapstructure:"url" json:"url"`
	TokenURL       string        `mapstructure:"token_url" json:"token_url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" json:"reconnect_delay"`
	DedupWindow    time.Duration `mapstructure:"dedup_window" json:"dedup_window"`
	DedupMaxAge    time.Duration `mapstructure:"dedup_max_age" json:"dedup_max_age"`
	NoticeDisplay  time.Duration `mapstructure:"notice_display" json:"notice_display"`
}

// Cache configures the tiered snapshot store.
type Cache struct {
	DurableDSN   string        `mapstructure:"durable_dsn" json:"durable_dsn"`
	StoreVersion int           `mapstructure:"store_version" json:"store_version"`
	InitTimeout  time.Duration `mapstructure:"init_timeout" json:"init_timeout"`
	SyncEvery    time.Duration `mapstructure:"sync_every" json:"sync_every"`
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		Server: Server{
			Addr:          ":8080",
			PublishAddr:   "127.0.0.1:8081",
			TokenTTL:      30 * time.Second,
			TokenSweep:    time.Minute,
			HandshakeWait: 10 * time.Second,
		},
		Client: Client{
			URL:            "ws://localhost:8080/ws",
			TokenURL:       "http://localhost:8080/api/auth/session-token",
			ReconnectDelay: 3 * time.Second,
			DedupWindow:    2 * time.Second,
			DedupMaxAge:    5 * time.Second,
			NoticeDisplay:  3 * time.Second,
		},
		Cache: Cache{
			DurableDSN:   "file:realtime.db",
			StoreVersion: 1,
			InitTimeout:  3 * time.Second,
			SyncEvery:    5 * time.Second,
		},
	}
}

// Validate ensures required fields are present and sane.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.TokenTTL <= 0 {
		return fmt.Errorf("server.token_ttl must be > 0")
	}
	if c.Client.ReconnectDelay <= 0 {
		return fmt.Errorf("client.reconnect_delay must be > 0")
	}
	if c.Client.DedupMaxAge < c.Client.DedupWindow {
		return fmt.Errorf("client.dedup_max_age must be >= client.dedup_window")
	}
	if c.Cache.InitTimeout <= 0 {
		return fmt.Errorf("cache.init_timeout must be > 0")
	}
	if c.Cache.SyncEvery <= 0 {
		return fmt.Errorf("cache.sync_every must be > 0")
	}
	return nil
}

// Load decodes arbitrary input (struct, map, cfg struct) using cfgx helpers.
// While cfgx.Build still returns zero values, we fallback to a lightweight
// decoder to keep smoke tests meaningful. Once cfgx is fully implemented we
// can drop the fallback.
func Load(input any, opts ...LoadOption) (Config, error) {
	settings := loadOptions{}
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := cfgx.Build(input, settings.buildOpts...)
	if err != nil {
		return Config{}, err
	}

	if isZero(cfg) {
		if err := decodeFallback(input, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg = cfg.withDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadOption lets callers amend cfgx build options.
type LoadOption func(*loadOptions)

type loadOptions struct {
	buildOpts []cfgx.Option[Config]
}

// WithBuildOptions forwards cfgx options (duration hooks, preprocessors, etc.).
func WithBuildOptions(opts ...cfgx.Option[Config]) LoadOption {
	return func(lo *loadOptions) {
		lo.buildOpts = append(lo.buildOpts, opts...)
	}
}

func (c Config) withDefaults() Config {
	defaults := Defaults()

	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.PublishAddr == "" {
		c.Server.PublishAddr = defaults.Server.PublishAddr
	}
	if c.Server.TokenTTL == 0 {
		c.Server.TokenTTL = defaults.Server.TokenTTL
	}
	if c.Server.TokenSweep == 0 {
		c.Server.TokenSweep = defaults.Server.TokenSweep
	}
	if c.Server.HandshakeWait == 0 {
		c.Server.HandshakeWait = defaults.Server.HandshakeWait
	}
	if c.Client.URL == "" {
		c.Client.URL = defaults.Client.URL
	}
	if c.Client.TokenURL == "" {
		c.Client.TokenURL = defaults.Client.TokenURL
	}
	if c.Client.ReconnectDelay == 0 {
		c.Client.ReconnectDelay = defaults.Client.ReconnectDelay
	}
	if c.Client.DedupWindow == 0 {
		c.Client.DedupWindow = defaults.Client.DedupWindow
	}
	if c.Client.DedupMaxAge == 0 {
		c.Client.DedupMaxAge = defaults.Client.DedupMaxAge
	}
	if c.Client.NoticeDisplay == 0 {
		c.Client.NoticeDisplay = defaults.Client.NoticeDisplay
	}
	if c.Cache.DurableDSN == "" {
		c.Cache.DurableDSN = defaults.Cache.DurableDSN
	}
	if c.Cache.StoreVersion == 0 {
		c.Cache.StoreVersion = defaults.Cache.StoreVersion
	}
	if c.Cache.InitTimeout == 0 {
		c.Cache.InitTimeout = defaults.Cache.InitTimeout
	}
	if c.Cache.SyncEvery == 0 {
		c.Cache.SyncEvery = defaults.Cache.SyncEvery
	}
	return c
}

func isZero(cfg Config) bool {
	return reflect.DeepEqual(cfg, Config{})
}

func decodeFallback(input any, cfg *Config) error {
	switch v := input.(type) {
	case nil:
		return nil
	case Config:
		*cfg = v
		return nil
	case *Config:
		if v != nil {
			*cfg = *v
		}
		return nil
	case map[string]any:
		return decodeMap(v, cfg)
	default:
		return fmt.Errorf("unsupported config input type: %T", input)
	}
}

func decodeMap(input map[string]any, cfg *Config) error {
	if input == nil {
		return nil
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, cfg)
}
