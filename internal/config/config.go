// Package config loads the TOML configuration shared by the SDK bootstrap
// and the sandbox.
package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/acapella/kv_sdk_go/internal/httpx"
	"github.com/acapella/kv_sdk_go/internal/kvapi"
	"github.com/acapella/kv_sdk_go/pkg/kv"
)

const (
	defaultSandboxAddr = ":12000"
	defaultLogLevel    = "info"
)

// Duration is a time.Duration read from strings like "1.5s" or "250ms".
type Duration struct {
	time.Duration
}

// NewDuration wraps d.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.WithStack(err)
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the whole configuration file.
type Config struct {
	Client  ClientConfig  `toml:"client"`
	Sandbox SandboxConfig `toml:"sandbox"`

	// WarningMsgs collects non-fatal problems found while loading.
	WarningMsgs []string `toml:"-"`
}

// ClientConfig configures sessions created by the bootstrap.
type ClientConfig struct {
	Address   string      `toml:"address"`
	Prefix    string      `toml:"prefix"`
	Timeout   Duration    `toml:"timeout"`
	RateLimit float64     `toml:"rate-limit"`
	RateBurst int         `toml:"rate-burst"`
	Retry     RetryConfig `toml:"retry"`
	Quorum    kv.Quorum   `toml:"quorum"`
}

// RetryConfig mirrors kv.RetryPolicy.
type RetryConfig struct {
	MaxRetries int      `toml:"max-retries"`
	BaseDelay  Duration `toml:"base-delay"`
	MaxDelay   Duration `toml:"max-delay"`
	Jitter     float64  `toml:"jitter"`
}

// SandboxConfig configures the kv-sandbox command.
type SandboxConfig struct {
	Addr           string   `toml:"addr"`
	Seed           string   `toml:"seed"`
	Latency        Duration `toml:"latency"`
	Fail           string   `toml:"fail"`
	TransactionTTL Duration `toml:"tx-ttl"`
	WaitTimeout    Duration `toml:"wait-timeout"`
	LogLevel       string   `toml:"log-level"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	c := &Config{}
	c.Adjust(nil)
	return c
}

// Load reads path and applies defaults to whatever it leaves unset.
func Load(path string) (*Config, error) {
	c := &Config{}
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, errors.Wrapf(err, "config: load %s", path)
	}
	c.Adjust(&meta)
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config: %s", path)
	}
	return c, nil
}

// Parse decodes a configuration document held in memory.
func Parse(data string) (*Config, error) {
	c := &Config{}
	meta, err := toml.Decode(data, c)
	if err != nil {
		return nil, errors.Wrap(err, "config: parse")
	}
	c.Adjust(&meta)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Adjust fills in defaults. Keys present in the file but unknown to Config
// become warnings.
func (c *Config) Adjust(meta *toml.MetaData) {
	if meta != nil {
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			c.WarningMsgs = append(c.WarningMsgs, "config contains undefined items: "+strings.Join(keys, ", "))
		}
	}

	adjustString(&c.Client.Prefix, kvapi.DefaultPrefix)
	adjustDuration(&c.Client.Timeout, httpx.DefaultTimeout)
	if !isDefined(meta, "client", "quorum") {
		c.Client.Quorum = kv.DefaultQuorum
	}
	if !isDefined(meta, "client", "retry") {
		p := httpx.DefaultRetryPolicy
		c.Client.Retry = RetryConfig{
			MaxRetries: p.MaxRetries,
			BaseDelay:  NewDuration(p.BaseDelay),
			MaxDelay:   NewDuration(p.MaxDelay),
			Jitter:     p.Jitter,
		}
	}

	adjustString(&c.Sandbox.Addr, defaultSandboxAddr)
	adjustString(&c.Sandbox.LogLevel, defaultLogLevel)
}

// Validate rejects settings no component can honour.
func (c *Config) Validate() error {
	if err := c.Client.Quorum.Validate(); err != nil {
		return errors.Wrap(err, "client.quorum")
	}
	switch {
	case c.Client.Timeout.Duration < 0:
		return errors.New("client.timeout must not be negative")
	case c.Client.RateLimit < 0:
		return errors.New("client.rate-limit must not be negative")
	case c.Client.Retry.MaxRetries < 0:
		return errors.New("client.retry.max-retries must not be negative")
	case c.Client.Retry.Jitter < 0 || c.Client.Retry.Jitter > 1:
		return errors.New("client.retry.jitter must be within [0, 1]")
	case c.Sandbox.Latency.Duration < 0:
		return errors.New("sandbox.latency must not be negative")
	}
	return nil
}

// RetryPolicy converts the retry section.
func (c ClientConfig) RetryPolicy() kv.RetryPolicy {
	return kv.RetryPolicy{
		MaxRetries: c.Retry.MaxRetries,
		BaseDelay:  c.Retry.BaseDelay.Duration,
		MaxDelay:   c.Retry.MaxDelay.Duration,
		Jitter:     c.Retry.Jitter,
	}
}

// Options converts the client section into session options.
func (c ClientConfig) Options() []kv.Option {
	opts := []kv.Option{
		kv.WithAPIPrefix(c.Prefix),
		kv.WithTimeout(c.Timeout.Duration),
		kv.WithRetryPolicy(c.RetryPolicy()),
	}
	if c.RateLimit > 0 {
		opts = append(opts, kv.WithRateLimit(c.RateLimit, c.RateBurst))
	}
	return opts
}

func isDefined(meta *toml.MetaData, key ...string) bool {
	return meta != nil && meta.IsDefined(key...)
}

func adjustString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func adjustDuration(v *Duration, def time.Duration) {
	if v.Duration == 0 {
		v.Duration = def
	}
}
