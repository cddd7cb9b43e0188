package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the bootstrap configuration for the collector process,
// loaded once at startup from YAML. Device, point,
// alarm-rule and virtual-point configuration is never here — it always
// comes from ConfigStore.
type Config struct {
	ConfigStore struct {
		DSN string `yaml:"dsn"`
		TenantID string `yaml:"tenant_id"`
	} `yaml:"config_store"`

	Snapshot struct {
		Path string `yaml:"path"`
	} `yaml:"snapshot"`

	Redis struct {
		Addr string `yaml:"addr"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		DB int `yaml:"db"`
		DialTimeoutMs int `yaml:"dial_timeout_ms"`
		ReadTimeoutMs int `yaml:"read_timeout_ms"`
		WriteTimeoutMs int `yaml:"write_timeout_ms"`
		MaxRetries int `yaml:"max_retries"`
		LatestTTLSecs int `yaml:"latest_ttl_secs"`
	} `yaml:"redis"`

	Pipeline struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"pipeline"`

	Processing struct {
		PoolSize int `yaml:"pool_size"`
	} `yaml:"processing"`

	VirtualPoints struct {
		Shards int `yaml:"shards"`
		CallTimeoutMs int `yaml:"call_timeout_ms"`
	} `yaml:"virtual_points"`

	Alarms struct {
		ScriptTimeoutMs int `yaml:"script_timeout_ms"`
	} `yaml:"alarms"`

	Reconcile struct {
		IntervalSecs int `yaml:"interval_secs"`
	} `yaml:"reconcile"`

	Log struct {
		Level string `yaml:"level"` // debug, info, warn, error
		Format string `yaml:"format"` // text, json
	} `yaml:"log"`
}

// loadConfig reads and defaults Config from path. Device/point/rule
// configuration is deliberately absent; it always comes from ConfigStore.
func loadConfig(path string) (Config, error) {
	var c Config
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	return c, nil
}

func applyDefaults(c *Config) {
	if c.ConfigStore.DSN == "" {
		c.ConfigStore.DSN = "collector.db"
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = "collector-snapshot.cbor"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Redis.DialTimeoutMs == 0 {
		c.Redis.DialTimeoutMs = 5000
	}
	if c.Redis.ReadTimeoutMs == 0 {
		c.Redis.ReadTimeoutMs = 3000
	}
	if c.Redis.WriteTimeoutMs == 0 {
		c.Redis.WriteTimeoutMs = 3000
	}
	if c.Redis.MaxRetries == 0 {
		c.Redis.MaxRetries = 3
	}
	if c.Redis.LatestTTLSecs == 0 {
		c.Redis.LatestTTLSecs = 300
	}
	if c.Pipeline.Capacity == 0 {
		c.Pipeline.Capacity = 10_000
	}
	if c.Processing.PoolSize == 0 {
		c.Processing.PoolSize = 2
	}
	if c.VirtualPoints.Shards == 0 {
		c.VirtualPoints.Shards = 4
	}
	if c.VirtualPoints.CallTimeoutMs == 0 {
		c.VirtualPoints.CallTimeoutMs = 5000
	}
	if c.Alarms.ScriptTimeoutMs == 0 {
		c.Alarms.ScriptTimeoutMs = 5000
	}
	if c.Reconcile.IntervalSecs == 0 {
		c.Reconcile.IntervalSecs = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c Config) redisDialTimeout() time.Duration { return time.Duration(c.Redis.DialTimeoutMs) * time.Millisecond }
func (c Config) redisReadTimeout() time.Duration { return time.Duration(c.Redis.ReadTimeoutMs) * time.Millisecond }
func (c Config) redisWriteTimeout() time.Duration { return time.Duration(c.Redis.WriteTimeoutMs) * time.Millisecond }
func (c Config) latestTTL() time.Duration { return time.Duration(c.Redis.LatestTTLSecs) * time.Second }
func (c Config) callTimeout() time.Duration {
	return time.Duration(c.VirtualPoints.CallTimeoutMs) * time.Millisecond
}
func (c Config) scriptTimeout() time.Duration {
	return time.Duration(c.Alarms.ScriptTimeoutMs) * time.Millisecond
}
func (c Config) reconcileInterval() time.Duration {
	return time.Duration(c.Reconcile.IntervalSecs) * time.Second
}
