package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Relay struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		SettleWindow    time.Duration `yaml:"settle_window"`
	} `yaml:"relay"`

	Peer struct {
		SessionID   string `yaml:"session_id"`
		Role        string `yaml:"role"`
		RelayURL    string `yaml:"relay_url"`
		AnalyzerURL string `yaml:"analyzer_url"`

		Reconnect struct {
			MaxAttempts int           `yaml:"max_attempts"`
			BaseDelay   time.Duration `yaml:"base_delay"`
		} `yaml:"reconnect"`

		Dispatch struct {
			ThrottleInterval time.Duration `yaml:"throttle_interval"`
		} `yaml:"dispatch"`
	} `yaml:"peer"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		CandidateFailureLimit int `yaml:"candidate_failure_limit"`
	} `yaml:"webrtc"`

	Metrics struct {
		WindowCapacity    int           `yaml:"window_capacity"`
		BandwidthInterval time.Duration `yaml:"bandwidth_interval"`
	} `yaml:"metrics"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	RateLimiting struct {
		Enabled              bool    `yaml:"enabled"`
		ConnectionsPerMinute float64 `yaml:"connections_per_minute"`
		Burst                int     `yaml:"burst"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Relay.Address == "" {
		return fmt.Errorf("relay.address must not be empty")
	}
	if c.Relay.PingInterval <= 0 {
		return fmt.Errorf("relay.ping_interval must be > 0")
	}
	if c.Relay.PongTimeout <= 0 {
		return fmt.Errorf("relay.pong_timeout must be > 0")
	}
	if c.Relay.SettleWindow < 0 {
		return fmt.Errorf("relay.settle_window must be >= 0")
	}

	if c.Peer.Role != "" && c.Peer.Role != "producer" && c.Peer.Role != "consumer" {
		return fmt.Errorf("peer.role must be producer or consumer")
	}
	if c.Peer.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("peer.reconnect.max_attempts must be >= 0")
	}
	if c.Peer.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("peer.reconnect.base_delay must be > 0")
	}
	if c.Peer.Dispatch.ThrottleInterval <= 0 {
		return fmt.Errorf("peer.dispatch.throttle_interval must be > 0")
	}

	if c.WebRTC.CandidateFailureLimit <= 0 {
		return fmt.Errorf("webrtc.candidate_failure_limit must be > 0")
	}

	if c.Metrics.WindowCapacity <= 0 {
		return fmt.Errorf("metrics.window_capacity must be > 0")
	}
	if c.Metrics.BandwidthInterval <= 0 {
		return fmt.Errorf("metrics.bandwidth_interval must be > 0")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in [0,1]")
		}
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file falls back to defaults.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Relay.Address = ":8081"
	cfg.Relay.ReadTimeout = 60 * time.Second
	cfg.Relay.WriteTimeout = 10 * time.Second
	cfg.Relay.PingInterval = 30 * time.Second
	cfg.Relay.PongTimeout = 60 * time.Second
	cfg.Relay.ShutdownTimeout = 30 * time.Second
	cfg.Relay.SettleWindow = 50 * time.Millisecond

	cfg.Peer.RelayURL = "ws://localhost:8081/ws"
	cfg.Peer.AnalyzerURL = "http://localhost:8500/analyze"
	cfg.Peer.Reconnect.MaxAttempts = 5
	cfg.Peer.Reconnect.BaseDelay = 2 * time.Second
	cfg.Peer.Dispatch.ThrottleInterval = 125 * time.Millisecond

	cfg.WebRTC.CandidateFailureLimit = 3

	cfg.Metrics.WindowCapacity = 100
	cfg.Metrics.BandwidthInterval = time.Second

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "peerlens"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.ConnectionsPerMinute = 60
	cfg.RateLimiting.Burst = 10

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PEERLENS_RELAY_ADDRESS"); v != "" {
		c.Relay.Address = v
	}
	if v := os.Getenv("PEERLENS_RELAY_URL"); v != "" {
		c.Peer.RelayURL = v
	}
	if v := os.Getenv("PEERLENS_ANALYZER_URL"); v != "" {
		c.Peer.AnalyzerURL = v
	}
	if v := os.Getenv("PEERLENS_SESSION_ID"); v != "" {
		c.Peer.SessionID = v
	}
	if v := os.Getenv("PEERLENS_ROLE"); v != "" {
		c.Peer.Role = v
	}
	if v := os.Getenv("PEERLENS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PEERLENS_REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("PEERLENS_TRACING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = b
		}
	}
}
