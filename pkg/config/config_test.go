package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"peerlens/pkg/config"

	"github.com/stretchr/testify/assert"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoad_UsesDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := config.Load("non-existent-config.yaml")
	assert.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Relay.Address)
	assert.Equal(t, 50*time.Millisecond, cfg.Relay.SettleWindow)
	assert.Equal(t, 125*time.Millisecond, cfg.Peer.Dispatch.ThrottleInterval)
	assert.Equal(t, 5, cfg.Peer.Reconnect.MaxAttempts)
	assert.Equal(t, 3, cfg.WebRTC.CandidateFailureLimit)
	assert.Equal(t, 100, cfg.Metrics.WindowCapacity)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_LoadsFromYAMLAndAppliesEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
relay:
  address: ":9000"
  ping_interval: 5s
  pong_timeout: 10s
  settle_window: 80ms

peer:
  relay_url: "ws://relay.internal:9000/ws"
  reconnect:
    max_attempts: 3
    base_delay: 1s
  dispatch:
    throttle_interval: 200ms

metrics:
  window_capacity: 50
  bandwidth_interval: 2s

logging:
  level: "debug"
  format: "console"
`)

	t.Setenv("PEERLENS_RELAY_ADDRESS", ":7000")
	t.Setenv("PEERLENS_LOG_LEVEL", "warn")

	cfg, err := config.Load(path)
	assert.NoError(t, err)

	// YAML values
	assert.Equal(t, 5*time.Second, cfg.Relay.PingInterval)
	assert.Equal(t, 80*time.Millisecond, cfg.Relay.SettleWindow)
	assert.Equal(t, "ws://relay.internal:9000/ws", cfg.Peer.RelayURL)
	assert.Equal(t, 3, cfg.Peer.Reconnect.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Peer.Dispatch.ThrottleInterval)
	assert.Equal(t, 50, cfg.Metrics.WindowCapacity)
	assert.Equal(t, "console", cfg.Logging.Format)

	// Env overrides
	assert.Equal(t, ":7000", cfg.Relay.Address)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "bad role",
			yaml: "peer:\n  role: \"spectator\"\n",
		},
		{
			name: "negative settle window",
			yaml: "relay:\n  settle_window: -10ms\n",
		},
		{
			name: "zero throttle interval",
			yaml: "peer:\n  dispatch:\n    throttle_interval: 0s\n",
		},
		{
			name: "zero candidate failure limit",
			yaml: "webrtc:\n  candidate_failure_limit: 0\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.yaml)
			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.NoError(t, cfg.Validate())
}
