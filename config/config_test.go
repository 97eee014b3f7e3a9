package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "frictl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	require := require.New(t)

	path := writeConfig(t, `
controller:
  host: 10.0.0.5
  reply_timeout: 250ms
  reconnect_attempts: 3
link:
  remote_port: 30201
  send_period_ms: 4
control:
  mode: joint-impedance
  command_mode: torque
  stiffness: [1000, 1000, 800, 800, 500, 300, 100]
  damping: [0.7, 0.7, 0.7, 0.7, 0.7, 0.7, 0.7]
datagram:
  read_timeout: 1s
log:
  level: debug
metrics:
  addr: ""
`)

	cfg, err := Load(path)
	require.NoError(err)

	require.Equal("10.0.0.5", cfg.Controller.Host)
	require.Equal(30000, cfg.Controller.Port, "absent values keep their default")
	require.Equal(250*time.Millisecond, cfg.Controller.ReplyTimeout)
	require.Equal(3, cfg.Controller.ReconnectAttempts)
	require.Equal(LinkConfig{RemotePort: 30201, SendPeriodMs: 4, ReceiveMultiplier: 1}, cfg.Link)
	require.Equal("joint-impedance", cfg.Control.Mode)
	require.Equal("torque", cfg.Control.CommandMode)
	require.Len(cfg.Control.Stiffness, 7)
	require.Equal(time.Second, cfg.Datagram.ReadTimeout)
	require.Equal(1024, cfg.Datagram.BufferSize)
	require.Equal("debug", cfg.Log.Level)
	require.Empty(cfg.Metrics.Addr)
}

func TestLoad_Errors(t *testing.T) {
	require := require.New(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "controller: [not, a, map]"))
	require.Error(err)

	_, err = Load(writeConfig(t, "controller:\n  port: 70000\n"))
	require.ErrorIs(err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"empty host", func(c *Config) { c.Controller.Host = "" }, "controller.host"},
		{"zero connect timeout", func(c *Config) { c.Controller.ConnectTimeout = 0 }, "controller.connect_timeout"},
		{"negative reconnect attempts", func(c *Config) { c.Controller.ReconnectAttempts = -1 }, "controller.reconnect_attempts"},
		{"bad remote port", func(c *Config) { c.Link.RemotePort = 0 }, "link.remote_port"},
		{"bad send period", func(c *Config) { c.Link.SendPeriodMs = 0 }, "link.send_period_ms"},
		{"unknown control mode", func(c *Config) { c.Control.Mode = "cartesian" }, "control.mode"},
		{"unknown command mode", func(c *Config) { c.Control.CommandMode = "velocity" }, "control.command_mode"},
		{"impedance without parameters", func(c *Config) { c.Control.Mode = "joint-impedance" }, "control:"},
		{"small buffer", func(c *Config) { c.Datagram.BufferSize = 8 }, "datagram.buffer_size"},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Controller.Host = ""
	cfg.Link.ReceiveMultiplier = 0

	err := cfg.Validate()
	require.ErrorContains(t, err, "controller.host")
	require.ErrorContains(t, err, "link.receive_multiplier")
}
