// Package config loads the YAML configuration of the frictl driver process.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/arloliu/go-fri/fri"
	"github.com/arloliu/go-fri/logger"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates that a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the driver configuration.
type Config struct {
	Controller ControllerConfig `yaml:"controller" json:"controller"`
	Link       LinkConfig       `yaml:"link" json:"link"`
	Control    ControlConfig    `yaml:"control" json:"control"`
	Datagram   DatagramConfig   `yaml:"datagram" json:"datagram"`
	Log        LogConfig        `yaml:"log" json:"log"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
}

// ControllerConfig addresses the controller's command endpoint.
type ControllerConfig struct {
	Host              string        `yaml:"host" json:"host"`
	Port              int           `yaml:"port" json:"port"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ReplyTimeout      time.Duration `yaml:"reply_timeout" json:"reply_timeout"`
	ReconnectAttempts int           `yaml:"reconnect_attempts" json:"reconnect_attempts"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
}

// LinkConfig is sent to the controller with SetConfig.
type LinkConfig struct {
	RemotePort        int `yaml:"remote_port" json:"remote_port"`
	SendPeriodMs      int `yaml:"send_period_ms" json:"send_period_ms"`
	ReceiveMultiplier int `yaml:"receive_multiplier" json:"receive_multiplier"`
}

// ControlConfig selects the control and command modes negotiated at bring-up.
// Stiffness and Damping are only used by the joint-impedance control mode.
type ControlConfig struct {
	Mode        string    `yaml:"mode" json:"mode"`
	CommandMode string    `yaml:"command_mode" json:"command_mode"`
	Stiffness   []float64 `yaml:"stiffness" json:"stiffness"`
	Damping     []float64 `yaml:"damping" json:"damping"`
}

// DatagramConfig configures the local datagram server.
type DatagramConfig struct {
	Port        int           `yaml:"port" json:"port"`
	BufferSize  int           `yaml:"buffer_size" json:"buffer_size"`
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`
}

// LogConfig configures the package default logger.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Default returns the configuration used for every value absent from the file.
func Default() *Config {
	return &Config{
		Controller: ControllerConfig{
			Host:              "172.31.1.147",
			Port:              30000,
			ConnectTimeout:    3 * time.Second,
			ReplyTimeout:      5 * time.Second,
			ReconnectAttempts: 1,
			ReconnectDelay:    100 * time.Millisecond,
		},
		Link: LinkConfig{
			RemotePort:        30200,
			SendPeriodMs:      10,
			ReceiveMultiplier: 1,
		},
		Control: ControlConfig{
			Mode:        fri.PositionControlMode.String(),
			CommandMode: fri.PositionCommandMode.String(),
		},
		Datagram: DatagramConfig{
			Port:       30200,
			BufferSize: 1024,
		},
		Log: LogConfig{Level: "info"},
		Metrics: MetricsConfig{
			Addr: ":9100",
		},
	}
}

// Load reads the configuration from the YAML file at path over the defaults and validates it.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks every value, all problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Controller.Host == "" {
		invalid("controller.host is empty")
	}
	if !validPort(c.Controller.Port) {
		invalid("controller.port %d out of range", c.Controller.Port)
	}
	if c.Controller.ConnectTimeout <= 0 {
		invalid("controller.connect_timeout must be positive")
	}
	if c.Controller.ReplyTimeout < 0 {
		invalid("controller.reply_timeout must not be negative")
	}
	if c.Controller.ReconnectAttempts < 0 {
		invalid("controller.reconnect_attempts must not be negative")
	}

	if !validPort(c.Link.RemotePort) {
		invalid("link.remote_port %d out of range", c.Link.RemotePort)
	}
	if c.Link.SendPeriodMs <= 0 {
		invalid("link.send_period_ms must be positive")
	}
	if c.Link.ReceiveMultiplier <= 0 {
		invalid("link.receive_multiplier must be positive")
	}

	mode, err := fri.ParseControlMode(c.Control.Mode)
	if err != nil {
		invalid("control.mode: %v", err)
	}
	if _, err := fri.ParseCommandMode(c.Control.CommandMode); err != nil {
		invalid("control.command_mode: %v", err)
	}
	if mode == fri.JointImpedanceControlMode {
		if _, err := fri.ImpedancePayload(c.Control.Stiffness, c.Control.Damping); err != nil {
			invalid("control: %v", err)
		}
	}

	if c.Datagram.Port < 0 || c.Datagram.Port > 65535 {
		invalid("datagram.port %d out of range", c.Datagram.Port)
	}
	if c.Datagram.BufferSize < 16 || c.Datagram.BufferSize > 65536 {
		invalid("datagram.buffer_size %d out of range [16, 65536]", c.Datagram.BufferSize)
	}
	if c.Datagram.ReadTimeout < 0 {
		invalid("datagram.read_timeout must not be negative")
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		invalid("log.level: %v", err)
	}

	return errors.Join(errs...)
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}
