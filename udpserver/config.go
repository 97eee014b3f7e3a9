package udpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/arloliu/go-fri/logger"
)

// ListenFunc opens the datagram socket bound to port.
type ListenFunc func(ctx context.Context, port int) (net.PacketConn, error)

// ListenUDP is the default ListenFunc, it binds port on all local addresses.
func ListenUDP(ctx context.Context, port int) (net.PacketConn, error) {
	var lc net.ListenConfig
	return lc.ListenPacket(ctx, "udp", net.JoinHostPort("", strconv.Itoa(port)))
}

// ServerConfig represents the configuration parameters of a datagram server.
type ServerConfig struct {
	// bufferSize is the size of the fixed receive buffer, longer datagrams are truncated.
	// It should be between 16 and 65536 bytes.
	// Defaults to 1024 bytes.
	bufferSize int

	// readTimeout is the per-read deadline, zero disables it. An expired deadline is
	// reported as a receive error and the server reads again.
	// Defaults to 0.
	readTimeout time.Duration

	listen ListenFunc
	logger logger.Logger
}

func newServerConfig(opts ...ServerOption) (*ServerConfig, error) {
	cfg := &ServerConfig{
		bufferSize: 1024,
		listen:     ListenUDP,
		logger:     logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// ServerOption represents a functional option for configuring a datagram server.
type ServerOption interface {
	apply(*ServerConfig) error
}

type serverOptFunc struct {
	name      string
	applyFunc func(*ServerConfig) error
}

func (o *serverOptFunc) apply(cfg *ServerConfig) error {
	if err := o.applyFunc(cfg); err != nil {
		return fmt.Errorf("%s: %w", o.name, err)
	}

	return nil
}

func newServerOptFunc(name string, f func(*ServerConfig) error) *serverOptFunc {
	return &serverOptFunc{name: name, applyFunc: f}
}

// WithBufferSize sets the receive buffer size.
func WithBufferSize(val int) ServerOption {
	return newServerOptFunc("WithBufferSize", func(cfg *ServerConfig) error {
		if val < 16 || val > 65536 {
			return fmt.Errorf("%d out of range [16, 65536]", val)
		}
		cfg.bufferSize = val

		return nil
	})
}

// WithReadTimeout sets a per-read deadline so a silent controller gets reported.
func WithReadTimeout(val time.Duration) ServerOption {
	return newServerOptFunc("WithReadTimeout", func(cfg *ServerConfig) error {
		if val < 0 {
			return fmt.Errorf("negative timeout %v", val)
		}
		cfg.readTimeout = val

		return nil
	})
}

// WithListenFunc sets the function opening the datagram socket.
func WithListenFunc(listen ListenFunc) ServerOption {
	return newServerOptFunc("WithListenFunc", func(cfg *ServerConfig) error {
		if listen == nil {
			return errors.New("listen func is nil")
		}
		cfg.listen = listen

		return nil
	})
}

// WithLogger sets the logger of the server.
func WithLogger(l logger.Logger) ServerOption {
	return newServerOptFunc("WithLogger", func(cfg *ServerConfig) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
