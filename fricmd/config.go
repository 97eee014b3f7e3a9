package fricmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-fri/fri"
	"github.com/arloliu/go-fri/logger"
)

// SessionEndedHandler is invoked when the controller ends a session while no command is outstanding.
//
// The handler runs on its own goroutine tracked by the channel; ctx is canceled when the
// channel is closed. It may issue commands on ch, but must not call ch.Close.
type SessionEndedHandler func(ctx context.Context, ch *Channel)

// ChannelConfig represents the configuration parameters of a command channel.
type ChannelConfig struct {
	// dialer opens the reliable transport. Defaults to a TCP dialer.
	dialer Dialer

	// connectTimeout bounds opening the transport. It should be between 100 milliseconds and 30 seconds.
	// Defaults to 3 seconds.
	connectTimeout time.Duration

	// replyTimeout bounds the wait for an outcome. Zero waits until an outcome, a session-end
	// event, link loss or Close resolves the wait.
	// Defaults to 0.
	replyTimeout time.Duration

	// closeTimeout bounds the graceful disconnect and the join of handler tasks in Close.
	// It should be between 100 milliseconds and 30 seconds.
	// Defaults to 3 seconds.
	closeTimeout time.Duration

	// reconnectAttempts is the number of automatic reconnect attempts after link loss.
	// Zero disables automatic reconnect.
	// Defaults to 1.
	reconnectAttempts int
	// reconnectDelay is the delay before the second and later attempts.
	// Defaults to 100 milliseconds.
	reconnectDelay time.Duration
	// reconnectMaxDelay caps the exponentially growing delay between attempts.
	// Defaults to 5 seconds.
	reconnectMaxDelay time.Duration

	// recvBufferSize is the read chunk size of the default TCP transport.
	// Defaults to 1024 bytes.
	recvBufferSize int

	onControlSessionEnded   SessionEndedHandler
	onStreamingSessionEnded SessionEndedHandler
	stateHandlers           []fri.StateChangeHandler

	logger logger.Logger
}

// NewChannelConfig creates a command channel configuration with default values and
// applies the given options.
//
// Returns the configuration and the first error returned by an option.
func NewChannelConfig(opts ...ChannelOption) (*ChannelConfig, error) {
	cfg := &ChannelConfig{
		connectTimeout:    3 * time.Second,
		replyTimeout:      0,
		closeTimeout:      3 * time.Second,
		reconnectAttempts: 1,
		reconnectDelay:    100 * time.Millisecond,
		reconnectMaxDelay: 5 * time.Second,
		recvBufferSize:    1024,
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.dialer == nil {
		cfg.dialer = TCPDialer(cfg.recvBufferSize, cfg.logger)
	}

	return cfg, nil
}

// ReplyTimeout returns the configured reply timeout, zero meaning no timeout.
func (cfg *ChannelConfig) ReplyTimeout() time.Duration { return cfg.replyTimeout }

// ReconnectAttempts returns the number of automatic reconnect attempts.
func (cfg *ChannelConfig) ReconnectAttempts() int { return cfg.reconnectAttempts }

// ChannelOption represents a functional option for configuring a ChannelConfig.
type ChannelOption interface {
	apply(*ChannelConfig) error
}

type chanOptFunc struct {
	name      string
	applyFunc func(*ChannelConfig) error
}

func (o *chanOptFunc) apply(cfg *ChannelConfig) error {
	if cfg == nil {
		return errors.New("channel config is nil")
	}

	if err := o.applyFunc(cfg); err != nil {
		return fmt.Errorf("%s: %w", o.name, err)
	}

	return nil
}

func newChanOptFunc(name string, f func(*ChannelConfig) error) *chanOptFunc {
	return &chanOptFunc{name: name, applyFunc: f}
}

func checkDuration(val time.Duration, minVal time.Duration, maxVal time.Duration) error {
	if val < minVal || val > maxVal {
		return fmt.Errorf("%v out of range [%v, %v]", val, minVal, maxVal)
	}

	return nil
}

// WithDialer sets the function opening the reliable transport.
func WithDialer(dialer Dialer) ChannelOption {
	return newChanOptFunc("WithDialer", func(cfg *ChannelConfig) error {
		if dialer == nil {
			return errors.New("dialer is nil")
		}
		cfg.dialer = dialer

		return nil
	})
}

// WithConnectTimeout sets the timeout for opening the transport.
func WithConnectTimeout(val time.Duration) ChannelOption {
	return newChanOptFunc("WithConnectTimeout", func(cfg *ChannelConfig) error {
		if err := checkDuration(val, 100*time.Millisecond, 30*time.Second); err != nil {
			return err
		}
		cfg.connectTimeout = val

		return nil
	})
}

// WithReplyTimeout sets the outcome wait timeout. Zero disables the timeout.
func WithReplyTimeout(val time.Duration) ChannelOption {
	return newChanOptFunc("WithReplyTimeout", func(cfg *ChannelConfig) error {
		if val < 0 {
			return fmt.Errorf("negative timeout %v", val)
		}
		cfg.replyTimeout = val

		return nil
	})
}

// WithCloseTimeout sets the timeout of Close.
func WithCloseTimeout(val time.Duration) ChannelOption {
	return newChanOptFunc("WithCloseTimeout", func(cfg *ChannelConfig) error {
		if err := checkDuration(val, 100*time.Millisecond, 30*time.Second); err != nil {
			return err
		}
		cfg.closeTimeout = val

		return nil
	})
}

// WithReconnectAttempts sets the number of automatic reconnect attempts after link loss.
// It should be between 0 (disabled) and 100.
func WithReconnectAttempts(val int) ChannelOption {
	return newChanOptFunc("WithReconnectAttempts", func(cfg *ChannelConfig) error {
		if val < 0 || val > 100 {
			return fmt.Errorf("%d out of range [0, 100]", val)
		}
		cfg.reconnectAttempts = val

		return nil
	})
}

// WithReconnectDelay sets the initial delay between reconnect attempts.
// The delay doubles after every failed attempt, up to the reconnect max delay.
func WithReconnectDelay(val time.Duration) ChannelOption {
	return newChanOptFunc("WithReconnectDelay", func(cfg *ChannelConfig) error {
		if err := checkDuration(val, time.Millisecond, time.Minute); err != nil {
			return err
		}
		cfg.reconnectDelay = val

		return nil
	})
}

// WithReconnectMaxDelay caps the delay between reconnect attempts.
func WithReconnectMaxDelay(val time.Duration) ChannelOption {
	return newChanOptFunc("WithReconnectMaxDelay", func(cfg *ChannelConfig) error {
		if err := checkDuration(val, time.Millisecond, 10*time.Minute); err != nil {
			return err
		}
		cfg.reconnectMaxDelay = val

		return nil
	})
}

// WithRecvBufferSize sets the read chunk size of the default TCP transport.
// It should be between 16 and 65536 bytes.
func WithRecvBufferSize(val int) ChannelOption {
	return newChanOptFunc("WithRecvBufferSize", func(cfg *ChannelConfig) error {
		if val < 16 || val > 65536 {
			return fmt.Errorf("%d out of range [16, 65536]", val)
		}
		cfg.recvBufferSize = val

		return nil
	})
}

// WithControlSessionEndedHandler sets the handler of unsolicited ControlSessionEnded notifications.
func WithControlSessionEndedHandler(handler SessionEndedHandler) ChannelOption {
	return newChanOptFunc("WithControlSessionEndedHandler", func(cfg *ChannelConfig) error {
		cfg.onControlSessionEnded = handler
		return nil
	})
}

// WithStreamingSessionEndedHandler sets the handler of unsolicited StreamingSessionEnded notifications.
func WithStreamingSessionEndedHandler(handler SessionEndedHandler) ChannelOption {
	return newChanOptFunc("WithStreamingSessionEndedHandler", func(cfg *ChannelConfig) error {
		cfg.onStreamingSessionEnded = handler
		return nil
	})
}

// WithStateChangeHandler adds a handler invoked on every channel state change.
func WithStateChangeHandler(handler fri.StateChangeHandler) ChannelOption {
	return newChanOptFunc("WithStateChangeHandler", func(cfg *ChannelConfig) error {
		if handler == nil {
			return errors.New("state change handler is nil")
		}
		cfg.stateHandlers = append(cfg.stateHandlers, handler)

		return nil
	})
}

// WithLogger sets the logger of the channel.
func WithLogger(l logger.Logger) ChannelOption {
	return newChanOptFunc("WithLogger", func(cfg *ChannelConfig) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
