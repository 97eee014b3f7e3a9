package main

import (
	"context"
	"fmt"

	"github.com/arloliu/go-fri/config"
	"github.com/arloliu/go-fri/fricmd"
	"github.com/arloliu/go-fri/logger"
	"github.com/arloliu/go-fri/udpserver"
	"github.com/spf13/cobra"
)

// app holds the state shared by the sub-commands, set in PersistentPreRunE.
type app struct {
	cfgFile  string
	logLevel string

	cfg    *config.Config
	logger logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "frictl",
		Short: "FRI driver: command channel and datagram link of a robot controller",
		Long: `frictl connects to the command endpoint of a robot controller, negotiates the
link and control modes, and serves the real-time datagram link.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "path of the YAML configuration file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the configuration")
	cmd.PersistentFlags().String("host", "", "controller host, overrides the configuration")
	cmd.PersistentFlags().Int("port", 0, "controller command port, overrides the configuration")

	cmd.AddCommand(newRunCmd(a), newServeCmd(a), newCommandCmd(a))

	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Controller.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Controller.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	a.cfg = cfg
	a.logger = logger.GetLogger()

	return nil
}

// newChannel creates a command channel from the controller configuration.
func newChannel(ctx context.Context, cfg *config.Config, l logger.Logger, opts ...fricmd.ChannelOption) (*fricmd.Channel, error) {
	c := cfg.Controller
	chCfg, err := fricmd.NewChannelConfig(append([]fricmd.ChannelOption{
		fricmd.WithConnectTimeout(c.ConnectTimeout),
		fricmd.WithReplyTimeout(c.ReplyTimeout),
		fricmd.WithReconnectAttempts(c.ReconnectAttempts),
		fricmd.WithReconnectDelay(c.ReconnectDelay),
		fricmd.WithLogger(l),
	}, opts...)...)
	if err != nil {
		return nil, err
	}

	return fricmd.NewChannel(ctx, chCfg)
}

// newDatagramServer starts the datagram server configured by cfg.
func newDatagramServer(ctx context.Context, cfg *config.Config, l logger.Logger, consumer udpserver.Consumer) (*udpserver.Server, error) {
	opts := []udpserver.ServerOption{
		udpserver.WithBufferSize(cfg.Datagram.BufferSize),
		udpserver.WithLogger(l),
	}
	if cfg.Datagram.ReadTimeout > 0 {
		opts = append(opts, udpserver.WithReadTimeout(cfg.Datagram.ReadTimeout))
	}

	srv := udpserver.New(ctx, cfg.Datagram.Port, consumer, opts...)
	if !srv.IsInitialized() {
		return nil, srv.InitErr()
	}

	return srv, nil
}

// echoConsumer answers every state datagram with its own bytes, which keeps the
// controller's loop alive without commanding any motion.
var echoConsumer = udpserver.ConsumerFunc(func(unit *udpserver.ExchangeUnit) []byte {
	reply := make([]byte, unit.N)
	copy(reply, unit.Data[:unit.N])

	return reply
})
