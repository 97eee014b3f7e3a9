package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/arloliu/go-fri/config"
	"github.com/arloliu/go-fri/fri"
	"github.com/arloliu/go-fri/fricmd"
	"github.com/arloliu/go-fri/logger"
	"github.com/arloliu/go-fri/metrics"
	"github.com/arloliu/go-fri/udpserver"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	errBringUp          = errors.New("session bring-up failed")
	errSessionEnded     = errors.New("session ended by controller")
	errStreamingStopped = errors.New("streaming stopped by controller")
)

const shutdownTimeout = 5 * time.Second

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Bring up a streaming session and serve the datagram link until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runDriver(ctx, a.cfg, a.logger, echoConsumer)
		},
	}
}

// runDriver serves the datagram link, brings the session up and keeps it until ctx is
// done or the controller ends the session, then tears the session down.
func runDriver(ctx context.Context, cfg *config.Config, l logger.Logger, consumer udpserver.Consumer) error {
	reg := metrics.NewRegistry()

	srv, err := newDatagramServer(ctx, cfg, l, consumer)
	if err != nil {
		return err
	}
	defer srv.Close()

	if err := reg.RegisterServer("datagram", srv.GetMetrics()); err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// the channel outlives ctx so the teardown commands can still be sent
	ch, err := newChannel(context.WithoutCancel(ctx), cfg, l,
		fricmd.WithControlSessionEndedHandler(func(context.Context, *fricmd.Channel) {
			cancel(errSessionEnded)
		}),
		fricmd.WithStreamingSessionEndedHandler(func(context.Context, *fricmd.Channel) {
			cancel(errStreamingStopped)
		}),
	)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := reg.RegisterChannel("controller", ch.GetMetrics()); err != nil {
		return err
	}

	if err := bringUp(ch, cfg); err != nil {
		return err
	}
	l.Info("session streaming", "controller", net.JoinHostPort(cfg.Controller.Host, strconv.Itoa(cfg.Controller.Port)),
		"datagram_port", srv.Port())

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		httpSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			l.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer shutdownCancel()

			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		tearDown(ch, l)

		return nil
	})

	err = g.Wait()
	if cause := context.Cause(ctx); errors.Is(cause, errSessionEnded) || errors.Is(cause, errStreamingStopped) {
		return cause
	}

	return err
}

// bringUp connects the session and negotiates it up to streaming with active control.
func bringUp(ch *fricmd.Channel, cfg *config.Config) error {
	c := cfg.Controller
	if !ch.Connect(c.Host, c.Port) {
		return fmt.Errorf("%w: connect to %s", errBringUp, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)))
	}

	steps := []struct {
		name string
		fn   func() bool
	}{
		{"set link config", func() bool {
			return ch.SetLinkConfig(cfg.Link.RemotePort, cfg.Link.SendPeriodMs, cfg.Link.ReceiveMultiplier)
		}},
		{"set control mode", func() bool { return setControlMode(ch, cfg.Control) }},
		{"set command mode", func() bool {
			mode, err := fri.ParseCommandMode(cfg.Control.CommandMode)
			return err == nil && ch.SetCommandMode(mode)
		}},
		{"start streaming", ch.StartStreaming},
		{"activate control", ch.ActivateControl},
	}

	for _, step := range steps {
		if !step.fn() {
			return fmt.Errorf("%w: %s", errBringUp, step.name)
		}
	}

	return nil
}

func setControlMode(ch *fricmd.Channel, c config.ControlConfig) bool {
	mode, err := fri.ParseControlMode(c.Mode)
	if err != nil {
		return false
	}
	if mode == fri.JointImpedanceControlMode {
		return ch.SetImpedanceParameters(c.Stiffness, c.Damping)
	}

	return ch.SetControlMode(mode)
}

// tearDown winds the session down, each step is attempted even if the previous one failed.
func tearDown(ch *fricmd.Channel, l logger.Logger) {
	if !ch.IsConnected() {
		return
	}

	if ch.State() == fri.StreamingState {
		if !ch.DeactivateControl() {
			l.Warn("failed to deactivate control")
		}
		if !ch.StopStreaming() {
			l.Warn("failed to stop streaming")
		}
	}
	if !ch.Disconnect() {
		l.Warn("failed to disconnect")
	}
}
