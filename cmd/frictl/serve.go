package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arloliu/go-fri/config"
	"github.com/arloliu/go-fri/logger"
	"github.com/arloliu/go-fri/udpserver"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the datagram link only, answering every datagram with its own bytes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("datagram-port") {
				a.cfg.Datagram.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serveDatagrams(ctx, a.cfg, a.logger, func(srv *udpserver.Server) {
				fmt.Fprintf(cmd.OutOrStdout(), "serving datagrams on %s\n", srv.Addr())
			})
		},
	}
	cmd.Flags().IntVar(&port, "datagram-port", 0, "local datagram port, overrides the configuration")

	return cmd
}

// serveDatagrams runs the datagram server until ctx is done and logs the peer statistics.
func serveDatagrams(ctx context.Context, cfg *config.Config, l logger.Logger, started func(*udpserver.Server)) error {
	srv, err := newDatagramServer(ctx, cfg, l, echoConsumer)
	if err != nil {
		return err
	}
	if started != nil {
		started(srv)
	}

	<-ctx.Done()

	for _, peer := range srv.Peers() {
		l.Info("peer statistics", "peer", peer.Peer.String(), "datagrams", peer.Count,
			"last_seen", peer.LastSeen.Format(time.RFC3339Nano))
	}

	return srv.Close()
}
