package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/suniljakhar/mojop2p/pkg/config"
	"github.com/suniljakhar/mojop2p/pkg/gateway"
	"github.com/suniljakhar/mojop2p/pkg/socketconnector"
	"github.com/suniljakhar/mojop2p/pkg/streamsocket"
)

// gatewayCommand serves the loopback GatewayServer (spec.md §4.6). Only
// the SocketConnector-backed direct transport is wired here: STUNT,
// StunSession and TurnSession all need a live signaling identity (an
// XMPP JID, a STUN server, discovered streamhosts) that this daemon has
// no channel to obtain on its own, so those Launcher slots stay nil
// until something wires a concrete signaling.Sender into the process.
// gateway.NewStuntLauncher is ready for that wiring once a per-peer
// *stunt.Session exists to hand it.
func gatewayCommand() *cobra.Command {
	var configPath string
	var username, password string
	var secure bool

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "serve the loopback HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			updates, err := config.Watch(ctx, configPath)
			if err != nil {
				return fmt.Errorf("gateway: loading config: %w", err)
			}
			opts := <-updates

			dlog.Debugf(ctx, "gateway: mss=%d attemptBudget=%d validationTimeout=%s",
				opts.MSS, opts.AttemptBudget, opts.ValidationTimeout())
			connector := socketconnector.New(socketconnector.DefaultConfig())
			direct := func(ctx context.Context, target gateway.Target) (streamsocket.Socket, error) {
				conn, err := connector.Connect(ctx, target.Host, target.Port)
				if err != nil {
					return nil, err
				}
				return streamsocket.FromTCP(conn, streamsocket.KindTCP), nil
			}

			dialer := gateway.NewRemoteDialer(direct, nil, nil, nil)
			srv, err := gateway.New(dialer)
			if err != nil {
				return fmt.Errorf("gateway: starting listener: %w", err)
			}
			if username != "" {
				srv.SetCredentials(gateway.Credentials{Username: username, Password: password}, secure)
			}
			srv.SetConfigUpdates(updates)

			dlog.Infof(ctx, "mojod gateway listening on %s", srv.Addr())

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				sigs := make(chan os.Signal, 1)
				signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
				select {
				case sig := <-sigs:
					return fmt.Errorf("received signal %v", sig)
				case <-gctx.Done():
					return nil
				}
			})
			g.Go(func() error {
				return srv.Serve(gctx)
			})

			err = g.Wait()
			dlog.Debug(ctx, "gateway: closing listener and pooled sockets")
			_ = srv.Close(context.Background())
			if err != nil {
				dlog.Infof(ctx, "gateway: stopping: %v", err)
				return nil
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the mojod config YAML file")
	cmd.Flags().StringVar(&username, "username", "", "username offered on a 401 Digest/Basic challenge")
	cmd.Flags().StringVar(&password, "password", "", "password offered on a 401 Digest/Basic challenge")
	cmd.Flags().BoolVar(&secure, "secure", false, "enable the 401 interception retry path")
	return cmd
}
