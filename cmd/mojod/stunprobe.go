package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/suniljakhar/mojop2p/pkg/stun"
)

// stunProbeCommand runs a single StunSession Binding Request/Response
// exchange against a configured server and prints the external mapping
// it reports, per spec.md §4.2's discovery step. It is a standalone
// diagnostic: it never proceeds to prediction or validation.
func stunProbeCommand() *cobra.Command {
	var server string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stun-probe",
		Short: "send one STUN Binding Request and print the external mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				return fmt.Errorf("stun-probe: --server is required")
			}
			serverAddr, err := net.ResolveUDPAddr("udp", server)
			if err != nil {
				return fmt.Errorf("stun-probe: resolving %s: %w", server, err)
			}

			conn, err := net.ListenPacket("udp", ":0")
			if err != nil {
				return fmt.Errorf("stun-probe: opening local socket: %w", err)
			}
			defer conn.Close()

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			sess := stun.NewSession(uuid.NewString(), stun.DefaultConfig())
			resp, err := sess.Probe(ctx, conn, serverAddr)
			if err != nil {
				return fmt.Errorf("stun-probe: %w", err)
			}

			ext, ok := resp.ExternalAddress()
			if !ok {
				return fmt.Errorf("stun-probe: response from %s carried no mapped address", server)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "external mapping: %s:%d\n", ext.IP, ext.Port)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "STUN server address (host:port)")
	cmd.Flags().DurationVar(&timeout, "timeout", 20*time.Second, "overall probe timeout")
	return cmd
}
