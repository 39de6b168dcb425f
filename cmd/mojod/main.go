// Command mojod runs the gateway daemon described in spec.md: a
// loopback HTTP front door to a peer's music library. Its gateway
// subcommand reaches the peer over direct TCP only; the STUNT, STUN and
// TURN launchers are not wired in here.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is inserted at build time using --ldflags -X.
var Version = "(unknown version)"

func main() {
	ctx := dlog.WithLogger(context.Background(), dlog.WrapLogrus(makeBaseLogger()))

	cmd := &cobra.Command{
		Use:           "mojod",
		Short:         "mojod",
		Long:          "mojod - the peer-to-peer gateway daemon",
		SilenceErrors: true, // main() handles it after ExecuteContext returns
		SilenceUsage:  true,
	}
	cmd.AddCommand(gatewayCommand())
	cmd.AddCommand(stunProbeCommand())
	cmd.AddCommand(versionCommand())

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: error: %v\n", cmd.CommandPath(), err)
		os.Exit(1)
	}
}

func makeBaseLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})

	level := logrus.InfoLevel
	if s := os.Getenv("MOJO_LOG_LEVEL"); s != "" {
		if parsed, err := logrus.ParseLevel(s); err == nil {
			level = parsed
		}
	}
	logger.SetLevel(level)
	return logger
}
