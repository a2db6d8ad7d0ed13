// Command nagato runs the HTTP-to-HTTPS upgrading forward proxy.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/watt-toolkit/nagato/internal/proxy"
)

func newRootCmd() *cobra.Command {
	var host string
	var port int
	var verbosity int

	cmd := &cobra.Command{
		Use:   "nagato",
		Short: "HTTP-to-HTTPS upgrading intercepting proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(verbosity)

			addr := net.JoinHostPort(host, strconv.Itoa(port))
			l, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}

			log.Infof("Nagato %s starting on %s", proxy.Version, addr)

			srv := proxy.New(proxy.Config{Log: log})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Serve(ctx, l)
		},
	}

	cmd.Flags().StringVarP(&host, "host", "H", "localhost", "Host to bind")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to bind")
	cmd.Flags().CountVarP(&verbosity, "verbose", "v", "Verbose output")

	// Accept --verbosity as an alias for --verbose.
	cmd.Flags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "verbosity" {
			name = "verbose"
		}
		return pflag.NormalizedName(name)
	})

	return cmd
}

// newLogger configures a logrus.Logger matching the original set_logger:
// 0=warn, 1=info, >=2=debug, with a timestamped text formatter.
func newLogger(verbosity int) *logrus.Logger {
	log := logrus.New()

	levels := []logrus.Level{logrus.WarnLevel, logrus.InfoLevel, logrus.DebugLevel}
	level := logrus.DebugLevel
	if verbosity < len(levels) {
		level = levels[verbosity]
	}
	log.SetLevel(level)

	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return log
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
