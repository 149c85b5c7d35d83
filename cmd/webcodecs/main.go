// Command webcodecs decodes and encodes audio streams with the webcodecs
// package.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thesyncim/webcodecs/internal/logging"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(viper.New())
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	v.SetEnvPrefix("webcodecs")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "webcodecs",
		Short:         "Decode and encode audio streams",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			ctx, err := logging.Init(
				cmd.Context(),
				logging.WithLogFormat(v.GetString("log-format")),
				logging.WithLogLevel(v.GetString("log-level")),
			)
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			cmd.SetContext(ctx)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			_ = ctxzap.Extract(cmd.Context()).Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", logging.LogFormatConsole, "Log format: json or console")
	flags.Int("workers", 0, "Worker goroutines shared by the codecs (0 selects the default)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")

	root.AddCommand(
		newDecodeCommand(v),
		newEncodeCommand(v),
		newCodecsCommand(v),
	)
	return root
}

func logger(ctx context.Context) *zap.Logger {
	return ctxzap.Extract(ctx)
}
