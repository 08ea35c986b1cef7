package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/constants"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
	"github.com/larsks/gnocchi-senml-proxy/pkg/logging"
)

var (
	configFile string
	dumpConfig bool
)

func main() {
	serve := serveCmd()

	rootCmd := &cobra.Command{
		Use:          "senml-proxy",
		Short:        "Forward SenML sensor telemetry to Gnocchi",
		Long:         "senml-proxy subscribes to SenML messages on MQTT, Kafka or NATS and submits them as measures to Gnocchi, creating resources on demand",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "f", "", "Path to config file (or CONFIG_FILE)")
	rootCmd.PersistentFlags().BoolVar(&dumpConfig, "dump-config", false, "print the resolved configuration and exit")
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serve)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
			}

			cfg, err := config.LoadConfig(configFile, cmd.Flags())
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
				return err
			}

			if dumpConfig {
				return writeSettings(cmd)
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			ctx = logging.WithServiceName(ctx, constants.ServiceName)
			log.InfowCtx(ctx, "starting senml-proxy",
				"transport", cfg.Transport.Type,
				"topics", cfg.Transport.Topics,
				"gnocchi", cfg.Gnocchi.Endpoint,
				"bridge", cfg.Bridge.Type,
			)

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "failed to initialize application", "error", err)
				return err
			}

			runErr := app.Run(ctx)

			if err := app.Shutdown(context.Background()); err != nil {
				log.ErrorwCtx(ctx, "shutdown finished with errors", "error", err)
			}

			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				log.ErrorwCtx(ctx, "service stopped with error", "error", runErr)
				return runErr
			}

			log.InfowCtx(ctx, "service shutdown complete")
			return nil
		},
	}
}

func writeSettings(cmd *cobra.Command) error {
	out, err := json.MarshalIndent(config.Settings(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
