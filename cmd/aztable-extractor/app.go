package main

import (
	"context"
	"fmt"
	"io"
	"runtime"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/aztable-extractor/internal/extractor"
	"github.com/ajitpratap0/aztable-extractor/pkg/config"
	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
	"github.com/ajitpratap0/aztable-extractor/pkg/logger"
	"github.com/ajitpratap0/aztable-extractor/pkg/metrics"
	"github.com/ajitpratap0/aztable-extractor/pkg/observability"
	"github.com/ajitpratap0/aztable-extractor/pkg/publish"
	"github.com/ajitpratap0/aztable-extractor/pkg/retry"
	"github.com/ajitpratap0/aztable-extractor/pkg/tableclient"
)

// clientFactory creates the table client, replaced in tests
var clientFactory extractor.ClientFactory = extractor.AzureClientFactory

func newRootCmd(out io.Writer) *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:   "aztable-extractor",
		Short: "Export Azure Storage Tables to CSV",
		Long: `aztable-extractor exports one Azure Storage Table to CSV files with manifests.
The configuration is read from <data-dir>/config.json (or config.yaml). Without a
subcommand the "action" of the configuration is performed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), v, "", out)
		},
	}

	flags := root.PersistentFlags()
	flags.String(config.KeyDataDir, "/data", "Data directory with config.json, in/ and out/")
	flags.String(config.KeyLogLevel, "info", "Log level (debug, info, warn, error)")
	flags.String(config.KeyLogFormat, "json", "Log encoding (json, console)")
	flags.Duration(config.KeyProgressInterval, extractor.DefaultProgressInterval, "Minimum time between progress logs")
	flags.Bool(config.KeyTrace, false, "Export trace spans to stderr")
	flags.String(config.KeyPushgatewayURL, "", "Prometheus Pushgateway URL, metrics are pushed after a run")
	for _, key := range []string{
		config.KeyDataDir, config.KeyLogLevel, config.KeyLogFormat,
		config.KeyProgressInterval, config.KeyTrace, config.KeyPushgatewayURL,
	} {
		_ = v.BindPFlag(key, flags.Lookup(key))
	}

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Export the configured table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), v, config.ActionRun, out)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "test-connection",
		Short: "Check the connection string",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), v, config.ActionTestConnection, out)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(out, "aztable-extractor v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	return root
}

// execute loads the configuration and performs action, or the configured
// action when action is empty.
func execute(ctx context.Context, v *viper.Viper, action string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	settings := config.SettingsFrom(v)

	logCfg := logger.Config{Level: settings.LogLevel, Encoding: settings.LogFormat}
	if action == config.ActionTestConnection {
		// stdout carries the action result
		logCfg.OutputPaths = []string{"stderr"}
	}
	if err := logger.Init(logCfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "Invalid logging settings")
	}

	path, err := config.Find(settings.DataDir)
	if err != nil {
		return err
	}
	cfg, err := config.LoadFor(path, action)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	ctx = context.WithValue(ctx, logger.TableKey, cfg.Parameters.Table)
	log := logger.WithContext(ctx)

	tracing := observability.DefaultConfig()
	tracing.Enabled = settings.Trace
	tracing.ServiceVersion = version
	shutdown, err := observability.Init(tracing)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to initialize tracing")
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	policy := retry.NewPolicy(cfg.Parameters.Attempts(), tableclient.IsTransient).WithLogger(log)
	client, err := extractor.Connect(ctx, cfg, clientFactory, policy, log)
	if err != nil {
		return err
	}

	switch cfg.Action {
	case config.ActionTestConnection:
		ex := extractor.New(cfg, client, settings.DataDir, extractor.WithLogger(log))
		if err := ex.TestConnection(ctx); err != nil {
			return err
		}
		return writeJSON(out, map[string]bool{"success": true})
	default:
		return run(ctx, cfg, client, settings, runID, policy, log)
	}
}

func run(ctx context.Context, cfg *config.Config, client tableclient.Client, settings config.Settings,
	runID string, policy *retry.Policy, log *zap.Logger) error {
	m := metrics.New()
	opts := []extractor.Option{
		extractor.WithLogger(log),
		extractor.WithMetrics(m),
		extractor.WithRetryPolicy(policy),
		extractor.WithProgressInterval(settings.ProgressInterval),
	}

	if pub := cfg.Parameters.Publish; pub != nil {
		bucket, err := publish.Open(ctx, pub.Type, pub.Bucket, pub.Region)
		if err != nil {
			return err
		}
		publisher := publish.New(bucket, pub.Prefix, runID, log)
		defer publisher.Close()
		opts = append(opts, extractor.WithPublisher(publisher))
	}

	ex := extractor.New(cfg, client, settings.DataDir, opts...)
	res, err := ex.Extract(ctx)

	if settings.PushgatewayURL != "" {
		if perr := m.Push(ctx, settings.PushgatewayURL, "aztable_extractor"); perr != nil {
			log.Warn("failed to push metrics", zap.Error(perr))
		}
	}
	if err != nil {
		return err
	}

	log.Debug("run finished",
		zap.Int("rows", res.Rows),
		zap.Int("pages", res.Pages),
		zap.Strings("artifacts", res.Artifacts))
	return nil
}

func writeJSON(out io.Writer, v interface{}) error {
	data, err := gojson.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode action result")
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
