package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/triage-ai/catalog/internal/config"
	"github.com/triage-ai/catalog/internal/storage"
	"github.com/triage-ai/catalog/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries the loaded configuration and logger to every subcommand.
type app struct {
	v       *viper.Viper
	cfgPath string
	cfg     *config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:          "catalog-server",
		Short:        "Sensitivity catalog service",
		Long:         "Serves and maintains the (site, resource) sensitivity catalog.",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.v, a.cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg

			// Command output owns stdout everywhere except the server.
			output := "stderr"
			if cmd.Name() == "serve" {
				output = "stdout"
			}
			a.logger = mustBuildLogger(cfg.Log.Level, output)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", os.Getenv("CATALOG_CONFIG"), "path to a YAML config file")
	if err := config.BindFlags(a.v, root.PersistentFlags()); err != nil {
		panic(err)
	}

	root.AddCommand(
		newServeCmd(a),
		newListCmd(a),
		newImportCmd(a),
		newKeygenCmd(),
	)
	return root
}

// catalog validates the config and builds the store every data command uses.
func (a *app) catalog() (*store.SensitivityCatalogStore, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	return store.NewSensitivityCatalogStore(a.cfg.DB.DataSource(), a.logger), nil
}

// newEventWriter returns the ClickHouse audit writer, or a LogWriter when
// ClickHouse is not configured or unreachable.
func newEventWriter(cfg *config.Config, logger *zap.Logger) storage.EventWriter {
	if cfg.ClickHouse.DSN == "" {
		logger.Info("no clickhouse.dsn set, using log writer")
		return storage.NewLogWriter(logger)
	}
	chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouse.DSN, logger)
	if err != nil {
		logger.Warn("clickhouse connection failed, falling back to log writer",
			zap.Error(err),
		)
		return storage.NewLogWriter(logger)
	}
	logger.Info("clickhouse writer connected")
	return chWriter
}

// audit records a CLI-initiated catalog operation.
func (a *app) audit(op string, records []store.SensitivityRecord, started time.Time, err error) {
	writer := newEventWriter(a.cfg, a.logger)
	defer writer.Close()

	event := storage.NewCatalogEvent("", op, "cli", records, started, err)
	if host, herr := os.Hostname(); herr == nil {
		event.Caller = host
	}
	writer.Write(event)
}

// cleanupOnly reports whether err is a release failure after the operation
// itself succeeded.
func cleanupOnly(err error) bool {
	_, ok := err.(*store.ResourceCleanupError)
	return ok
}

func mustBuildLogger(level, output string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
