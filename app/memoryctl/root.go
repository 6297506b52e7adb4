package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yoockh/yoomemory/config"
	"github.com/yoockh/yoomemory/internal/bootstrap"
	"github.com/yoockh/yoomemory/internal/logger"
)

var (
	logLevel string

	rootCmd = &cobra.Command{
		Use:           "memoryctl",
		Short:         "Operate the companion memory store",
		Long:          longRoot,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
}

// withApp loads settings, builds the app and always closes it.
func withApp(ctx context.Context, fn func(*bootstrap.App, *logrus.Logger) error) error {
	s, err := config.Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		s.LogLevel = logLevel
	}
	log := logger.New(s.LogLevel)
	log.SetOutput(os.Stderr)

	app, err := bootstrap.New(ctx, s, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.WithError(err).Warn("close failed")
		}
	}()
	return fn(app, log)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var longRoot = `
memoryctl runs maintenance against the same database and backends as the
HTTP server: housekeeping sweeps, embedding backfill, and data-rights
requests (export, delete, anonymize) on behalf of a user.

Configuration comes from the environment, .env, or the YAML file named by
MEMORY_CONFIG.
`
