package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"go.aimuz.me/thinkbox/config"
	"go.aimuz.me/thinkbox/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "thinkbox",
		Short:         "Think Box desktop companion",
		Version:       fmt.Sprintf("%s (%s, %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGUI(opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Console log format (text or json)")

	rootCmd.AddCommand(newStatusCommand(opts))
	rootCmd.AddCommand(newBackendCommand(opts))

	return rootCmd
}

// loadConfig reads the config file named by --config, or the default one.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// setupLogging installs the process logger. Flags win over the config file.
func (o *rootOptions) setupLogging(cfg *config.Config, file string) (*logging.Logger, error) {
	level := cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	format := cfg.Log.Format
	if o.logFormat != "" {
		format = o.logFormat
	}

	logger, err := logging.New(logging.Options{Level: level, Format: format, File: file})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger.Logger)
	return logger, nil
}

// logFile returns name inside the log directory, or "" if it is unknown.
func logFile(name string) string {
	dir, err := config.LogDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, name)
}

// openBackendLog opens the file that receives the backend child's output.
func openBackendLog() (*os.File, error) {
	path := logFile("backend.log")
	if path == "" {
		return nil, fmt.Errorf("no log directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
