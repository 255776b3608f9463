package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Geun-Oh/lxring/internal/config"
)

// app is shared by every subcommand once the root has loaded its config.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "lxring",
		Short: "lxring keeps recent log entries in fixed-size ring stores",
		Long: `lxring captures log lines from commands, files, containers or stdin into
fixed-capacity ring stores. Readers that fall behind are told how many
entries they missed instead of blocking the writer.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format (text, json)")

	cmd.AddCommand(newRunCmd(a), newServeCmd(a), newArchiveCmd(a))
	return cmd
}

func (a *app) load() error {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		if cfg, err = config.Load(a.configPath); err != nil {
			return err
		}
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	log, err := config.NewLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(log)
	a.cfg, a.log = cfg, log
	return nil
}
