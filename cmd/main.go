package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/craftsman/pkg/config"
)

// app carries state shared by every subcommand once the root has run.
type app struct {
	configPath string
	envFile    string
	logLevel   string

	cfg *config.Config
	log *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "craftsman",
		Short: "Chat assistant for finding craftsmen and home-service providers",
		Long: `Craftsman answers questions about craftsmen using retrieval over a
vector collection, and loads that collection from the craftsmen API or
from scraped websites.

Examples:
  craftsman serve
  craftsman chat
  craftsman load craftsmen --reset
  craftsman load url https://example.com/services`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file loaded before the config")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(a),
		newChatCmd(a),
		newLoadCmd(a),
		newEmbedCmd(a),
		newDBCmd(a),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg

	a.log, err = newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(a.log)
	return nil
}

func newLogger(c config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q", c.Level)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// requireConfig fails when any of the named config sections has
// validation errors. Commands only check the sections they use.
func (a *app) requireConfig(sections ...string) error {
	var msgs []string
	for _, e := range a.cfg.Validate() {
		for _, s := range sections {
			if strings.HasPrefix(e.Field, s+".") {
				msgs = append(msgs, e.Error())
				break
			}
		}
	}
	if len(msgs) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}
	return nil
}
