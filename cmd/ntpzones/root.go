package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ntpzones/ntpzones/internal/config"
	"github.com/ntpzones/ntpzones/internal/logger"
)

// annotationLogStdout marks commands whose logs belong on stdout (the
// long-running service); everything else logs to stderr so command output
// stays machine readable
const annotationLogStdout = "log-stdout"

// cli holds global flags and the state PersistentPreRunE prepares for subcommands
type cli struct {
	configPath string
	logLevel   string
	logFormat  string
	noColor    bool

	config *config.Config
	log    *logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "ntpzones",
		Short:         "Query NTP servers and show their time across time zones",
		Version:       fmt.Sprintf("%s (%s)", Version, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				_ = c.log.Close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (default: $"+config.EnvConfig+" or built-in defaults)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug|info|warn|error (default: $LOG_LEVEL or info)")
	flags.StringVar(&c.logFormat, "log-format", "", "log format: text|json (default: $LOG_FORMAT or text)")
	flags.BoolVar(&c.noColor, "no-color", false, "disable colors in table output")

	root.AddCommand(
		newServeCmd(c),
		newShowCmd(c),
		newExportCmd(c),
	)

	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	if c.noColor {
		pterm.DisableStyling()
	}

	logCfg := logger.ConfigFromEnv()
	if c.logLevel != "" {
		logCfg.Level = c.logLevel
	}
	if c.logFormat != "" {
		logCfg.Format = c.logFormat
	}
	logCfg.Output = cmd.ErrOrStderr()
	if _, ok := cmd.Annotations[annotationLogStdout]; ok {
		logCfg.Output = os.Stdout
	}
	c.log = logger.New(logCfg)
	logger.SetDefault(c.log)

	cfg, err := config.Resolve(c.configPath)
	if err != nil {
		return err
	}
	c.config = cfg

	c.log.Debug("Config loaded",
		"path", c.configPath,
		"sources", len(cfg.Sources),
		"zones", len(cfg.Zones))
	return nil
}
