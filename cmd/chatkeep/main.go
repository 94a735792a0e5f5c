package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/vovakirdan/chatkeep/internal/app"
	"github.com/vovakirdan/chatkeep/internal/config"
	applog "github.com/vovakirdan/chatkeep/internal/log"
)

type cli struct {
	configPath string
	overrides  config.Config

	app *app.App
	log *zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{}
	err := c.rootCommand().ExecuteContext(ctx)
	if closeErr := c.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatkeep",
		Short:         "Local chat storage with a robot companion",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return c.open()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to config file")
	flags.StringVar(&c.overrides.DatabasePath, "db", "", "SQLite database path")
	flags.StringVar(&c.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&c.overrides.LogFormat, "log-format", "", "log format (console, json)")
	flags.DurationVar(&c.overrides.RetryBackoff, "retry-backoff", 0, "wait between chat save attempts")

	root.AddCommand(
		c.chatsCommand(),
		c.chatCommand(),
		c.messagesCommand(),
		c.sendCommand(),
		c.messageCommand(),
		c.sizeCommand(),
		c.configCommand(),
	)
	return root
}

func (c *cli) open() error {
	bootstrap := applog.New("info", "console", nil)

	cfg, path, err := config.Load(bootstrap, c.configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(c.overrides)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c.log = applog.New(cfg.LogLevel, cfg.LogFormat, nil)
	c.log.Debug().Str("config", path).Str("db_path", cfg.DatabasePath).Msg("configuration loaded")

	c.app, err = app.New(&cfg, c.log)
	return err
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}
