package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/bookchat/internal/config"
	applog "github.com/vovakirdan/bookchat/internal/log"
)

// cli holds the resolved configuration shared by every command.
type cli struct {
	configPath string
	overrides  config.Config
	cfg        config.Config
	log        *zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "bookchat",
		Short:         "Realtime booking conversations client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to config.yaml")
	flags.StringVar(&c.overrides.APIBaseURL, "api", "", "REST base URL")
	flags.StringVar(&c.overrides.WSURL, "ws", "", "websocket URL")
	flags.StringVar((*string)(&c.overrides.Role), "role", "", "room list to use: customer, owner or coach")
	flags.StringVar(&c.overrides.StatePath, "state", "", "sqlite file holding the session")
	flags.StringVar(&c.overrides.LogLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newWatchCmd(c),
		newRoomsCmd(c),
		newSessionCmd(c),
		newDevserverCmd(c),
		newDevtokenCmd(c),
	)
	return root
}

func (c *cli) load() error {
	bootstrap := applog.New(c.overrides.LogLevel)
	cfg, path, err := config.Load(bootstrap, c.configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(c.overrides)
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.cfg = cfg
	c.log = applog.New(cfg.LogLevel)
	c.log.Debug().Str("config", path).Str("role", string(cfg.Role)).Msg("configuration loaded")
	return nil
}
