package main

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/bookchat/internal/auth"
	"github.com/vovakirdan/bookchat/internal/devserver"
	applog "github.com/vovakirdan/bookchat/internal/log"
)

const (
	devTokenTTL     = 24 * time.Hour
	shutdownTimeout = 5 * time.Second
)

func (c *cli) jwtConfig() *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret: []byte(c.cfg.DevJWTSecret),
		Issuer: "bookchat-dev",
		TTL:    devTokenTTL,
	}
}

func newDevserverCmd(c *cli) *cobra.Command {
	var rateLimit int

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run the in-memory sandbox backend with demo rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := applog.Module(c.log, "devserver")

			backend := devserver.NewBackend(nil, logger)
			devserver.Seed(backend, time.Now().UTC())
			server := devserver.NewServer(backend, devserver.Options{
				Addr:      c.cfg.DevAddr,
				JWT:       c.jwtConfig(),
				RateLimit: rateLimit,
				Logger:    logger,
			})

			serverErr := make(chan error, 1)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
					serverErr <- err
					return
				}
				serverErr <- nil
			}()

			logger.Info().
				Str("addr", c.cfg.DevAddr).
				Strs("users", []string{devserver.DemoCustomer, devserver.DemoOwner, devserver.DemoCoach}).
				Msg("sandbox backend listening")

			select {
			case err := <-serverErr:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				logger.Info().Msg("shutting down sandbox backend")
				if err := server.Shutdown(shutdownCtx); err != nil {
					return err
				}
				return <-serverErr
			}
		},
	}

	cmd.Flags().IntVar(&rateLimit, "rate-limit", devserver.DefaultRateLimit, "intents per minute per connection, 0 disables")
	return cmd
}

func newDevtokenCmd(c *cli) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Mint a token the sandbox backend accepts, carrying the --role claim",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			token, err := auth.GenerateToken(c.jwtConfig(), userID, string(c.cfg.Role))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id to put in the token")
	return cmd
}
