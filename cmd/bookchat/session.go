package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/bookchat/internal/identity"
	"github.com/vovakirdan/bookchat/internal/store"
	"github.com/vovakirdan/bookchat/internal/store/sqlite"
)

func newSessionCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the persisted session",
	}
	cmd.AddCommand(newSessionSetCmd(c), newSessionClearCmd(c), newSessionShowCmd(c))
	return cmd
}

func (c *cli) openState() (*sqlite.SQLiteStore, error) {
	st, err := sqlite.New(c.cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open state %s: %w", c.cfg.StatePath, err)
	}
	return st, nil
}

func newSessionSetCmd(c *cli) *cobra.Command {
	var token, userID, name string
	var cached bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a credential (--token and/or --user) or, with --cached, a cached profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" && userID == "" {
				return errors.New("one of --token or --user is required")
			}
			st, err := c.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			if cached {
				if userID == "" {
					return errors.New("--cached needs --user")
				}
				err = identity.SaveCachedUser(ctx, st, store.CachedUser{ID: userID, Name: name, Role: string(c.cfg.Role)})
			} else {
				err = identity.SaveCredential(ctx, st, store.Credential{Token: token, UserID: userID})
			}
			if err != nil {
				return err
			}

			id, err := identity.NewDefaultResolver(st, c.log).Resolve(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session saved for %s (%s)\n", id.UserID, id.Source)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "bearer token issued by the backend")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "display name for a cached profile")
	cmd.Flags().BoolVar(&cached, "cached", false, "store as the cached profile instead of the credential record")
	return cmd
}

func newSessionClearCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the persisted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := c.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
			return nil
		},
	}
}

func newSessionShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the identity the client would connect as",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := c.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := identity.NewDefaultResolver(st, c.log).Resolve(cmd.Context())
			if errors.Is(err, identity.ErrNoIdentity) {
				fmt.Fprintln(cmd.OutOrStdout(), "no session")
				return nil
			}
			if err != nil {
				return err
			}
			token := "no"
			if id.Token != "" {
				token = "yes"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user: %s\nsource: %s\ntoken: %s\n", id.UserID, id.Source, token)
			return nil
		},
	}
}
