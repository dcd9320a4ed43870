package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/bookchat/internal/app"
	"github.com/vovakirdan/bookchat/internal/core"
)

func newRoomsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "Print the room list snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := app.New(c.cfg, c.log, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			go a.Store().Run(ctx)

			id, err := a.Identity().Resolve(ctx)
			if err != nil {
				return err
			}
			if _, err := a.Store().Apply(ctx, core.SetIdentity(id.UserID)); err != nil {
				return err
			}
			if err := a.Conversations().LoadRooms(ctx); err != nil {
				return err
			}
			if err := a.Conversations().RefreshUnread(ctx); err != nil {
				c.log.Warn().Err(err).Msg("unread count unavailable")
			}

			printRooms(cmd.OutOrStdout(), a.Store().Snapshot())
			return nil
		},
	}
}

func printRooms(w io.Writer, st core.State) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tWITH\tSTATUS\tLAST MESSAGE\tUNREAD")
	for _, r := range st.Rooms {
		unread := ""
		if r.HasUnread {
			unread = "*"
		}
		last := "-"
		if !r.LastMessageAt.IsZero() {
			last = r.LastMessageAt.Local().Format(time.DateTime)
		}
		with := r.Counterpart(st.Me)
		name := with.Name
		if name == "" {
			name = with.ID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Title, name, r.Status, last, unread)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d room(s), %d unread\n", len(st.Rooms), st.Unread)
}
