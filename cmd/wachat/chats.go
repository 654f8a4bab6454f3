package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/wachat/internal/app"
	"github.com/matheus3301/wachat/internal/store"
	"github.com/spf13/cobra"
)

type chatView struct {
	ID          string    `json:"wa_id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Preview     string    `json:"last_message,omitempty"`
	LastAt      time.Time `json:"last_message_at,omitzero"`
	Unread      int       `json:"unread_count"`
}

func newChatsCmd(opts *rootOptions) *cobra.Command {
	var (
		unread bool
		search string
	)
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List chats, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withClient(cmd.Context(), true, func(_ context.Context, c *app.Client) error {
				var filters []store.Filter
				if unread {
					filters = append(filters, store.UnreadOnly())
				}
				if search != "" {
					filters = append(filters, store.MatchSearch(search))
				}
				if err := c.Orchestrator.DirectoryDegraded(); err != nil {
					return fmt.Errorf("load chats: %w", err)
				}
				chats := c.Orchestrator.Chats(filters...)

				views := make([]chatView, 0, len(chats))
				for _, ch := range chats {
					views = append(views, chatView{
						ID: ch.ID, Name: ch.Name, PhoneNumber: ch.PhoneNumber,
						Preview: ch.Preview.Text, LastAt: ch.Preview.Timestamp, Unread: ch.UnreadCount,
					})
				}
				if opts.json {
					return outputJSON(cmd.OutOrStdout(), views)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tUNREAD\tLAST MESSAGE")
				for _, v := range views {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", v.ID, v.Name, v.Unread, truncate(v.Preview, 48))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "only chats with unread messages")
	cmd.Flags().StringVar(&search, "search", "", "filter by name or phone number")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
