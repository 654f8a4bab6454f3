package main

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/wachat/internal/app"
	"github.com/matheus3301/wachat/internal/bus"
	"github.com/matheus3301/wachat/internal/store"
	intsync "github.com/matheus3301/wachat/internal/sync"
	"github.com/spf13/cobra"
)

type messageView struct {
	ID        string    `json:"message_id"`
	Direction string    `json:"direction"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func toMessageView(m store.Message) messageView {
	return messageView{
		ID: m.ID, Direction: string(m.Direction), Text: m.Text(),
		Status: string(m.Status), Timestamp: m.Timestamp,
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <chat>",
		Short: "Show the messages of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID := args[0]
			return opts.withClient(cmd.Context(), true, func(ctx context.Context, c *app.Client) error {
				events, unsub := c.Bus.Subscribe("chat.", 64)
				defer unsub()

				if err := c.Orchestrator.SelectChat(chatID); err != nil {
					return err
				}
				if err := waitHistory(ctx, events, chatID); err != nil {
					return err
				}

				msgs := c.Orchestrator.Messages(chatID)
				views := make([]messageView, 0, len(msgs))
				for _, m := range msgs {
					views = append(views, toMessageView(m))
				}
				if opts.json {
					return outputJSON(cmd.OutOrStdout(), views)
				}
				for _, v := range views {
					fmt.Fprintln(cmd.OutOrStdout(), formatMessage(v))
				}
				return nil
			})
		},
	}
}

func waitHistory(ctx context.Context, events <-chan bus.Event, chatID string) error {
	for {
		select {
		case evt := <-events:
			res, ok := evt.Payload.(intsync.FetchResult)
			if !ok || res.ChatID != chatID {
				continue
			}
			switch evt.Kind {
			case bus.ChatHistoryLoaded:
				return nil
			case bus.ChatFetchFailed:
				return fmt.Errorf("fetch history of %s: %w", chatID, res.Err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func formatMessage(v messageView) string {
	arrow := "<"
	if v.Direction == string(store.Outbound) {
		arrow = ">"
	}
	return fmt.Sprintf("%s %s %s [%s]", v.Timestamp.Local().Format("2006-01-02 15:04"), arrow, v.Text, v.Status)
}
