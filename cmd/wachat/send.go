package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/wachat/internal/app"
	"github.com/matheus3301/wachat/internal/bus"
	intsync "github.com/matheus3301/wachat/internal/sync"
	"github.com/spf13/cobra"
)

func newSendCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <chat> <text>...",
		Short: "Send a text message and wait for the backend to accept it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, text := args[0], strings.Join(args[1:], " ")
			return opts.withClient(cmd.Context(), true, func(ctx context.Context, c *app.Client) error {
				events, unsub := c.Bus.Subscribe("message.send_", 16)
				defer unsub()

				tmp, err := c.Orchestrator.SendMessage(chatID, text)
				if err != nil {
					return err
				}
				for {
					select {
					case evt := <-events:
						res, ok := evt.Payload.(intsync.SendResult)
						if !ok || res.TempID != tmp.ID {
							continue
						}
						if evt.Kind == bus.MessageSendFailed {
							return fmt.Errorf("send to %s: %w", chatID, res.Err)
						}
						if opts.json {
							return outputJSON(cmd.OutOrStdout(), toMessageView(res.Message))
						}
						fmt.Fprintf(cmd.OutOrStdout(), "sent %s (%s)\n", res.Message.ID, res.Message.Status)
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			})
		},
	}
}
