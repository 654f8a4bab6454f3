package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/matheus3301/wachat/internal/app"
	"github.com/matheus3301/wachat/internal/bus"
	"github.com/matheus3301/wachat/internal/status"
	"github.com/matheus3301/wachat/internal/store"
	intsync "github.com/matheus3301/wachat/internal/sync"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var chatID string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print live events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return opts.withClient(ctx, false, func(ctx context.Context, c *app.Client) error {
				events, unsub := c.Bus.Subscribe("", 256)
				defer unsub()

				if chatID != "" {
					if err := c.Orchestrator.SelectChat(chatID); err != nil {
						return err
					}
				}
				out := cmd.OutOrStdout()
				for {
					select {
					case evt, ok := <-events:
						if !ok {
							return nil
						}
						if opts.json {
							if err := outputJSON(out, map[string]any{"event": evt.Kind, "at": evt.Timestamp, "data": evt.Payload}); err != nil {
								return err
							}
							continue
						}
						printEvent(out, evt)
					case <-ctx.Done():
						return nil
					}
				}
			})
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "open this chat: mark it read and follow its room")
	return cmd
}

func printEvent(w io.Writer, evt bus.Event) {
	at := evt.Timestamp.Local().Format("15:04:05")
	switch p := evt.Payload.(type) {
	case store.Message:
		fmt.Fprintf(w, "%s %-20s %s %s\n", at, evt.Kind, p.ChatID, formatMessage(toMessageView(p)))
	case store.Chat:
		fmt.Fprintf(w, "%s %-20s %s %q unread=%d\n", at, evt.Kind, p.ID, p.Name, p.UnreadCount)
	case intsync.FetchResult:
		fmt.Fprintf(w, "%s %-20s %s gen=%d messages=%d\n", at, evt.Kind, p.ChatID, p.Generation, p.Messages)
	case intsync.TypingChange:
		fmt.Fprintf(w, "%s %-20s %s typing=%v\n", at, evt.Kind, p.ChatID, p.Typing)
	case intsync.SendResult:
		fmt.Fprintf(w, "%s %-20s %s %s -> %s\n", at, evt.Kind, p.ChatID, p.TempID, p.Message.ID)
	case status.StatusChange:
		fmt.Fprintf(w, "%s %-20s %s -> %s\n", at, evt.Kind, p.From, p.To)
	default:
		fmt.Fprintf(w, "%s %-20s %v\n", at, evt.Kind, p)
	}
}
