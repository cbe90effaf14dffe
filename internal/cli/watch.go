package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/raphaelgruber/aiaio-go/internal/client"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print conversation changes as they happen",
	Long: `Open the server's websocket and print broadcasts: new messages,
summary updates and deletions. Stop with Ctrl+C.

Examples:
  aiaio watch`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(background(), os.Interrupt)
	defer stop()

	ctl, err := apiClient.Connect(ctx, "watch-"+shortuuid.New())
	if err != nil {
		return err
	}
	defer ctl.Close()

	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl+C to stop)\n", apiClient.BaseURL())
	err = ctl.Listen(ctx, func(b client.Broadcast) {
		fmt.Println(formatBroadcast(time.Now(), b))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func formatBroadcast(at time.Time, b client.Broadcast) string {
	line := fmt.Sprintf("%s %-20s %s", at.Format("15:04:05"), b.Type, b.ConversationID)
	if b.Summary != "" {
		line += "  " + b.Summary
	}
	return line
}
