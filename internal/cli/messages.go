package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var messagesCmd = &cobra.Command{
	Use:     "messages",
	Aliases: []string{"msg"},
	Short:   "Show or edit single messages",
	Long: `Show or edit single messages.

System messages cannot be edited.

Examples:
  aiaio messages show 41d7...
  aiaio messages edit 41d7... "The corrected question"`,
}

var msgShowCmd = &cobra.Command{
	Use:   "show <message-id>",
	Short: "Print a message's stored content",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowMessage,
}

var msgEditCmd = &cobra.Command{
	Use:   "edit <message-id> <content>",
	Short: "Replace a message's content",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runEditMessage,
}

func init() {
	messagesCmd.AddCommand(msgShowCmd)
	messagesCmd.AddCommand(msgEditCmd)
}

func runShowMessage(cmd *cobra.Command, args []string) error {
	content, err := apiClient.RawMessage(background(), args[0])
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	fmt.Println(content)
	return nil
}

func runEditMessage(cmd *cobra.Command, args []string) error {
	content := strings.Join(args[1:], " ")
	if err := apiClient.EditMessage(background(), args[0], content); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	fmt.Printf("Updated message %s\n", args[0])
	return nil
}
