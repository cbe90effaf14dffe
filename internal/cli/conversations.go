package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/aiaio-go/internal/models"
	"github.com/spf13/cobra"
)

var convLimit int

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "List and manage conversations",
	Long: `List conversations, most recently updated first.

Subcommands:
  show     Print a conversation's messages
  delete   Delete a conversation with its messages and attachments
  summary  Set a conversation's summary

Examples:
  aiaio conversations
  aiaio conv show 8f2c...
  aiaio conv summary 8f2c... "Battery voltages"
  aiaio conv delete 8f2c...`,
	RunE: runListConversations,
}

var convShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation's messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowConversation,
}

var convDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteConversation,
}

var convSummaryCmd = &cobra.Command{
	Use:   "summary <id> <text>",
	Short: "Set a conversation's summary",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSetSummary,
}

func init() {
	conversationsCmd.Flags().IntVarP(&convLimit, "limit", "n", 50, "max results")

	conversationsCmd.AddCommand(convShowCmd)
	conversationsCmd.AddCommand(convDeleteCmd)
	conversationsCmd.AddCommand(convSummaryCmd)
}

func runListConversations(cmd *cobra.Command, args []string) error {
	ctx := background()

	convs, err := apiClient.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	if len(convs) == 0 {
		fmt.Println("No conversations found.")
		return nil
	}

	fmt.Printf("Conversations (%d):\n\n", len(convs))
	for i, c := range convs {
		if convLimit > 0 && i >= convLimit {
			fmt.Printf("... and %d more\n", len(convs)-convLimit)
			break
		}
		summary := "(no summary)"
		if c.Summary != nil && *c.Summary != "" {
			summary = *c.Summary
		}
		fmt.Printf("- %s  %s  %s\n", c.ID, formatEpoch(c.LastUpdated), summary)
	}

	return nil
}

func runShowConversation(cmd *cobra.Command, args []string) error {
	ctx := background()

	detail, err := apiClient.GetConversation(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}

	c := detail.Conversation
	fmt.Printf("Conversation %s\n", c.ID)
	if c.Summary != nil && *c.Summary != "" {
		fmt.Printf("Summary: %s\n", *c.Summary)
	}
	fmt.Printf("Created: %s\n\n", formatEpoch(c.CreatedAt))

	for _, m := range detail.Messages {
		if m.Role == models.RoleSystem && !verbose {
			continue
		}
		edited := ""
		if m.UpdatedAt != nil {
			edited = " (edited)"
		}
		fmt.Printf("[%s] %s%s\n", m.Role, m.ID, edited)
		fmt.Println(indent(m.Content, "  "))
		for _, a := range m.Attachments {
			fmt.Printf("  + %s (%s, %d bytes)\n", a.FileName, a.FileType, a.FileSize)
		}
		fmt.Println()
	}

	return nil
}

func runDeleteConversation(cmd *cobra.Command, args []string) error {
	if err := apiClient.DeleteConversation(background(), args[0]); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	fmt.Printf("Deleted conversation %s\n", args[0])
	return nil
}

func runSetSummary(cmd *cobra.Command, args []string) error {
	summary := strings.Join(args[1:], " ")
	if err := apiClient.SetSummary(background(), args[0], summary); err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	fmt.Printf("Updated summary of %s\n", args[0])
	return nil
}

func formatEpoch(sec float64) string {
	if sec == 0 {
		return "-"
	}
	return time.Unix(int64(sec), 0).Local().Format("2006-01-02 15:04")
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
