package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/raphaelgruber/aiaio-go/internal/client"
	"github.com/raphaelgruber/aiaio-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	promptFile string
	promptName string
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage system prompts",
	Long: `List and manage named system prompts. The active prompt is used for
chats that send no --system.

Examples:
  aiaio prompts
  aiaio prompts active
  aiaio prompts add concise "Answer in one sentence."
  aiaio prompts add reviewer --file reviewer.txt
  aiaio prompts update 3 --name terse
  aiaio prompts activate 3
  aiaio prompts delete 3`,
	RunE: runListPrompts,
}

var promptsActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Print the active prompt",
	RunE:  runActivePrompt,
}

var promptsAddCmd = &cobra.Command{
	Use:   "add <name> [text]",
	Short: "Add a prompt",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runAddPrompt,
}

var promptsUpdateCmd = &cobra.Command{
	Use:   "update <id> [text]",
	Short: "Rename or rewrite a prompt",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runUpdatePrompt,
}

var promptsActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Make a prompt the active one",
	Args:  cobra.ExactArgs(1),
	RunE:  runActivatePrompt,
}

var promptsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a prompt",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeletePrompt,
}

func init() {
	promptsAddCmd.Flags().StringVar(&promptFile, "file", "", "read the prompt text from a file")
	promptsUpdateCmd.Flags().StringVar(&promptFile, "file", "", "read the prompt text from a file")
	promptsUpdateCmd.Flags().StringVar(&promptName, "name", "", "new name")

	promptsCmd.AddCommand(promptsActiveCmd)
	promptsCmd.AddCommand(promptsAddCmd)
	promptsCmd.AddCommand(promptsUpdateCmd)
	promptsCmd.AddCommand(promptsActivateCmd)
	promptsCmd.AddCommand(promptsDeleteCmd)
}

func runListPrompts(cmd *cobra.Command, args []string) error {
	prompts, err := apiClient.ListPrompts(background())
	if err != nil {
		return fmt.Errorf("list prompts: %w", err)
	}

	if len(prompts) == 0 {
		fmt.Println("No prompts found.")
		return nil
	}

	fmt.Printf("Prompts (%d):\n\n", len(prompts))
	for _, p := range prompts {
		active := ""
		if p.IsActive {
			active = " [active]"
		}
		fmt.Printf("- %d %s%s\n", p.ID, p.Name, active)
		if verbose {
			fmt.Println(indent(p.Text, "  "))
		}
	}
	return nil
}

func runActivePrompt(cmd *cobra.Command, args []string) error {
	p, err := apiClient.ActivePrompt(background())
	if err != nil {
		return fmt.Errorf("get active prompt: %w", err)
	}
	fmt.Printf("%s (id %d)\n\n%s\n", p.Name, p.ID, p.Text)
	return nil
}

func runAddPrompt(cmd *cobra.Command, args []string) error {
	text, err := promptText(args[1:])
	if err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("prompt text is required (argument or --file)")
	}

	p, err := apiClient.CreatePrompt(background(), args[0], text)
	if err != nil {
		return fmt.Errorf("create prompt: %w", err)
	}
	fmt.Printf("Created prompt %d (%s)\n", p.ID, p.Name)
	return nil
}

func runUpdatePrompt(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	text, err := promptText(args[1:])
	if err != nil {
		return err
	}
	if text == "" && promptName == "" {
		return fmt.Errorf("nothing to update (pass text, --file or --name)")
	}

	ctx := background()
	// The server replaces both fields, so keep whichever was not given.
	name := promptName
	if name == "" || text == "" {
		current, err := findPrompt(ctx, id)
		if err != nil {
			return err
		}
		if name == "" {
			name = current.Name
		}
		if text == "" {
			text = current.Text
		}
	}

	p, err := apiClient.UpdatePrompt(ctx, id, name, text)
	if err != nil {
		return fmt.Errorf("update prompt: %w", err)
	}
	fmt.Printf("Updated prompt %d (%s)\n", p.ID, p.Name)
	return nil
}

func runActivatePrompt(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := apiClient.ActivatePrompt(background(), id); err != nil {
		return fmt.Errorf("activate prompt: %w", err)
	}
	fmt.Printf("Activated prompt %d\n", id)
	return nil
}

func runDeletePrompt(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := apiClient.DeletePrompt(background(), id); err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	fmt.Printf("Deleted prompt %d\n", id)
	return nil
}

// promptText returns the positional text or the content of --file.
func promptText(rest []string) (string, error) {
	if promptFile != "" {
		data, err := os.ReadFile(promptFile)
		if err != nil {
			return "", fmt.Errorf("read prompt file: %w", err)
		}
		return string(data), nil
	}
	if len(rest) > 0 {
		return rest[0], nil
	}
	return "", nil
}

func findPrompt(ctx context.Context, id int64) (*models.SystemPrompt, error) {
	prompts, err := apiClient.ListPrompts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	for i := range prompts {
		if prompts[i].ID == id {
			return &prompts[i], nil
		}
	}
	return nil, fmt.Errorf("prompt %d: %w", id, client.ErrNotFound)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %s", s)
	}
	return id, nil
}
