package cli

import (
	"fmt"

	"github.com/raphaelgruber/aiaio-go/internal/client"
	"github.com/raphaelgruber/aiaio-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	setProvider    string
	setHost        string
	setModel       string
	setAPIKey      string
	setTemperature float64
	setMaxTokens   int
	setTopP        float64
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and manage model settings",
	Long: `Show the default model settings, or manage named settings rows.
Exactly one row is the default and is used for every turn.

Examples:
  aiaio settings
  aiaio settings list
  aiaio settings save local --host http://localhost:11434/v1 --model llama3.2
  aiaio settings save claude --provider bedrock --model anthropic.claude-3-haiku-20240307-v1:0
  aiaio settings default 2
  aiaio settings delete 2`,
	RunE: runShowSettings,
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all settings rows",
	RunE:  runListSettings,
}

var settingsSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Create or replace a settings row by name",
	Long: `Create or replace a settings row by name. Flags that are not given take
the built-in defaults.`,
	Args: cobra.ExactArgs(1),
	RunE: runSaveSettings,
}

var settingsDefaultCmd = &cobra.Command{
	Use:   "default <id>",
	Short: "Make a settings row the default",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetDefaultSettings,
}

var settingsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a non-default settings row",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteSettings,
}

func init() {
	f := settingsSaveCmd.Flags()
	f.StringVar(&setProvider, "provider", "", "provider (openai or bedrock)")
	f.StringVar(&setHost, "host", "", "OpenAI-compatible base URL")
	f.StringVar(&setModel, "model", "", "model name")
	f.StringVar(&setAPIKey, "api-key", "", "API key")
	f.Float64Var(&setTemperature, "temperature", 0, "sampling temperature")
	f.IntVar(&setMaxTokens, "max-tokens", 0, "max tokens per reply")
	f.Float64Var(&setTopP, "top-p", 0, "nucleus sampling")

	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsSaveCmd)
	settingsCmd.AddCommand(settingsDefaultCmd)
	settingsCmd.AddCommand(settingsDeleteCmd)
}

func runShowSettings(cmd *cobra.Command, args []string) error {
	s, err := apiClient.DefaultSettings(background())
	if err != nil {
		return fmt.Errorf("get settings: %w", err)
	}
	printSettings(s)
	return nil
}

func runListSettings(cmd *cobra.Command, args []string) error {
	all, err := apiClient.ListSettings(background())
	if err != nil {
		return fmt.Errorf("list settings: %w", err)
	}

	fmt.Printf("Settings (%d):\n\n", len(all))
	for _, s := range all {
		def := ""
		if s.IsDefault {
			def = " [default]"
		}
		fmt.Printf("- %d %s%s  %s %s\n", s.ID, s.Name, def, s.Provider, s.ModelName)
	}
	return nil
}

func runSaveSettings(cmd *cobra.Command, args []string) error {
	in := settingsInput(cmd, args[0])
	s, err := apiClient.SaveSettings(background(), in)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	fmt.Printf("Saved settings %d (%s)\n", s.ID, s.Name)
	return nil
}

// settingsInput sends only the flags the user set.
func settingsInput(cmd *cobra.Command, name string) client.SettingsInput {
	in := client.SettingsInput{
		Name:      name,
		Provider:  setProvider,
		Host:      setHost,
		ModelName: setModel,
		APIKey:    setAPIKey,
	}
	flags := cmd.Flags()
	if flags.Changed("temperature") {
		in.Temperature = &setTemperature
	}
	if flags.Changed("max-tokens") {
		in.MaxTokens = &setMaxTokens
	}
	if flags.Changed("top-p") {
		in.TopP = &setTopP
	}
	return in
}

func runSetDefaultSettings(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := apiClient.SetDefaultSettings(background(), id); err != nil {
		return fmt.Errorf("set default settings: %w", err)
	}
	fmt.Printf("Settings %d are now the default\n", id)
	return nil
}

func runDeleteSettings(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := apiClient.DeleteSettings(background(), id); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	fmt.Printf("Deleted settings %d\n", id)
	return nil
}

func printSettings(s *models.Settings) {
	key := "(none)"
	if s.APIKey != "" {
		key = "****"
	}
	fmt.Printf("Settings: %s (id %d)\n", s.Name, s.ID)
	fmt.Printf("═══════════════════════════════════════\n\n")
	fmt.Printf("  Provider:    %s\n", s.Provider)
	if s.Host != "" {
		fmt.Printf("  Host:        %s\n", s.Host)
	}
	fmt.Printf("  Model:       %s\n", s.ModelName)
	fmt.Printf("  API key:     %s\n", key)
	fmt.Printf("  Temperature: %.2f\n", s.Temperature)
	fmt.Printf("  Max tokens:  %d\n", s.MaxTokens)
	fmt.Printf("  Top p:       %.2f\n", s.TopP)
}
