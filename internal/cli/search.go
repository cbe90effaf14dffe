package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the retrieval index",
	Long: `Search the documents indexed with 'ingest' and print the best passages.
This is the same lookup a chat turn uses to add context.

Examples:
  aiaio search "open-circuit voltage"
  aiaio search "thermal runaway" -n 3`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "max results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	hits, err := apiClient.SearchDocuments(background(), args[0], searchLimit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(hits))
	for i, h := range hits {
		fmt.Printf("%d. %s (%.2f)\n", i+1, h.Source, h.Score)
		if h.Heading != "" {
			fmt.Printf("   @ %s\n", h.Heading)
		}
		if verbose {
			fmt.Println(indent(h.Content, "   "))
		} else {
			fmt.Printf("   %s\n", truncate(oneLine(h.Content), 100))
		}
	}

	return nil
}
