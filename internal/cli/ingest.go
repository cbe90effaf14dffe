package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/raphaelgruber/aiaio-go/internal/client"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	ingestDryRun      bool
	ingestRecursive   bool
	ingestConcurrency int
)

// documentExts are the file types sent for retrieval indexing.
var documentExts = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Index Markdown and text files for retrieval",
	Long: `Send Markdown and text files to the server's retrieval index. A directory
is scanned for .md, .markdown and .txt files; hidden directories are
skipped. Re-ingesting an unchanged file is a no-op.

Examples:
  aiaio ingest ./notes
  aiaio ingest ./notes --dry-run
  aiaio ingest README.md`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "show what would be ingested without sending anything")
	ingestCmd.Flags().BoolVarP(&ingestRecursive, "recursive", "r", true, "recursively process subdirectories")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 4, "files sent in parallel")
}

func runIngest(cmd *cobra.Command, args []string) error {
	root := args[0]

	files, err := collectDocuments(root, ingestRecursive)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No Markdown or text files found.")
		return nil
	}

	fmt.Printf("Found %d files\n", len(files))
	if ingestDryRun {
		fmt.Println("\nDry run - would ingest:")
		for _, f := range files {
			fmt.Printf("  %s\n", f)
		}
		return nil
	}

	results, failures := ingestFiles(background(), apiClient, root, files, ingestConcurrency)

	var chunks, skipped int
	for _, r := range results {
		if r.Skipped {
			skipped++
			continue
		}
		chunks += r.Chunks
		if verbose {
			fmt.Printf("  %s: %d chunks\n", r.Source, r.Chunks)
		}
	}

	fmt.Printf("\nIngested %d files (%d chunks), %d unchanged\n", len(results)-skipped, chunks, skipped)
	if len(failures) > 0 {
		fmt.Printf("\nFailures (%d):\n", len(failures))
		for _, f := range failures {
			fmt.Printf("  • %s\n", f)
		}
		return fmt.Errorf("%d of %d files failed", len(failures), len(files))
	}
	return nil
}

// collectDocuments returns the indexable files under root, or root itself
// when it is a single file.
func collectDocuments(root string, recursive bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	if !info.IsDir() {
		if !documentExts[strings.ToLower(filepath.Ext(root))] {
			return nil, fmt.Errorf("unsupported file type: %s", root)
		}
		return []string{root}, nil
	}

	var files []string
	walkFn := func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p == root {
				return nil
			}
			if !recursive || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if documentExts[strings.ToLower(filepath.Ext(p))] {
			files = append(files, p)
		}
		return nil
	}

	if err := filepath.WalkDir(root, walkFn); err != nil {
		return nil, fmt.Errorf("scan directory: %w", err)
	}
	return files, nil
}

// documentIngester is the part of the client used for ingestion.
type documentIngester interface {
	Ingest(ctx context.Context, source, content string) (*client.IngestResult, error)
}

// ingestFiles sends files with bounded concurrency. Sources are paths
// relative to root so re-ingesting from elsewhere replaces the same entry.
// One failing file does not stop the others.
func ingestFiles(ctx context.Context, c documentIngester, root string, files []string, concurrency int) ([]client.IngestResult, []string) {
	var (
		mu       sync.Mutex
		results  []client.IngestResult
		failures []string
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for _, path := range files {
		g.Go(func() error {
			res, err := ingestFile(ctx, c, root, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", path, err))
				return nil
			}
			results = append(results, *res)
			return nil
		})
	}
	_ = g.Wait()
	return results, failures
}

func ingestFile(ctx context.Context, c documentIngester, root, path string) (*client.IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("empty file")
	}
	return c.Ingest(ctx, sourceName(root, path), string(data))
}

func sourceName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}
