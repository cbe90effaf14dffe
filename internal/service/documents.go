// Package service provides document ingestion and search for retrieval.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/raphaelgruber/aiaio-go/internal/parser"
	"github.com/raphaelgruber/aiaio-go/internal/vectorstore"
)

// ErrInvalidDocument is returned for a document without source or content.
var ErrInvalidDocument = errors.New("invalid document")

// Index is the vector index documents are written to.
type Index interface {
	ReplaceSource(ctx context.Context, source string, chunks []parser.Chunk) error
	Search(ctx context.Context, query string, k int) ([]vectorstore.Hit, error)
	Count() int
}

// DocumentService parses, chunks and indexes documents.
type DocumentService struct {
	index  Index
	chunks parser.ChunkConfig
	logger *slog.Logger

	mu     sync.Mutex
	hashes map[string]string // source -> content hash of the indexed version
}

// NewDocumentService creates a service writing to index.
func NewDocumentService(index Index, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		index:  index,
		chunks: parser.DefaultChunkConfig(),
		logger: logger,
		hashes: make(map[string]string),
	}
}

// IngestResult summarizes one ingested document.
type IngestResult struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Chunks  int    `json:"chunks"`
	Skipped bool   `json:"skipped"`
}

// Ingest indexes content under source, replacing any earlier version.
// Content identical to the indexed version is skipped.
func (s *DocumentService) Ingest(ctx context.Context, source, content string) (*IngestResult, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidDocument)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidDocument, source)
	}

	hash := contentHash(content)
	s.mu.Lock()
	unchanged := s.hashes[source] == hash
	s.mu.Unlock()

	doc := parser.Parse(source, content)
	if unchanged {
		s.logger.Debug("document unchanged, skipping", "source", source)
		return &IngestResult{Source: source, Title: doc.Title, Skipped: true}, nil
	}

	chunks := parser.ChunkDocument(doc, s.chunks)
	if err := s.index.ReplaceSource(ctx, source, chunks); err != nil {
		return nil, fmt.Errorf("index document: %w", err)
	}

	s.mu.Lock()
	s.hashes[source] = hash
	s.mu.Unlock()

	s.logger.Info("document ingested", "source", source, "title", doc.Title, "chunks", len(chunks))
	return &IngestResult{Source: source, Title: doc.Title, Chunks: len(chunks)}, nil
}

// Search returns up to k hits for query; k defaults to 5.
func (s *DocumentService) Search(ctx context.Context, query string, k int) ([]vectorstore.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidDocument)
	}
	if k <= 0 {
		k = 5
	}
	return s.index.Search(ctx, query, k)
}

// Count returns the number of indexed chunks.
func (s *DocumentService) Count() int {
	return s.index.Count()
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
