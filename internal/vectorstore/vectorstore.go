// Package vectorstore indexes document chunks in chromem-go for semantic
// retrieval.
package vectorstore

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/raphaelgruber/aiaio-go/internal/metrics"
	"github.com/raphaelgruber/aiaio-go/internal/parser"
)

const collectionName = "documents"

// Hit is a single search result.
type Hit struct {
	ID      string  `json:"id"`
	Source  string  `json:"source"`
	Heading string  `json:"heading,omitempty"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// Store wraps one chromem collection.
type Store struct {
	mu      sync.RWMutex
	col     *chromem.Collection
	metrics *metrics.Collector
}

// New opens (or creates) a persistent store in dir.
func New(dir string, embed chromem.EmbeddingFunc) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create vectorstore dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vectorstore: %w", err)
	}
	return newStore(db, embed)
}

// NewInMemory creates a store that is not persisted.
func NewInMemory(embed chromem.EmbeddingFunc) (*Store, error) {
	return newStore(chromem.NewDB(), embed)
}

func newStore(db *chromem.DB, embed chromem.EmbeddingFunc) (*Store, error) {
	col, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	return &Store{col: col}, nil
}

// SetMetrics enables search timings.
func (s *Store) SetMetrics(m *metrics.Collector) {
	s.metrics = m
}

// Count returns the number of indexed chunks.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.col.Count()
}

// ReplaceSource removes every chunk of source and indexes chunks in its
// place.
func (s *Store) ReplaceSource(ctx context.Context, source string, chunks []parser.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.col.Delete(ctx, map[string]string{"source": source}, nil); err != nil {
		return fmt.Errorf("delete %s: %w", source, err)
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:      c.ID,
			Content: c.Content,
			Metadata: map[string]string{
				"source":   c.Source,
				"heading":  c.Heading,
				"position": strconv.Itoa(c.Position),
			},
		})
	}
	if err := s.col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("index %s: %w", source, err)
	}
	return nil
}

// Search returns up to k chunks most similar to query.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.col.Count()
	if n == 0 || k <= 0 {
		return []Hit{}, nil
	}
	if k > n {
		k = n
	}

	start := time.Now()
	results, err := s.col.Query(ctx, query, k, nil, nil)
	if s.metrics != nil {
		s.metrics.RecordTiming(metrics.OpVectorSearch, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:      r.ID,
			Source:  r.Metadata["source"],
			Heading: r.Metadata["heading"],
			Content: r.Content,
			Score:   r.Similarity,
		})
	}
	return hits, nil
}
