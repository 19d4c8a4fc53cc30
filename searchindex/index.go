// Package searchindex keeps parent documents in a bleve full-text index and
// adapts parent records to reindex.Reindexer.
package searchindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/jacentio/cascadeindex/reindex"
)

var (
	// ErrClosed is returned by operations on a closed Index.
	ErrClosed = errors.New("searchindex: index is closed")

	// ErrEmptyID is returned when a document has no search ID.
	ErrEmptyID = errors.New("searchindex: empty document id")
)

// Document is implemented by parent records stored in the index.
type Document interface {
	// SearchID returns the document ID in the index.
	SearchID() string

	// SearchDocument builds the document to index. Any value bleve can map
	// (structs, maps) is accepted.
	SearchDocument(ctx context.Context) (any, error)
}

// Index wraps a bleve index.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
	logger *slog.Logger
}

// New opens the index at path, creating it if it does not exist.
// An empty path creates an in-memory index.
func New(path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	indexMapping := bleve.NewIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open search index: %w", err)
	}

	logger.Debug("search index opened", "path", path)
	return &Index{index: idx, path: path, logger: logger}, nil
}

// Upsert indexes doc under id, replacing any previous version.
func (x *Index) Upsert(ctx context.Context, id string, doc any) error {
	if id == "" {
		return ErrEmptyID
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return ErrClosed
	}
	if err := x.index.Index(id, doc); err != nil {
		return fmt.Errorf("index document %s: %w", id, err)
	}

	x.logger.DebugContext(ctx, "document indexed", "id", id)
	return nil
}

// Delete removes documents by ID. Unknown IDs are ignored.
func (x *Index) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return ErrClosed
	}

	batch := x.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := x.index.Batch(batch); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (x *Index) Count() (uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return 0, ErrClosed
	}
	return x.index.DocCount()
}

// Search returns the IDs of documents matching query, best match first.
func (x *Index) Search(ctx context.Context, query string, limit int) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, ErrClosed
	}
	if strings.TrimSpace(query) == "" {
		return []string{}, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	if limit > 0 {
		req.Size = limit
	}

	result, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Close closes the index. Safe to call more than once.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil
	}
	x.closed = true
	x.logger.Debug("search index closed", "path", x.path)
	return x.index.Close()
}

// Entry binds doc to the index. The returned Entry rebuilds and upserts the
// document whenever it is reindexed.
func (x *Index) Entry(doc Document) *Entry {
	return &Entry{index: x, doc: doc}
}

// Entry is a parent document bound to an Index.
type Entry struct {
	index *Index
	doc   Document
}

var _ reindex.Reindexer = (*Entry)(nil)

// Reindex rebuilds the document and writes it to the index.
func (e *Entry) Reindex(ctx context.Context) error {
	body, err := e.doc.SearchDocument(ctx)
	if err != nil {
		return fmt.Errorf("build document %s: %w", e.doc.SearchID(), err)
	}
	return e.index.Upsert(ctx, e.doc.SearchID(), body)
}
