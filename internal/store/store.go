// Package store persists the file-level inverted index. It wraps bleve
// with the document schema, the delete-then-insert update primitive, the
// meta record, and the writer lock.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	nserr "github.com/nsearch/ns/internal/errors"
)

// Directory layout under the data directory.
const (
	IndexDirName = "index"
	MetaFileName = "meta.json"
	LockFileName = "lock"

	// buildDirName is the staging directory for full rebuilds; it is
	// renamed over IndexDirName on success.
	buildDirName = "index.build"
)

// Document is one indexed file's record.
type Document struct {
	// Path is the repo-relative slash-form path and the unique key.
	Path string
	// Content is the file text. Indexed, never stored.
	Content string
	// Symbols is the space-joined extracted symbol names.
	Symbols string
	// Lang is the language tag, or "text".
	Lang string
	// SizeBytes and MtimeNs reflect the file at the moment the document
	// was written.
	SizeBytes int64
	MtimeNs   int64
	// IndexedAtNs is when the document was written.
	IndexedAtNs int64
}

// Store is the on-disk index plus its reader/writer surface. A Store is
// safe for concurrent readers; writers are serialized externally via the
// file lock.
type Store struct {
	mu      sync.RWMutex
	index   bleve.Index
	root    string
	dataDir string
	path    string // index directory currently backing the store
	closed  bool
}

// Open opens the index under root's data directory, creating it if
// needed.
func Open(root, dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, IndexDirName)
	idx, err := openOrCreate(path)
	if err != nil {
		return nil, err
	}
	return &Store{index: idx, root: root, dataDir: dataDir, path: path}, nil
}

// OpenFresh creates an empty staging index used by full rebuilds. On
// Promote it atomically replaces the live index; until then the prior
// index remains intact.
func OpenFresh(root, dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, buildDirName)
	if err := os.RemoveAll(path); err != nil {
		return nil, nserr.Store("clear staging index", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nserr.Store("create data directory", err)
	}

	m, err := buildIndexMapping()
	if err != nil {
		return nil, nserr.Store("build index mapping", err)
	}
	idx, err := bleve.New(path, m)
	if err != nil {
		return nil, nserr.Store("create index", err)
	}
	return &Store{index: idx, root: root, dataDir: dataDir, path: path}, nil
}

// openOrCreate opens an existing index or creates a new one.
func openOrCreate(path string) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, nserr.Store("create data directory", mkErr)
		}
		m, mErr := buildIndexMapping()
		if mErr != nil {
			return nil, nserr.Store("build index mapping", mErr)
		}
		idx, err = bleve.New(path, m)
	}
	if err != nil {
		return nil, nserr.Store("open index", err)
	}
	return idx, nil
}

// Promote swaps a staging index over the live one. Only valid on stores
// returned by OpenFresh. The store reopens backed by the final path.
func (s *Store) Promote() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if filepath.Base(s.path) != buildDirName {
		return nserr.Store("promote called on live index", nil)
	}
	if err := s.index.Close(); err != nil {
		return nserr.Store("close staging index", err)
	}

	final := filepath.Join(s.dataDir, IndexDirName)
	if err := os.RemoveAll(final); err != nil {
		return nserr.Store("remove prior index", err)
	}
	if err := os.Rename(s.path, final); err != nil {
		return nserr.Store("promote staging index", err)
	}

	idx, err := bleve.Open(final)
	if err != nil {
		return nserr.Store("reopen index", err)
	}
	s.index = idx
	s.path = final
	return nil
}

// Discard abandons a staging index without touching the live one.
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	_ = s.index.Close()
	if filepath.Base(s.path) == buildDirName {
		_ = os.RemoveAll(s.path)
	}
}

// Close closes the index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.index.Close()
}

// Index exposes the underlying bleve index for query execution.
func (s *Store) Index() bleve.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Root returns the repository root this store indexes.
func (s *Store) Root() string {
	return s.root
}

// DocCount returns the number of indexed documents.
func (s *Store) DocCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, nserr.Store("index is closed", nil)
	}
	return s.index.DocCount()
}

// PathState is the stored bookkeeping for one indexed path.
type PathState struct {
	MtimeNs   int64
	SizeBytes int64
}

// PathStates returns the stored mtime and size for every indexed path.
// This is the indexed-paths set that gates incremental classification.
func (s *Store) PathStates() (map[string]PathState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, nserr.Store("index is closed", nil)
	}

	count, err := s.index.DocCount()
	if err != nil {
		return nil, nserr.Store("count documents", err)
	}

	states := make(map[string]PathState, count)
	if count == 0 {
		return states, nil
	}

	req := bleve.NewSearchRequest(query.NewMatchAllQuery())
	req.Size = int(count)
	req.Fields = []string{FieldMtimeNs, FieldSizeBytes}

	result, err := s.index.Search(req)
	if err != nil {
		return nil, nserr.Store("enumerate paths", err)
	}
	for _, hit := range result.Hits {
		states[hit.ID] = PathState{
			MtimeNs:   storedInt(hit.Fields, FieldMtimeNs),
			SizeBytes: storedInt(hit.Fields, FieldSizeBytes),
		}
	}
	return states, nil
}

// storedInt reads a string-encoded int64 stored field.
func storedInt(fields map[string]interface{}, name string) int64 {
	s, ok := fields[name].(string)
	if !ok {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Writer buffers mutations for a single build. All buffered mutations
// become durable and visible together at Commit; a Writer that is never
// committed leaves the index untouched.
type Writer struct {
	store *Store
	batch *bleve.Batch
}

// Writer creates a new writer. The caller must hold the build lock.
func (s *Store) Writer() *Writer {
	return &Writer{store: s, batch: s.index.NewBatch()}
}

// DeleteByPath removes the document for a path. Deleting an absent path
// is a no-op.
func (w *Writer) DeleteByPath(path string) {
	w.batch.Delete(path)
}

// Insert adds a document. For a path that may already exist the caller
// must call DeleteByPath first; Insert alone is only valid for known-new
// paths.
func (w *Writer) Insert(doc *Document) error {
	fields := map[string]interface{}{
		FieldPath:      doc.Path,
		FieldContent:   doc.Content,
		FieldSymbols:   doc.Symbols,
		FieldLang:      doc.Lang,
		FieldSizeBytes: strconv.FormatInt(doc.SizeBytes, 10),
		FieldMtimeNs:   strconv.FormatInt(doc.MtimeNs, 10),
		FieldIndexedNs: strconv.FormatInt(doc.IndexedAtNs, 10),
	}
	if err := w.batch.Index(doc.Path, fields); err != nil {
		return nserr.Store(fmt.Sprintf("index %s", doc.Path), err)
	}
	return nil
}

// Commit applies the batch. A reader obtained after Commit observes
// exactly the committed state.
func (w *Writer) Commit() error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	if w.store.closed {
		return nserr.Store("index is closed", nil)
	}
	if err := w.store.index.Batch(w.batch); err != nil {
		return nserr.Store("commit batch", err)
	}
	return nil
}

// Meta is the process-wide record persisted alongside the index.
type Meta struct {
	SchemaVersion   int    `json:"schema_version"`
	RootPath        string `json:"root_path"`
	LastFullIndexNs int64  `json:"last_full_index_at_ns"`
	HeadCommitID    string `json:"head_commit_id"`
	FileCount       int    `json:"file_count"`
	TotalBytes      int64  `json:"total_bytes"`
}

// LoadMeta reads the meta record. A missing file returns a zero Meta and
// no error.
func LoadMeta(dataDir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, MetaFileName))
	if os.IsNotExist(err) {
		return &Meta{}, nil
	}
	if err != nil {
		return nil, nserr.Store("read meta", err)
	}

	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nserr.Store("parse meta", err)
	}
	return &m, nil
}

// SaveMeta atomically writes the meta record. Called only after a
// successful commit.
func SaveMeta(dataDir string, m *Meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nserr.Store("encode meta", err)
	}

	path := filepath.Join(dataDir, MetaFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nserr.Store("write meta", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nserr.Store("replace meta", err)
	}
	return nil
}
