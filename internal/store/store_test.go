package store

import (
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	st, err := Open(root, filepath.Join(root, ".ns"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testDoc(path, content, symbols string) *Document {
	return &Document{
		Path:        path,
		Content:     content,
		Symbols:     symbols,
		Lang:        "go",
		SizeBytes:   int64(len(content)),
		MtimeNs:     1700000000000000001,
		IndexedAtNs: 1700000000000000002,
	}
}

func TestStore_InsertAndCommit(t *testing.T) {
	// Given: an empty store
	st := newTestStore(t)

	// When: a document is inserted and committed
	w := st.Writer()
	require.NoError(t, w.Insert(testDoc("pkg/a.go", "func ParseInput() {}", "ParseInput")))
	require.NoError(t, w.Commit())

	// Then: it is visible to readers
	count, err := st.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestStore_UncommittedWriterLeavesIndexUntouched(t *testing.T) {
	// Given: a store with one committed document
	st := newTestStore(t)
	w := st.Writer()
	require.NoError(t, w.Insert(testDoc("a.go", "package a", "")))
	require.NoError(t, w.Commit())

	// When: a second writer buffers mutations but never commits
	w2 := st.Writer()
	w2.DeleteByPath("a.go")
	require.NoError(t, w2.Insert(testDoc("b.go", "package b", "")))

	// Then: the committed state is unchanged
	count, err := st.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestStore_DeleteThenInsertKeepsOneDocumentPerPath(t *testing.T) {
	// Given: a committed document
	st := newTestStore(t)
	w := st.Writer()
	require.NoError(t, w.Insert(testDoc("a.go", "old content", "OldSymbol")))
	require.NoError(t, w.Commit())

	// When: the update primitive runs twice for the same path
	for i := 0; i < 2; i++ {
		w := st.Writer()
		w.DeleteByPath("a.go")
		require.NoError(t, w.Insert(testDoc("a.go", "new content", "NewSymbol")))
		require.NoError(t, w.Commit())
	}

	// Then: exactly one document exists for the path
	count, err := st.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestStore_PathStates(t *testing.T) {
	// Given: two committed documents
	st := newTestStore(t)
	w := st.Writer()
	docA := testDoc("a.go", "package a", "")
	docA.MtimeNs = 111
	docA.SizeBytes = 9
	docB := testDoc("b/b.go", "package b", "")
	docB.MtimeNs = 222
	require.NoError(t, w.Insert(docA))
	require.NoError(t, w.Insert(docB))
	require.NoError(t, w.Commit())

	// When: path states are materialized
	states, err := st.PathStates()
	require.NoError(t, err)

	// Then: mtimes and sizes round-trip exactly
	require.Len(t, states, 2)
	assert.Equal(t, int64(111), states["a.go"].MtimeNs)
	assert.Equal(t, int64(9), states["a.go"].SizeBytes)
	assert.Equal(t, int64(222), states["b/b.go"].MtimeNs)
}

func TestStore_NanosecondMtimeRoundTrip(t *testing.T) {
	// Given: an mtime beyond float64 integer precision
	st := newTestStore(t)
	const mtime = int64(1700000000123456789)
	w := st.Writer()
	doc := testDoc("a.go", "package a", "")
	doc.MtimeNs = mtime
	require.NoError(t, w.Insert(doc))
	require.NoError(t, w.Commit())

	// Then: it survives storage without precision loss
	states, err := st.PathStates()
	require.NoError(t, err)
	assert.Equal(t, mtime, states["a.go"].MtimeNs)
}

func TestStore_SymbolFieldWeighting(t *testing.T) {
	// Given: the term appears as a symbol in one file and content in another
	st := newTestStore(t)
	w := st.Writer()
	require.NoError(t, w.Insert(testDoc("sym.rs", "pub struct EventStore {}", "EventStore")))
	require.NoError(t, w.Insert(testDoc("txt.rs", "// EventStore is configured elsewhere", "")))
	require.NoError(t, w.Commit())

	// When: querying with the boosted disjunction
	sym := bleve.NewMatchQuery("eventstore")
	sym.SetField(FieldSymbols)
	sym.SetBoost(SymbolsWeight)
	content := bleve.NewMatchQuery("eventstore")
	content.SetField(FieldContent)
	content.SetBoost(ContentWeight)
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(sym, content))
	req.Size = 10

	res, err := st.Index().Search(req)
	require.NoError(t, err)

	// Then: the symbol match ranks first
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "sym.rs", res.Hits[0].ID)
}

func TestStore_PromoteReplacesLiveIndex(t *testing.T) {
	// Given: a live index with one document
	root := t.TempDir()
	dataDir := filepath.Join(root, ".ns")
	live, err := Open(root, dataDir)
	require.NoError(t, err)
	w := live.Writer()
	require.NoError(t, w.Insert(testDoc("old.go", "package old", "")))
	require.NoError(t, w.Commit())
	require.NoError(t, live.Close())

	// When: a staging index with two documents is promoted
	fresh, err := OpenFresh(root, dataDir)
	require.NoError(t, err)
	w = fresh.Writer()
	require.NoError(t, w.Insert(testDoc("a.go", "package a", "")))
	require.NoError(t, w.Insert(testDoc("b.go", "package b", "")))
	require.NoError(t, w.Commit())
	require.NoError(t, fresh.Promote())
	require.NoError(t, fresh.Close())

	// Then: reopening shows only the new state
	st, err := Open(root, dataDir)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	count, err := st.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
	states, err := st.PathStates()
	require.NoError(t, err)
	assert.NotContains(t, states, "old.go")
}

func TestStore_DiscardRemovesStaging(t *testing.T) {
	// Given: a staging index that fails mid-build
	root := t.TempDir()
	dataDir := filepath.Join(root, ".ns")
	fresh, err := OpenFresh(root, dataDir)
	require.NoError(t, err)

	// When: it is discarded without promotion
	fresh.Discard()

	// Then: no staging directory remains
	assert.NoDirExists(t, filepath.Join(dataDir, buildDirName))
}

func TestMeta_SaveAndLoad(t *testing.T) {
	// Given: a meta record
	dataDir := t.TempDir()
	m := &Meta{
		SchemaVersion:   SchemaVersion,
		RootPath:        "/repo",
		LastFullIndexNs: 1700000000123456789,
		HeadCommitID:    "abc123",
		FileCount:       244,
		TotalBytes:      1 << 20,
	}

	// When: saved and reloaded
	require.NoError(t, SaveMeta(dataDir, m))
	got, err := LoadMeta(dataDir)
	require.NoError(t, err)

	// Then: all fields round-trip
	assert.Equal(t, m, got)
}

func TestMeta_LoadMissingReturnsZero(t *testing.T) {
	got, err := LoadMeta(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, &Meta{}, got)
}

func TestBuildLock_SecondAcquireFails(t *testing.T) {
	// Given: a held build lock
	dataDir := t.TempDir()
	first := NewBuildLock(dataDir)
	require.NoError(t, first.Acquire())
	defer first.Release()

	// Note: flock is per-process on some platforms, so the contention
	// path is covered by acquiring through a second descriptor.
	second := NewBuildLock(dataDir)
	err := second.Acquire()
	if err == nil {
		// Same-process reacquisition may succeed on platforms where
		// flock is process-scoped; release and move on.
		second.Release()
		t.Skip("flock is process-scoped on this platform")
	}
	assert.Error(t, err)
}
