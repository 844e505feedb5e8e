package indexer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsearch/ns/internal/config"
	"github.com/nsearch/ns/internal/search"
	"github.com/nsearch/ns/internal/store"
)

// seedTree writes files under root.
func seedTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
}

// touchLater bumps a file's mtime strictly past its current value, so
// change detection does not depend on filesystem timestamp granularity.
func touchLater(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	later := info.ModTime().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
}

func openStore(t *testing.T, root string) *store.Store {
	t.Helper()
	st, err := store.Open(root, config.DataDir(root))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestBuildFull_IndexesWholeTree(t *testing.T) {
	// Given: a tree with nested source files
	root := t.TempDir()
	seedTree(t, root, map[string]string{
		"main.go":        "package main\n\nfunc main() {}\n",
		"pkg/lib.go":     "package pkg\n\nfunc Helper() {}\n",
		"docs/notes.txt": "plain notes\n",
	})

	ix, err := New(root)
	require.NoError(t, err)

	// When: building a full index
	report, err := ix.BuildFull(context.Background(), Options{})
	require.NoError(t, err)

	// Then: every file is indexed once
	assert.Equal(t, 3, report.Added)

	st := openStore(t, root)
	count, err := st.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	meta, err := store.LoadMeta(config.DataDir(root))
	require.NoError(t, err)
	assert.Equal(t, 3, meta.FileCount)
	assert.Equal(t, store.SchemaVersion, meta.SchemaVersion)
	assert.NotZero(t, meta.LastFullIndexNs)
}

func TestBuildIncremental_TwiceWithNoChangesIsIdempotent(t *testing.T) {
	// Given: a fully indexed tree
	root := t.TempDir()
	files := make(map[string]string)
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("src/file%02d.go", i)] = fmt.Sprintf("package src\n\nfunc F%02d() {}\n", i)
	}
	seedTree(t, root, files)

	ix, err := New(root)
	require.NoError(t, err)
	full, err := ix.BuildFull(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 20, full.Added)

	// When: running incremental builds with no changes
	for i := 0; i < 2; i++ {
		report, err := ix.BuildIncremental(context.Background(), Options{})
		require.NoError(t, err)

		// Then: nothing is classified as changed
		assert.Equal(t, 0, report.Added, "run %d", i)
		assert.Equal(t, 0, report.Modified, "run %d", i)
		assert.Equal(t, 0, report.Deleted, "run %d", i)
		assert.Equal(t, 20, report.Unchanged, "run %d", i)
	}

	// And: the file count never drifts
	meta, err := store.LoadMeta(config.DataDir(root))
	require.NoError(t, err)
	assert.Equal(t, 20, meta.FileCount)
}

func TestBuildIncremental_NewFilesAreAddedOnce(t *testing.T) {
	// Given: a fully indexed tree
	root := t.TempDir()
	seedTree(t, root, map[string]string{"a.go": "package a\n"})

	ix, err := New(root)
	require.NoError(t, err)
	_, err = ix.BuildFull(context.Background(), Options{})
	require.NoError(t, err)

	// When: new files appear and an incremental build runs
	seedTree(t, root, map[string]string{
		"b.go": "package b\n",
		"c.go": "package c\n",
	})
	report, err := ix.BuildIncremental(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)

	// Then: a second run with no further changes reports nothing
	report, err = ix.BuildIncremental(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Added)
	assert.Equal(t, 0, report.Modified)
	assert.Equal(t, 0, report.Deleted)

	meta, err := store.LoadMeta(config.DataDir(root))
	require.NoError(t, err)
	assert.Equal(t, 3, meta.FileCount)
}

func TestBuildIncremental_ModifiedFileIsReplaced(t *testing.T) {
	// Given: an indexed tree
	root := t.TempDir()
	seedTree(t, root, map[string]string{
		"a.go": "package a\n\nfunc Original() {}\n",
		"b.go": "package b\n",
	})

	ix, err := New(root)
	require.NoError(t, err)
	_, err = ix.BuildFull(context.Background(), Options{})
	require.NoError(t, err)

	// When: one file changes content and mtime
	abs := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(abs, []byte("package a\n\nfunc Rewritten() {}\n"), 0o644))
	touchLater(t, abs)

	report, err := ix.BuildIncremental(context.Background(), Options{})
	require.NoError(t, err)

	// Then: it is classified modified, not added
	assert.Equal(t, 0, report.Added)
	assert.Equal(t, 1, report.Modified)
	assert.Equal(t, 0, report.Deleted)

	// And: exactly one document per path remains
	st := openStore(t, root)
	count, err := st.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestBuildIncremental_DeletedFileIsRemoved(t *testing.T) {
	// Given: an indexed tree
	root := t.TempDir()
	seedTree(t, root, map[string]string{
		"keep.go": "package keep\n",
		"gone.go": "package gone\n",
	})

	ix, err := New(root)
	require.NoError(t, err)
	_, err = ix.BuildFull(context.Background(), Options{})
	require.NoError(t, err)

	// When: a file is deleted
	require.NoError(t, os.Remove(filepath.Join(root, "gone.go")))
	report, err := ix.BuildIncremental(context.Background(), Options{})
	require.NoError(t, err)

	// Then: the document is removed from the index
	assert.Equal(t, 1, report.Deleted)

	st := openStore(t, root)
	states, err := st.PathStates()
	require.NoError(t, err)
	assert.NotContains(t, states, "gone.go")
	assert.Contains(t, states, "keep.go")
}

func TestBuildIncremental_EquivalentToFreshFull(t *testing.T) {
	// Given: a tree indexed full then incrementally with no changes
	root := t.TempDir()
	seedTree(t, root, map[string]string{
		"a.go":     "package a\n\nfunc A() {}\n",
		"sub/b.rs": "pub fn b() {}\n",
	})

	ix, err := New(root)
	require.NoError(t, err)
	_, err = ix.BuildFull(context.Background(), Options{})
	require.NoError(t, err)
	_, err = ix.BuildIncremental(context.Background(), Options{})
	require.NoError(t, err)

	st := openStore(t, root)
	incremental, err := st.PathStates()
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// When: wiping the index and building fresh
	require.NoError(t, os.RemoveAll(config.DataDir(root)))
	ix2, err := New(root)
	require.NoError(t, err)
	_, err = ix2.BuildFull(context.Background(), Options{})
	require.NoError(t, err)

	fresh := openStore(t, root)
	full, err := fresh.PathStates()
	require.NoError(t, err)

	// Then: the indexed path set is identical
	assert.Equal(t, pathSet(full), pathSet(incremental))
}

func pathSet(states map[string]store.PathState) map[string]struct{} {
	set := make(map[string]struct{}, len(states))
	for p := range states {
		set[p] = struct{}{}
	}
	return set
}

func TestBuildIncremental_WithoutIndexFallsBackToFull(t *testing.T) {
	root := t.TempDir()
	seedTree(t, root, map[string]string{"a.go": "package a\n"})

	ix, err := New(root)
	require.NoError(t, err)

	report, err := ix.BuildIncremental(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
}

func TestBuildFull_SkipsIndexDirectoryAndIgnoredFiles(t *testing.T) {
	// Given: a tree with an ignore file
	root := t.TempDir()
	seedTree(t, root, map[string]string{
		"main.go":        "package main\n",
		"secret.log":     "should not be indexed\n",
		".gitignore":     "*.log\n",
		"vendor/dep.go":  "package dep\n",
		".ns-unrelated":  "indexed fine\n",
	})

	ix, err := New(root)
	require.NoError(t, err)
	_, err = ix.BuildFull(context.Background(), Options{})
	require.NoError(t, err)

	st := openStore(t, root)
	states, err := st.PathStates()
	require.NoError(t, err)

	assert.Contains(t, states, "main.go")
	assert.Contains(t, states, "vendor/dep.go")
	assert.NotContains(t, states, "secret.log")
	// The index's own directory never shows up.
	for p := range states {
		assert.NotContains(t, p, config.DataDirName+"/")
	}
}

func TestBuildFull_SkipsOversizeAndBinaryFiles(t *testing.T) {
	// Given: an oversize file and a binary file
	root := t.TempDir()
	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'a'
	}
	seedTree(t, root, map[string]string{"ok.go": "package ok\n"})
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), big, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0x00, 0x01, 0xff, 0xfe}, 0o644))

	ix, err := New(root)
	require.NoError(t, err)
	_, err = ix.BuildFull(context.Background(), Options{MaxFileSize: 1024})
	require.NoError(t, err)

	st := openStore(t, root)
	states, err := st.PathStates()
	require.NoError(t, err)
	assert.Contains(t, states, "ok.go")
	assert.NotContains(t, states, "big.txt")
	assert.NotContains(t, states, "blob.bin")
}

func TestBuildFull_ExtractsSymbolsPerLanguage(t *testing.T) {
	root := t.TempDir()
	seedTree(t, root, map[string]string{
		"store.rs": "pub struct EventStore {}\n\npub fn open() -> EventStore { EventStore {} }\n",
	})

	ix, err := New(root)
	require.NoError(t, err)
	_, err = ix.BuildFull(context.Background(), Options{})
	require.NoError(t, err)

	st := openStore(t, root)
	count, err := st.DocCount()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	// The extracted symbols are visible through a symbols-only query.
	report, err := search.New(st).Search(context.Background(), search.Query{Terms: []string{"EventStore"}, SymbolOnly: true})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, []string{"EventStore"}, report.Results[0].MatchedSymbols)
}

// gitAvailable reports whether the git binary is usable in this
// environment.
func gitAvailable(t *testing.T) bool {
	t.Helper()
	_, err := exec.LookPath("git")
	return err == nil
}

// initRepo creates a git repository with one commit of the current tree.
func initRepo(t *testing.T, root string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=t@t",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=t@t")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init", "-q")
	run("add", "-A")
	run("commit", "-q", "-m", "seed", "--no-verify")
}

func TestBuildIncremental_UntrackedFilesAreAddedExactlyOnce(t *testing.T) {
	if !gitAvailable(t) {
		t.Skip("git not available")
	}

	// Given: a committed, fully indexed repository
	root := t.TempDir()
	seedTree(t, root, map[string]string{
		"a.go": "package a\n",
		"b.go": "package b\n",
	})
	initRepo(t, root)

	ix, err := New(root)
	require.NoError(t, err)
	full, err := ix.BuildFull(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 2, full.Added)

	// When: untracked files appear
	seedTree(t, root, map[string]string{
		"new1.go": "package new1\n",
		"new2.go": "package new2\n",
		"new3.go": "package new3\n",
	})
	report, err := ix.BuildIncremental(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Added)

	// Then: re-running with no changes does not re-add them. This is
	// the membership gate on the untracked list: git keeps reporting
	// these files until they are committed.
	report, err = ix.BuildIncremental(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Added)
	assert.Equal(t, 0, report.Modified)
	assert.Equal(t, 0, report.Deleted)

	meta, err := store.LoadMeta(config.DataDir(root))
	require.NoError(t, err)
	assert.Equal(t, 5, meta.FileCount)
}

func TestBuildIncremental_ModifiedUntrackedFileIsModified(t *testing.T) {
	if !gitAvailable(t) {
		t.Skip("git not available")
	}

	// Given: an indexed repo with an indexed untracked file
	root := t.TempDir()
	seedTree(t, root, map[string]string{"a.go": "package a\n"})
	initRepo(t, root)

	ix, err := New(root)
	require.NoError(t, err)
	_, err = ix.BuildFull(context.Background(), Options{})
	require.NoError(t, err)

	seedTree(t, root, map[string]string{"draft.go": "package draft\n"})
	report, err := ix.BuildIncremental(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Added)

	// When: the untracked file is edited
	abs := filepath.Join(root, "draft.go")
	require.NoError(t, os.WriteFile(abs, []byte("package draft\n\nfunc Edited() {}\n"), 0o644))
	touchLater(t, abs)

	report, err = ix.BuildIncremental(context.Background(), Options{})
	require.NoError(t, err)

	// Then: it is modified, never re-added
	assert.Equal(t, 0, report.Added)
	assert.Equal(t, 1, report.Modified)
}

func TestBuildIncremental_CommittedChangesBetweenBuilds(t *testing.T) {
	if !gitAvailable(t) {
		t.Skip("git not available")
	}

	// Given: an indexed repository
	root := t.TempDir()
	seedTree(t, root, map[string]string{
		"a.go": "package a\n",
		"b.go": "package b\n",
	})
	initRepo(t, root)

	ix, err := New(root)
	require.NoError(t, err)
	_, err = ix.BuildFull(context.Background(), Options{})
	require.NoError(t, err)

	// When: a commit adds one file, modifies one, deletes one
	seedTree(t, root, map[string]string{"c.go": "package c\n"})
	abs := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(abs, []byte("package a\n\nfunc Changed() {}\n"), 0o644))
	touchLater(t, abs)
	require.NoError(t, os.Remove(filepath.Join(root, "b.go")))

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=t@t",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=t@t")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("add", "-A")
	run("commit", "-q", "-m", "change", "--no-verify")

	report, err := ix.BuildIncremental(context.Background(), Options{})
	require.NoError(t, err)

	// Then: the change set mirrors the commit
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Modified)
	assert.Equal(t, 1, report.Deleted)

	meta, err := store.LoadMeta(config.DataDir(root))
	require.NoError(t, err)
	assert.Equal(t, 2, meta.FileCount)
}
