// Package indexer drives full and incremental index builds. It
// coordinates the walker, the symbol extractor, and the store, and owns
// the invariant that every path has at most one document.
package indexer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nsearch/ns/internal/config"
	nserr "github.com/nsearch/ns/internal/errors"
	"github.com/nsearch/ns/internal/scanner"
	"github.com/nsearch/ns/internal/store"
	"github.com/nsearch/ns/internal/symbols"
	"github.com/nsearch/ns/internal/vcs"
)

// Options configures a build.
type Options struct {
	// MaxFileSize caps indexed file size in bytes (0 = default 1 MiB).
	MaxFileSize int64
	// Workers sets the read+extract pool size (0 = NumCPU).
	Workers int
	// Exclude holds extra ignore patterns from configuration.
	Exclude []string
	// Progress, when set, receives (done, total) as files are written.
	Progress func(done, total int)
}

// Report summarizes a build.
type Report struct {
	Added     int
	Modified  int
	Deleted   int
	Unchanged int
	// Skipped counts files dropped by per-file errors.
	Skipped int
	Elapsed time.Duration
}

// Indexer builds and updates the index for one repository root.
type Indexer struct {
	root    string
	dataDir string
	scanner *scanner.Scanner
}

// New creates an Indexer for root.
func New(root string) (*Indexer, error) {
	sc, err := scanner.New()
	if err != nil {
		return nil, nserr.Store("create scanner", err)
	}
	return &Indexer{
		root:    root,
		dataDir: config.DataDir(root),
		scanner: sc,
	}, nil
}

// BuildFull builds a fresh index for the whole tree. The new index
// replaces any prior one atomically; a failure before commit leaves the
// prior index intact.
func (ix *Indexer) BuildFull(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()

	lock := store.NewBuildLock(ix.dataDir)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	defer lock.Release()

	files, err := ix.collectFiles(ctx, opts)
	if err != nil {
		return nil, err
	}

	st, err := store.OpenFresh(ix.root, ix.dataDir)
	if err != nil {
		return nil, err
	}
	promoted := false
	defer func() {
		if !promoted {
			st.Discard()
		}
	}()

	w := st.Writer()
	written, totalBytes, skipped, err := ix.writeFiles(ctx, w, files, opts)
	if err != nil {
		return nil, err
	}

	if err := w.Commit(); err != nil {
		return nil, err
	}
	if err := st.Promote(); err != nil {
		return nil, err
	}
	promoted = true
	defer func() { _ = st.Close() }()

	head := ""
	if vcs.IsRepo(ix.root) {
		if head, err = vcs.Head(ix.root); err != nil {
			slog.Warn("head_resolution_failed", slog.String("error", err.Error()))
			head = ""
		}
	}

	now := time.Now().UnixNano()
	meta := &store.Meta{
		SchemaVersion:   store.SchemaVersion,
		RootPath:        ix.root,
		LastFullIndexNs: now,
		HeadCommitID:    head,
		FileCount:       written,
		TotalBytes:      totalBytes,
	}
	if err := store.SaveMeta(ix.dataDir, meta); err != nil {
		return nil, err
	}

	slog.Info("full_index_complete",
		slog.Int("files", written),
		slog.Int("skipped", skipped),
		slog.Duration("elapsed", time.Since(start)))

	return &Report{
		Added:   written,
		Skipped: skipped,
		Elapsed: time.Since(start),
	}, nil
}

// changeSet is the classified outcome of change detection.
type changeSet struct {
	added    []string
	modified []string
	deleted  []string
}

// BuildIncremental updates the live index with the minimal set of
// changes. When no index exists yet it falls back to a full build.
func (ix *Indexer) BuildIncremental(ctx context.Context, opts Options) (*Report, error) {
	if _, err := os.Stat(filepath.Join(ix.dataDir, store.IndexDirName)); os.IsNotExist(err) {
		slog.Info("no_index_found_running_full")
		return ix.BuildFull(ctx, opts)
	}

	start := time.Now()

	lock := store.NewBuildLock(ix.dataDir)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	defer lock.Release()

	meta, err := store.LoadMeta(ix.dataDir)
	if err != nil {
		return nil, err
	}
	if meta.SchemaVersion != 0 && meta.SchemaVersion != store.SchemaVersion {
		slog.Info("schema_version_changed_running_full",
			slog.Int("have", meta.SchemaVersion),
			slog.Int("want", store.SchemaVersion))
		lock.Release()
		return ix.BuildFull(ctx, opts)
	}

	st, err := store.Open(ix.root, ix.dataDir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Close() }()

	// The indexed-paths set is a precondition of all classification:
	// every candidate is gated against it regardless of which strategy
	// produced the candidate.
	states, err := st.PathStates()
	if err != nil {
		return nil, err
	}

	var cs *changeSet
	head := ""
	if vcs.IsRepo(ix.root) {
		head, err = vcs.Head(ix.root)
		if err != nil {
			return nil, nserr.IO("resolve HEAD", err)
		}
		cs, err = ix.vcsChanges(meta.HeadCommitID, head, states)
	} else {
		cs, err = ix.timestampChanges(ctx, states, opts)
	}
	if err != nil {
		return nil, err
	}

	report := &Report{
		Added:    len(cs.added),
		Modified: len(cs.modified),
		Deleted:  len(cs.deleted),
	}

	w := st.Writer()
	var totalBytes int64

	for _, p := range cs.deleted {
		w.DeleteByPath(p)
		totalBytes -= states[p].SizeBytes
	}

	changed := make([]*scanner.FileMeta, 0, len(cs.added)+len(cs.modified))
	for _, p := range cs.modified {
		w.DeleteByPath(p)
		totalBytes -= states[p].SizeBytes
		if fm := ix.statFile(p); fm != nil {
			changed = append(changed, fm)
		}
	}
	for _, p := range cs.added {
		if fm := ix.statFile(p); fm != nil {
			changed = append(changed, fm)
		}
	}

	_, addedBytes, skipped, err := ix.writeFiles(ctx, w, changed, opts)
	if err != nil {
		return nil, err
	}
	totalBytes += addedBytes
	report.Skipped = skipped

	if err := w.Commit(); err != nil {
		return nil, err
	}

	count, err := st.DocCount()
	if err != nil {
		return nil, err
	}
	report.Unchanged = int(count) - report.Added - report.Modified

	meta.SchemaVersion = store.SchemaVersion
	meta.RootPath = ix.root
	meta.HeadCommitID = head
	meta.FileCount = int(count)
	meta.TotalBytes += totalBytes
	if meta.TotalBytes < 0 {
		meta.TotalBytes = 0
	}
	if err := store.SaveMeta(ix.dataDir, meta); err != nil {
		return nil, err
	}

	report.Elapsed = time.Since(start)
	slog.Info("incremental_index_complete",
		slog.Int("added", report.Added),
		slog.Int("modified", report.Modified),
		slog.Int("deleted", report.Deleted),
		slog.Duration("elapsed", report.Elapsed))
	return report, nil
}

// vcsChanges computes the change set from git state: committed-tree
// changes between the last indexed commit and HEAD, plus working-tree
// and untracked changes. Every candidate passes through the shared
// idempotency gate — in particular untracked files, which git keeps
// reporting until they are committed.
func (ix *Indexer) vcsChanges(prevCommit, head string, states map[string]store.PathState) (*changeSet, error) {
	candidates := make(map[string]struct{})
	deleted := make(map[string]struct{})

	if prevCommit != "" && head != "" && prevCommit != head {
		committed, err := vcs.CommittedChanges(ix.root, prevCommit, head)
		if err != nil {
			return nil, nserr.IO("diff committed changes", err)
		}
		for _, c := range committed {
			if c.Status == vcs.StatusDeleted {
				deleted[c.Path] = struct{}{}
			} else {
				candidates[c.Path] = struct{}{}
			}
		}
	}

	working, err := vcs.WorkingChanges(ix.root)
	if err != nil {
		return nil, nserr.IO("read working-tree status", err)
	}
	for _, c := range working {
		if c.Status == vcs.StatusDeleted {
			deleted[c.Path] = struct{}{}
		} else {
			candidates[c.Path] = struct{}{}
		}
	}

	cs := &changeSet{}
	for p := range candidates {
		// The data directory is never indexed, whatever git reports.
		if p == config.DataDirName || strings.HasPrefix(p, config.DataDirName+"/") {
			continue
		}
		delete(deleted, p) // a reappearing path is a candidate, not a delete
		ix.gate(p, states, cs)
	}
	for p := range deleted {
		if _, ok := states[p]; ok {
			cs.deleted = append(cs.deleted, p)
		}
	}
	sortChangeSet(cs)
	return cs, nil
}

// timestampChanges walks the tree and compares mtimes against the stored
// states. Paths present in the index but absent from the walk are
// deleted.
func (ix *Indexer) timestampChanges(ctx context.Context, states map[string]store.PathState, opts Options) (*changeSet, error) {
	files, err := ix.collectFiles(ctx, opts)
	if err != nil {
		return nil, err
	}

	cs := &changeSet{}
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		seen[f.Path] = struct{}{}
		gateMeta(f.Path, f.MtimeNs, states, cs)
	}
	for p := range states {
		if _, ok := seen[p]; !ok {
			cs.deleted = append(cs.deleted, p)
		}
	}
	sortChangeSet(cs)
	return cs, nil
}

// gate classifies one candidate path against the indexed-paths set. This
// is the uniform idempotency rule: a path already indexed with an equal
// mtime is ignored; newer mtime means modified; unknown paths are added.
func (ix *Indexer) gate(relPath string, states map[string]store.PathState, cs *changeSet) {
	info, err := os.Stat(filepath.Join(ix.root, filepath.FromSlash(relPath)))
	if err != nil {
		// Reported as changed but already gone; delete if indexed.
		if _, ok := states[relPath]; ok {
			cs.deleted = append(cs.deleted, relPath)
		}
		return
	}
	gateMeta(relPath, info.ModTime().UnixNano(), states, cs)
}

func gateMeta(relPath string, mtimeNs int64, states map[string]store.PathState, cs *changeSet) {
	prior, ok := states[relPath]
	switch {
	case !ok:
		cs.added = append(cs.added, relPath)
	case mtimeNs > prior.MtimeNs:
		cs.modified = append(cs.modified, relPath)
	}
}

// sortChangeSet keeps build application deterministic.
func sortChangeSet(cs *changeSet) {
	sort.Strings(cs.added)
	sort.Strings(cs.modified)
	sort.Strings(cs.deleted)
}

// collectFiles materializes the walk.
func (ix *Indexer) collectFiles(ctx context.Context, opts Options) ([]*scanner.FileMeta, error) {
	results, err := ix.scanner.Walk(ctx, scanner.Options{
		Root:        ix.root,
		MaxFileSize: opts.MaxFileSize,
		Exclude:     opts.Exclude,
	})
	if err != nil {
		return nil, nserr.IO("walk tree", err)
	}

	var files []*scanner.FileMeta
	for r := range results {
		if r.Err != nil {
			return nil, nserr.IO("walk tree", r.Err)
		}
		files = append(files, r.File)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// statFile builds a FileMeta for a change-detected path, applying the
// same exclusion the walker would. Returns nil when the file should be
// skipped.
func (ix *Indexer) statFile(relPath string) *scanner.FileMeta {
	abs := filepath.Join(ix.root, filepath.FromSlash(relPath))
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return nil
	}
	return &scanner.FileMeta{
		Path:    relPath,
		AbsPath: abs,
		Size:    info.Size(),
		MtimeNs: info.ModTime().UnixNano(),
	}
}

// writeFiles runs the read+extract worker pool and feeds the single
// writer over a bounded channel. Per-file errors are logged and skipped;
// a store error aborts the build.
func (ix *Indexer) writeFiles(ctx context.Context, w *store.Writer, files []*scanner.FileMeta, opts Options) (written int, totalBytes int64, skipped int, err error) {
	if len(files) == 0 {
		return 0, 0, 0, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(files) {
		workers = len(files)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = config.DefaultMaxFileSize
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	filesCh := make(chan *scanner.FileMeta)
	docsCh := make(chan *store.Document, workers*2)
	var skippedCount atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(filesCh)
		for _, f := range files {
			select {
			case filesCh <- f:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			ext := symbols.NewExtractor()
			defer ext.Close()

			for f := range filesCh {
				doc, readErr := readDocument(ext, f, maxSize)
				if readErr != nil {
					skippedCount.Add(1)
					slog.Debug("file_skipped",
						slog.String("path", f.Path),
						slog.String("error", readErr.Error()))
					continue
				}
				select {
				case docsCh <- doc:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	poolDone := make(chan error, 1)
	go func() {
		poolDone <- g.Wait()
		close(docsCh)
	}()

	for doc := range docsCh {
		if insErr := w.Insert(doc); insErr != nil {
			cancel()
			for range docsCh {
				// drain so the pool can exit
			}
			<-poolDone
			return 0, 0, 0, insErr
		}
		written++
		totalBytes += doc.SizeBytes
		if opts.Progress != nil {
			opts.Progress(written, len(files))
		}
	}

	if poolErr := <-poolDone; poolErr != nil {
		return 0, 0, 0, poolErr
	}
	return written, totalBytes, int(skippedCount.Load()), nil
}

// readDocument reads and extracts one file into a document. Errors here
// are per-file: the caller logs and skips.
func readDocument(ext *symbols.Extractor, f *scanner.FileMeta, maxSize int64) (*store.Document, error) {
	if f.Size > maxSize {
		return nil, nserr.IO("file exceeds size cap", nil)
	}

	data, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return nil, nserr.IO("read file", err)
	}
	if scanner.LooksBinary(data) {
		return nil, nserr.Decode("binary file")
	}

	names := ext.ExtractFile(f.Path, data)

	return &store.Document{
		Path:        f.Path,
		Content:     strings.ToValidUTF8(string(data), "�"),
		Symbols:     strings.Join(names, " "),
		Lang:        symbols.Detect(f.Path),
		SizeBytes:   f.Size,
		MtimeNs:     f.MtimeNs,
		IndexedAtNs: time.Now().UnixNano(),
	}, nil
}
