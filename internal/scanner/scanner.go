// Package scanner enumerates indexable files under a repository root. It
// honors gitignore-style rules, skips the index directory, large files,
// binaries, and symlinks that escape the root, and emits repo-relative
// slash-form paths.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nsearch/ns/internal/config"
	"github.com/nsearch/ns/internal/gitignore"
)

// matcherCacheSize bounds the per-directory ignore matcher cache.
const matcherCacheSize = 1000

// sniffLen is how much of a file the binary heuristic reads.
const sniffLen = 8 * 1024

// binaryCheckLen is the prefix in which an invalid byte classifies the
// file as binary.
const binaryCheckLen = 1024

// ignoreFileNames are the per-directory ignore files honored by the walk.
var ignoreFileNames = []string{".gitignore", ".ignore"}

// FileMeta describes a candidate file.
type FileMeta struct {
	// Path is relative to the root, slash-form.
	Path string
	// AbsPath is the absolute path on disk.
	AbsPath string
	// Size is the file size in bytes.
	Size int64
	// MtimeNs is the modification time in nanoseconds since epoch.
	MtimeNs int64
}

// Result is one walk emission.
type Result struct {
	File *FileMeta
	Err  error
}

// Options configures a walk.
type Options struct {
	// Root is the repository root (absolute).
	Root string
	// MaxFileSize is the size cap in bytes (0 = config default).
	MaxFileSize int64
	// Exclude holds extra ignore patterns from configuration, applied
	// from the root.
	Exclude []string
}

// Scanner walks directories and applies the ignore stack. Matchers are
// cached per directory with LRU eviction.
type Scanner struct {
	matcherCache *lru.Cache[string, *gitignore.Matcher]
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](matcherCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create matcher cache: %w", err)
	}
	return &Scanner{matcherCache: cache}, nil
}

// Walk streams candidate files under opts.Root. The channel closes when
// the walk finishes; the sequence is not restartable, so a consumer that
// needs two passes must materialize it.
func (s *Scanner) Walk(ctx context.Context, opts Options) (<-chan Result, error) {
	absRoot, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = config.DefaultMaxFileSize
	}

	var extra *gitignore.Matcher
	if len(opts.Exclude) > 0 {
		extra = gitignore.New()
		for _, p := range opts.Exclude {
			extra.AddPattern(p)
		}
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, maxSize, extra, results)
	}()
	return results, nil
}

// walk performs the directory traversal.
func (s *Scanner) walk(ctx context.Context, absRoot string, maxSize int64, extra *gitignore.Matcher, results chan<- Result) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // skip entries we cannot access
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if s.shouldSkipDir(relPath, absRoot, extra) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are only followed when the target stays under root.
		if d.Type()&fs.ModeSymlink != 0 {
			if !symlinkInsideRoot(path, absRoot) {
				return nil
			}
		}

		if s.isIgnored(relPath, absRoot, false) {
			return nil
		}
		if extra != nil && extra.Match(relPath, false) {
			return nil
		}

		info, err := os.Stat(path) // follows symlinks kept above
		if err != nil || info.IsDir() {
			return nil
		}
		if info.Size() > maxSize {
			return nil
		}
		if isBinary(path) {
			return nil
		}

		file := &FileMeta{
			Path:    relPath,
			AbsPath: path,
			Size:    info.Size(),
			MtimeNs: info.ModTime().UnixNano(),
		}

		select {
		case results <- Result{File: file}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- Result{Err: err}:
		default:
		}
	}
}

// shouldSkipDir prunes directories that never contribute files.
func (s *Scanner) shouldSkipDir(relPath, absRoot string, extra *gitignore.Matcher) bool {
	base := filepath.Base(relPath)

	// The index directory and VCS metadata are skipped unconditionally.
	if base == config.DataDirName || base == ".git" {
		return true
	}
	if s.isIgnored(relPath, absRoot, true) {
		return true
	}
	if extra != nil && extra.Match(relPath, true) {
		return true
	}
	return false
}

// isIgnored checks relPath against the ignore files of the root and of
// every ancestor directory on the path.
func (s *Scanner) isIgnored(relPath, absRoot string, isDir bool) bool {
	if m := s.matcherFor(absRoot, ""); m != nil && m.Match(relPath, isDir) {
		return true
	}

	dir := filepath.Dir(relPath)
	if dir == "." {
		return false
	}

	currentDir := absRoot
	currentBase := ""
	for _, part := range strings.Split(dir, "/") {
		currentDir = filepath.Join(currentDir, part)
		if currentBase == "" {
			currentBase = part
		} else {
			currentBase = currentBase + "/" + part
		}
		if m := s.matcherFor(currentDir, currentBase); m != nil && m.Match(relPath, isDir) {
			return true
		}
	}
	return false
}

// matcherFor returns the cached ignore matcher for a directory, or nil
// when the directory has no ignore files.
func (s *Scanner) matcherFor(dir, base string) *gitignore.Matcher {
	if m, ok := s.matcherCache.Get(dir); ok {
		if m.Len() == 0 {
			return nil
		}
		return m
	}

	m := gitignore.New()
	for _, name := range ignoreFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = m.AddFromFile(path, base)
	}

	s.matcherCache.Add(dir, m)
	if m.Len() == 0 {
		return nil
	}
	return m
}

// InvalidateCache clears cached matchers after ignore files change.
func (s *Scanner) InvalidateCache() {
	s.matcherCache.Purge()
}

// symlinkInsideRoot reports whether a symlink resolves to a target under
// root.
func symlinkInsideRoot(path, absRoot string) bool {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	resolvedRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		resolvedRoot = absRoot
	}
	return target == resolvedRoot || strings.HasPrefix(target, resolvedRoot+string(filepath.Separator))
}

// isBinary applies the UTF-8 heuristic: decode the head of the file and
// classify as binary when an invalid byte appears in the first kilobyte.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, sniffLen)
	n, err := f.Read(buf)
	if n <= 0 {
		return false
	}
	_ = err
	return LooksBinary(buf[:n])
}

// LooksBinary applies the UTF-8 heuristic to an already-read prefix.
// Callers should pass up to the first 8 KiB of the file.
func LooksBinary(data []byte) bool {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return invalidInPrefix(data, binaryCheckLen)
}

// invalidInPrefix reports whether data contains an invalid UTF-8 byte
// within the first limit bytes. A rune truncated by the read boundary is
// not counted as invalid.
func invalidInPrefix(data []byte, limit int) bool {
	i := 0
	for i < len(data) && i < limit {
		if data[i] == 0 {
			return true
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			// Incomplete rune at the end of the buffer is a read
			// artifact, not corruption.
			if !utf8.FullRune(data[i:]) && len(data)-i < utf8.UTFMax {
				return false
			}
			return true
		}
		i += size
	}
	return false
}
