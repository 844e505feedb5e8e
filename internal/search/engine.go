// Package search executes ranked queries against the store. It builds
// the boosted term disjunction, applies filters, extracts context lines,
// and attributes matched symbols.
package search

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/hbollon/go-edlib"

	nserr "github.com/nsearch/ns/internal/errors"
	"github.com/nsearch/ns/internal/store"
	"github.com/nsearch/ns/internal/symbols"
)

// DefaultMaxResults is the default result cap.
const DefaultMaxResults = 10

// DefaultContextLines is the default context window around matched lines.
const DefaultContextLines = 1

// fuzzyMinTermLen is the minimum term length eligible for fuzzy matching.
const fuzzyMinTermLen = 3

// Query is a parsed query specification.
type Query struct {
	// Terms are the whitespace-tokenized search terms.
	Terms []string
	// LangFilter restricts results to one language tag.
	LangFilter string
	// GlobFilter is a path glob applied post-retrieval.
	GlobFilter string
	// SymbolOnly searches only the symbols field.
	SymbolOnly bool
	// Fuzzy permits Levenshtein distance 1 per term (0 below 3 chars).
	Fuzzy bool
	// MaxResults caps returned results (0 = DefaultMaxResults).
	MaxResults int
	// ContextLines is the window around matched lines; 0 disables
	// context extraction.
	ContextLines int
	// PathsOnly omits the content scan entirely.
	PathsOnly bool
}

// Line is one emitted context line.
type Line struct {
	Num  int    `json:"num"`
	Text string `json:"text"`
}

// Result is one ranked hit.
type Result struct {
	Path           string   `json:"path"`
	Score          float64  `json:"score"`
	Lang           string   `json:"lang"`
	MatchedSymbols []string `json:"matched_symbols"`
	Lines          []Line   `json:"lines"`
}

// Stats carries query statistics.
type Stats struct {
	TotalResults  int   `json:"total_results"`
	FilesSearched int   `json:"files_searched"`
	ElapsedMs     int64 `json:"elapsed_ms"`
}

// Report is the complete query answer.
type Report struct {
	Results []Result `json:"results"`
	Stats   Stats    `json:"stats"`
}

// Engine executes queries against one store.
type Engine struct {
	store *store.Store
}

// New creates an Engine.
func New(st *store.Store) *Engine {
	return &Engine{store: st}
}

// Search runs one query. An empty result set is not an error.
func (e *Engine) Search(ctx context.Context, q Query) (*Report, error) {
	start := time.Now()

	if err := validate(&q); err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequest(e.buildQuery(q))
	req.Size = fetchSize(q)
	req.Fields = []string{store.FieldSymbols, store.FieldLang}
	// Ties break on path so output is deterministic.
	req.SortBy([]string{"-_score", "_id"})

	res, err := e.store.Index().SearchInContext(ctx, req)
	if err != nil {
		return nil, nserr.Store("execute query", err)
	}

	results := make([]Result, 0, q.MaxResults)
	for _, hit := range res.Hits {
		if len(results) >= q.MaxResults {
			break
		}
		if q.GlobFilter != "" {
			if ok, _ := doublestar.Match(q.GlobFilter, hit.ID); !ok {
				continue
			}
		}

		r := Result{
			Path:           hit.ID,
			Score:          hit.Score,
			Lang:           storedString(hit.Fields, store.FieldLang),
			MatchedSymbols: matchedSymbols(q, storedString(hit.Fields, store.FieldSymbols)),
			Lines:          []Line{},
		}
		if q.ContextLines > 0 && !q.PathsOnly {
			r.Lines = e.contextLines(hit.ID, q)
		}
		results = append(results, r)
	}

	count, err := e.store.DocCount()
	if err != nil {
		return nil, err
	}

	return &Report{
		Results: results,
		Stats: Stats{
			TotalResults:  len(results),
			FilesSearched: int(count),
			ElapsedMs:     time.Since(start).Milliseconds(),
		},
	}, nil
}

// validate normalizes the query and rejects bad specs. Terms keep their
// original case for reporting; matching folds at the comparison sites.
func validate(q *Query) error {
	terms := make([]string, 0, len(q.Terms))
	for _, t := range q.Terms {
		terms = append(terms, strings.Fields(t)...)
	}
	if len(terms) == 0 {
		return nserr.Config("query requires at least one term", nil)
	}
	q.Terms = terms

	if q.LangFilter != "" {
		q.LangFilter = strings.ToLower(q.LangFilter)
		if !validLang(q.LangFilter) {
			return nserr.Config("unknown language filter: "+q.LangFilter, nil)
		}
	}
	if q.GlobFilter != "" && !doublestar.ValidatePattern(q.GlobFilter) {
		return nserr.Config("bad glob pattern: "+q.GlobFilter, nil)
	}

	if q.MaxResults <= 0 {
		q.MaxResults = DefaultMaxResults
	}
	if q.ContextLines < 0 {
		q.ContextLines = DefaultContextLines
	}
	return nil
}

func validLang(lang string) bool {
	if lang == symbols.LangText {
		return true
	}
	for _, tag := range symbols.Tags() {
		if lang == tag {
			return true
		}
	}
	return false
}

// buildQuery constructs the boosted disjunction: each term matches
// content (weight 1.0) and symbols (weight 3.0), or symbols alone in
// symbol-only mode. The language filter joins as a mandatory term.
func (e *Engine) buildQuery(q Query) query.Query {
	var termQueries []query.Query
	for _, raw := range q.Terms {
		term := strings.ToLower(raw)
		sym := bleve.NewMatchQuery(term)
		sym.SetField(store.FieldSymbols)
		sym.SetBoost(store.SymbolsWeight)
		if q.Fuzzy && len(term) >= fuzzyMinTermLen {
			sym.SetFuzziness(1)
		}
		termQueries = append(termQueries, sym)

		if !q.SymbolOnly {
			content := bleve.NewMatchQuery(term)
			content.SetField(store.FieldContent)
			content.SetBoost(store.ContentWeight)
			if q.Fuzzy && len(term) >= fuzzyMinTermLen {
				content.SetFuzziness(1)
			}
			termQueries = append(termQueries, content)
		}
	}

	disjunction := bleve.NewDisjunctionQuery(termQueries...)
	if q.LangFilter == "" {
		return disjunction
	}

	lang := bleve.NewTermQuery(q.LangFilter)
	lang.SetField(store.FieldLang)
	return bleve.NewConjunctionQuery(disjunction, lang)
}

// fetchSize widens retrieval when a post-retrieval glob filter may drop
// hits.
func fetchSize(q Query) int {
	if q.GlobFilter == "" {
		return q.MaxResults
	}
	size := q.MaxResults * 10
	if size < 100 {
		size = 100
	}
	return size
}

// matchedSymbols returns the subset of query terms present in the stored
// symbols, in query order. Under fuzzy, distance 1 counts for terms of
// three or more characters.
func matchedSymbols(q Query, symbolField string) []string {
	matched := []string{}
	if symbolField == "" {
		return matched
	}

	names := strings.Fields(symbolField)
	for _, raw := range q.Terms {
		term := strings.ToLower(raw)
		for _, name := range names {
			lower := strings.ToLower(name)
			if lower == term || (q.Fuzzy && len(term) >= fuzzyMinTermLen && edlib.LevenshteinDistance(lower, term) <= 1) {
				matched = append(matched, raw)
				break
			}
		}
	}
	return matched
}

// contextLines re-reads the file and emits matched lines with the
// configured window, merging overlaps. A file that vanished between
// commit and search degrades to no context.
func (e *Engine) contextLines(relPath string, q Query) []Line {
	data, err := os.ReadFile(filepath.Join(e.store.Root(), filepath.FromSlash(relPath)))
	if err != nil {
		return []Line{}
	}

	terms := make([]string, len(q.Terms))
	for i, t := range q.Terms {
		terms[i] = strings.ToLower(t)
	}

	lines := strings.Split(string(data), "\n")
	var matchedNums []int
	for i, line := range lines {
		lower := strings.ToLower(line)
		for _, term := range terms {
			if strings.Contains(lower, term) {
				matchedNums = append(matchedNums, i)
				break
			}
		}
	}
	if len(matchedNums) == 0 {
		return []Line{}
	}

	// Expand each match into its window, then merge.
	include := make(map[int]struct{})
	for _, n := range matchedNums {
		for d := n - q.ContextLines; d <= n+q.ContextLines; d++ {
			if d >= 0 && d < len(lines) {
				include[d] = struct{}{}
			}
		}
	}

	nums := make([]int, 0, len(include))
	for n := range include {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	out := make([]Line, 0, len(nums))
	for _, n := range nums {
		out = append(out, Line{Num: n + 1, Text: lines[n]})
	}
	return out
}

// storedString reads a stored text field from a hit.
func storedString(fields map[string]interface{}, name string) string {
	if s, ok := fields[name].(string); ok {
		return s
	}
	return ""
}
