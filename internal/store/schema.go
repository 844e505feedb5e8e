package store

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	_ "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword" // keyword analyzer registration
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Field names of the indexed document. These are also the JSON keys used
// by search output where fields are surfaced.
const (
	FieldPath      = "path"
	FieldContent   = "content"
	FieldSymbols   = "symbols"
	FieldLang      = "lang"
	FieldSizeBytes = "size_bytes"
	FieldMtimeNs   = "mtime_ns"
	FieldIndexedNs = "indexed_at_ns"
)

// TextAnalyzerName is the analyzer used for content and symbols:
// unicode word segmentation plus lowercasing. No stemming, no stop
// words — a query term matches exactly what the file contains.
const TextAnalyzerName = "ns_text"

// Query-time field weights. The symbols weight is the sole mechanism
// behind the documented 3x symbol boost.
const (
	ContentWeight = 1.0
	SymbolsWeight = 3.0
)

// SchemaVersion is bumped when the mapping changes incompatibly; a
// mismatch against the meta record forces a full rebuild.
const SchemaVersion = 1

// buildIndexMapping creates the bleve mapping for the file index.
func buildIndexMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()

	err := im.AddCustomAnalyzer(TextAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("add analyzer: %w", err)
	}

	doc := bleve.NewDocumentMapping()

	// path is untokenized so exact-match delete is well defined.
	pathField := bleve.NewKeywordFieldMapping()
	pathField.Store = true
	pathField.IncludeInAll = false
	doc.AddFieldMappingsAt(FieldPath, pathField)

	// content is the primary BM25 field. Not stored: context lines are
	// re-read from disk at search time.
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = TextAnalyzerName
	contentField.Store = false
	contentField.IncludeInAll = false
	doc.AddFieldMappingsAt(FieldContent, contentField)

	// symbols is stored for matched-symbol attribution.
	symbolsField := bleve.NewTextFieldMapping()
	symbolsField.Analyzer = TextAnalyzerName
	symbolsField.Store = true
	symbolsField.IncludeInAll = false
	doc.AddFieldMappingsAt(FieldSymbols, symbolsField)

	langField := bleve.NewKeywordFieldMapping()
	langField.Store = true
	langField.IncludeInAll = false
	doc.AddFieldMappingsAt(FieldLang, langField)

	// Stored-only bookkeeping fields. Kept as strings: bleve returns
	// stored numerics as float64, which cannot represent nanosecond
	// timestamps exactly.
	for _, name := range []string{FieldSizeBytes, FieldMtimeNs, FieldIndexedNs} {
		f := bleve.NewKeywordFieldMapping()
		f.Store = true
		f.Index = false
		f.IncludeInAll = false
		doc.AddFieldMappingsAt(name, f)
	}

	im.DefaultMapping = doc
	im.DefaultAnalyzer = TextAnalyzerName
	return im, nil
}
