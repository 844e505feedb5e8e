package symbols

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/elixir"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language tags. Files whose extension is not in the mapping get LangText
// and never produce symbols.
const (
	LangRust       = "rust"
	LangTypeScript = "typescript"
	LangJavaScript = "javascript"
	LangPython     = "python"
	LangGo         = "go"
	LangElixir     = "elixir"
	LangText       = "text"
)

// extToLang is the fixed extension mapping. The same extension always maps
// to the same tag.
var extToLang = map[string]string{
	".rs":  LangRust,
	".ts":  LangTypeScript,
	".tsx": LangTypeScript,
	".mts": LangTypeScript,
	".cts": LangTypeScript,
	".js":  LangJavaScript,
	".jsx": LangJavaScript,
	".mjs": LangJavaScript,
	".cjs": LangJavaScript,
	".py":  LangPython,
	".pyi": LangPython,
	".go":  LangGo,
	".ex":  LangElixir,
	".exs": LangElixir,
}

// Detect returns the language tag for a file path.
func Detect(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extToLang[ext]; ok {
		return lang
	}
	return LangText
}

// Supported reports whether a language tag is in the extraction set.
func Supported(lang string) bool {
	_, ok := grammars[lang]
	return ok
}

// Tags returns the supported language tags.
func Tags() []string {
	return []string{LangRust, LangTypeScript, LangJavaScript, LangPython, LangGo, LangElixir}
}

// grammars maps a language tag to its default tree-sitter grammar.
var grammars = map[string]*sitter.Language{
	LangRust:       rust.GetLanguage(),
	LangTypeScript: typescript.GetLanguage(),
	LangJavaScript: javascript.GetLanguage(),
	LangPython:     python.GetLanguage(),
	LangGo:         golang.GetLanguage(),
	LangElixir:     elixir.GetLanguage(),
}

// grammarFor resolves the grammar for a language, honoring the extension
// where one tag spans two grammars: .tsx needs the tsx grammar because
// JSX elements do not parse under the plain typescript grammar. The
// javascript grammar handles .jsx natively.
func grammarFor(lang, ext string) *sitter.Language {
	if lang == LangTypeScript && ext == ".tsx" {
		return tsx.GetLanguage()
	}
	return grammars[lang]
}
