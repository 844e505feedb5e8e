// Package symbols extracts symbol names from source files. Extraction is
// dispatched by language tag over a fixed set of tree-sitter grammars and
// is pure: no I/O, no shared state, and never an error. Source the parser
// cannot build a tree for yields an empty list; malformed source that still
// parses yields the definitions found in the recovered tree.
package symbols

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Extractor parses source and extracts symbol names. An Extractor owns a
// tree-sitter parser and is not safe for concurrent use; create one per
// worker.
type Extractor struct {
	parser *sitter.Parser
}

// NewExtractor creates a symbol extractor.
func NewExtractor() *Extractor {
	return &Extractor{parser: sitter.NewParser()}
}

// Close releases parser resources.
func (e *Extractor) Close() {
	if e.parser != nil {
		e.parser.Close()
	}
}

// Extract returns the symbol names defined in source, in source order,
// duplicates permitted. Unsupported languages and unparseable source
// yield an empty list.
func (e *Extractor) Extract(lang string, source []byte) []string {
	return e.extract(lang, "", source)
}

// ExtractFile is Extract with grammar selection refined by the file's
// extension (".tsx" files need the tsx grammar).
func (e *Extractor) ExtractFile(path string, source []byte) []string {
	ext := strings.ToLower(filepath.Ext(path))
	return e.extract(Detect(path), ext, source)
}

func (e *Extractor) extract(lang, ext string, source []byte) []string {
	grammar := grammarFor(lang, ext)
	if grammar == nil {
		return nil
	}

	root := parse(e.parser, grammar, source)
	if root == nil {
		return nil
	}

	var names []string
	emit := func(name string) {
		if name != "" {
			names = append(names, name)
		}
	}

	switch lang {
	case LangRust:
		visitRust(root, source, emit)
	case LangTypeScript:
		visitScript(root, source, true, true, emit)
	case LangJavaScript:
		visitScript(root, source, true, false, emit)
	case LangPython:
		visitPython(root, source, emit)
	case LangGo:
		visitGo(root, source, emit)
	case LangElixir:
		visitElixir(root, source, nil, emit)
	}

	return names
}

// visitRust extracts functions, structs, enums, traits, impl target
// types, constants, and type aliases.
func visitRust(n *Node, source []byte, emit func(string)) {
	switch n.Type {
	case "function_item", "const_item", "static_item":
		emit(childContent(n, source, "identifier"))
	case "struct_item", "enum_item", "trait_item", "type_item", "union_item":
		emit(childContent(n, source, "type_identifier"))
	case "impl_item":
		emit(rustImplTarget(n, source))
	}

	for _, child := range n.Children {
		visitRust(child, source, emit)
	}
}

// rustImplTarget returns the implementing type of an impl block. For
// "impl Trait for Type" that is the type after the for keyword, otherwise
// the first type in the header.
func rustImplTarget(n *Node, source []byte) string {
	var name string
	for _, child := range n.Children {
		switch child.Type {
		case "type_identifier":
			name = child.GetContent(source)
		case "generic_type", "scoped_type_identifier", "reference_type":
			if t := child.FindDescendantByType("type_identifier"); t != nil {
				name = t.GetContent(source)
			}
		case "declaration_list":
			// Body reached; the last type seen is the target.
			return name
		}
	}
	return name
}

// visitScript extracts from TypeScript and JavaScript trees. fileScope
// tracks whether n itself is at file scope, which gates constant
// extraction: only declarations at file scope count as top-level
// constants. typed enables the TS-only node kinds.
func visitScript(n *Node, source []byte, fileScope, typed bool, emit func(string)) {
	switch n.Type {
	case "function_declaration", "generator_function_declaration":
		emit(childContent(n, source, "identifier"))
	case "class_declaration", "abstract_class_declaration":
		emit(childContent(n, source, "type_identifier", "identifier"))
	case "method_definition":
		emit(childContent(n, source, "property_identifier"))
	case "interface_declaration", "type_alias_declaration":
		if typed {
			emit(childContent(n, source, "type_identifier"))
		}
	case "enum_declaration":
		if typed {
			emit(childContent(n, source, "identifier"))
		}
	case "lexical_declaration":
		if fileScope && n.FindChildByType("const") != nil {
			for _, child := range n.Children {
				if child.Type == "variable_declarator" {
					emit(childContent(child, source, "identifier"))
				}
			}
		}
	}

	for _, child := range n.Children {
		// export statements pass file scope through to the wrapped
		// declaration; everything else ends it.
		childScope := n.Type == "program" || (fileScope && n.Type == "export_statement")
		visitScript(child, source, childScope, typed, emit)
	}
}

// visitPython extracts functions and classes. Decorated definitions are
// found through the ordinary walk since the definition node is a child of
// the decorator wrapper.
func visitPython(n *Node, source []byte, emit func(string)) {
	switch n.Type {
	case "function_definition", "class_definition":
		emit(childContent(n, source, "identifier"))
	}

	for _, child := range n.Children {
		visitPython(child, source, emit)
	}
}

// visitGo extracts functions, methods, type declarations, and constants.
func visitGo(n *Node, source []byte, emit func(string)) {
	switch n.Type {
	case "function_declaration":
		emit(childContent(n, source, "identifier"))
	case "method_declaration":
		emit(childContent(n, source, "field_identifier"))
	case "type_declaration":
		for _, spec := range n.Children {
			if spec.Type == "type_spec" || spec.Type == "type_alias" {
				emit(childContent(spec, source, "type_identifier"))
			}
		}
	case "const_declaration":
		for _, spec := range n.Children {
			if spec.Type == "const_spec" {
				for _, id := range spec.Children {
					if id.Type == "identifier" {
						emit(id.GetContent(source))
					}
				}
			}
		}
	}

	for _, child := range n.Children {
		visitGo(child, source, emit)
	}
}

// elixirDefKinds are the call targets that define symbols.
var elixirDefKinds = map[string]bool{
	"defmodule":   true,
	"defprotocol": true,
	"defimpl":     true,
	"def":         true,
	"defp":        true,
	"defmacro":    true,
	"defmacrop":   true,
	"defguard":    true,
	"defguardp":   true,
	"defdelegate": true,
	"defstruct":   true,
}

// visitElixir extracts modules, defs, defps, macros, protocols, impls,
// guards, delegates, and structs. Elixir definitions are all calls, so we
// look at the call target and pull the name out of the arguments. The
// module stack attributes defstruct to its enclosing module; it scopes to
// the module body, so siblings never see it.
func visitElixir(n *Node, source []byte, modules []string, emit func(string)) {
	childModules := modules

	if n.Type == "call" {
		if kind := elixirCallTarget(n, source); elixirDefKinds[kind] {
			switch kind {
			case "defmodule", "defprotocol", "defimpl":
				if name := elixirAliasName(n, source); name != "" {
					emit(name)
					// Full-capacity slice so sibling appends cannot alias.
					childModules = append(modules[:len(modules):len(modules)], name)
				}
			case "defstruct":
				// A struct takes its enclosing module's name.
				if len(modules) > 0 {
					emit(modules[len(modules)-1])
				}
			default:
				emit(elixirDefName(n, source))
			}
		}
	}

	for _, child := range n.Children {
		visitElixir(child, source, childModules, emit)
	}
}

// elixirCallTarget returns the identifier a call dispatches to, e.g.
// "def" for `def foo do ... end`.
func elixirCallTarget(n *Node, source []byte) string {
	if len(n.Children) == 0 {
		return ""
	}
	if n.Children[0].Type == "identifier" {
		return n.Children[0].GetContent(source)
	}
	return ""
}

// elixirAliasName extracts the module alias from a defmodule-style call.
func elixirAliasName(n *Node, source []byte) string {
	args := n.FindChildByType("arguments")
	if args == nil {
		return ""
	}
	if alias := args.FindDescendantByType("alias"); alias != nil {
		return alias.GetContent(source)
	}
	return ""
}

// elixirDefName extracts the function/macro/guard name from a def-style
// call. The head is either a nested call (`def foo(a)`), a bare
// identifier (`def foo`), or a when-guarded binary operator whose left
// side holds the head.
func elixirDefName(n *Node, source []byte) string {
	args := n.FindChildByType("arguments")
	if args == nil {
		return ""
	}
	for _, arg := range args.Children {
		switch arg.Type {
		case "call":
			return elixirCallTarget(arg, source)
		case "identifier":
			return arg.GetContent(source)
		case "binary_operator":
			if head := arg.FindDescendantByType("call"); head != nil {
				return elixirCallTarget(head, source)
			}
			if id := arg.FindDescendantByType("identifier"); id != nil {
				return id.GetContent(source)
			}
		}
	}
	return ""
}

// childContent returns the content of the first direct child matching any
// of the given types.
func childContent(n *Node, source []byte, types ...string) string {
	for _, t := range types {
		if child := n.FindChildByType(t); child != nil {
			return child.GetContent(source)
		}
	}
	return ""
}
