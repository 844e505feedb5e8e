package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "src/lib.rs", want: LangRust},
		{path: "app.ts", want: LangTypeScript},
		{path: "App.tsx", want: LangTypeScript},
		{path: "mod.mts", want: LangTypeScript},
		{path: "mod.cts", want: LangTypeScript},
		{path: "index.js", want: LangJavaScript},
		{path: "Widget.jsx", want: LangJavaScript},
		{path: "esm.mjs", want: LangJavaScript},
		{path: "cjs.cjs", want: LangJavaScript},
		{path: "script.py", want: LangPython},
		{path: "stubs.pyi", want: LangPython},
		{path: "main.go", want: LangGo},
		{path: "lib/app.ex", want: LangElixir},
		{path: "scripts/run.exs", want: LangElixir},
		{path: "README.md", want: LangText},
		{path: "Makefile", want: LangText},
		{path: "noext", want: LangText},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.path))
		})
	}
}

func TestDetect_SameExtensionAlwaysSameTag(t *testing.T) {
	assert.Equal(t, Detect("a/b/x.rs"), Detect("y.rs"))
	assert.Equal(t, Detect("deep/nested/thing.ex"), Detect("thing.ex"))
}

func TestExtract_Go(t *testing.T) {
	src := []byte(`package demo

const MaxRetries = 3

type Client struct{}

type Encoder interface{}

func Connect() *Client { return nil }

func (c *Client) Close() error { return nil }
`)

	ext := NewExtractor()
	defer ext.Close()
	names := ext.Extract(LangGo, src)

	assert.Equal(t, []string{"MaxRetries", "Client", "Encoder", "Connect", "Close"}, names)
}

func TestExtract_Rust(t *testing.T) {
	src := []byte(`pub const LIMIT: usize = 10;

pub struct EventStore {
    events: Vec<u8>,
}

pub enum Kind { A, B }

pub trait Reader {
    fn read(&self) -> u8;
}

type Alias = EventStore;

impl EventStore {
    pub fn open() -> Self { Self { events: vec![] } }
}

impl Reader for EventStore {
    fn read(&self) -> u8 { 0 }
}

fn helper() {}
`)

	ext := NewExtractor()
	defer ext.Close()
	names := ext.Extract(LangRust, src)

	// Functions, struct, enum, trait, impl targets, constant, alias —
	// in source order, duplicates permitted.
	assert.Contains(t, names, "LIMIT")
	assert.Contains(t, names, "EventStore")
	assert.Contains(t, names, "Kind")
	assert.Contains(t, names, "Reader")
	assert.Contains(t, names, "Alias")
	assert.Contains(t, names, "open")
	assert.Contains(t, names, "read")
	assert.Contains(t, names, "helper")
	// Both impl blocks contribute their target type.
	count := 0
	for _, n := range names {
		if n == "EventStore" {
			count++
		}
	}
	assert.GreaterOrEqual(t, count, 3, "struct + two impl targets")
}

func TestExtract_TypeScript(t *testing.T) {
	src := []byte(`export const API_URL = "https://example.com";

export interface User {
  id: number;
}

type Handler = (u: User) => void;

enum Color { Red, Green }

export class Service {
  start(): void {}
}

export function createService(): Service {
  const local = 1;
  return new Service();
}
`)

	ext := NewExtractor()
	defer ext.Close()
	names := ext.Extract(LangTypeScript, src)

	assert.Contains(t, names, "API_URL")
	assert.Contains(t, names, "User")
	assert.Contains(t, names, "Handler")
	assert.Contains(t, names, "Color")
	assert.Contains(t, names, "Service")
	assert.Contains(t, names, "start")
	assert.Contains(t, names, "createService")
	// Constants below file scope are not symbols.
	assert.NotContains(t, names, "local")
}

func TestExtract_JavaScript(t *testing.T) {
	src := []byte(`const VERSION = "1.0";

class Parser {
  parse(input) { return input; }
}

function tokenize(s) {
  const inner = s.trim();
  return inner;
}

const handler = (req) => req;
`)

	ext := NewExtractor()
	defer ext.Close()
	names := ext.Extract(LangJavaScript, src)

	assert.Contains(t, names, "VERSION")
	assert.Contains(t, names, "Parser")
	assert.Contains(t, names, "parse")
	assert.Contains(t, names, "tokenize")
	assert.Contains(t, names, "handler")
	assert.NotContains(t, names, "inner")
}

func TestExtract_Python(t *testing.T) {
	src := []byte(`import functools

class Repository:
    def save(self, item):
        pass

@functools.cache
def load_config():
    return {}

def main():
    pass
`)

	ext := NewExtractor()
	defer ext.Close()
	names := ext.Extract(LangPython, src)

	assert.Equal(t, []string{"Repository", "save", "load_config", "main"}, names)
}

func TestExtract_Elixir(t *testing.T) {
	src := []byte(`defmodule MyApp.Store do
  defstruct [:events]

  def open(path) do
    path
  end

  defp validate(path), do: path

  defmacro wrapped(expr) do
    expr
  end

  defguard is_key(k) when is_atom(k)

  defdelegate size(store), to: Map
end

defprotocol MyApp.Reader do
  def read(source)
end
`)

	ext := NewExtractor()
	defer ext.Close()
	names := ext.Extract(LangElixir, src)

	assert.Contains(t, names, "MyApp.Store")
	assert.Contains(t, names, "open")
	assert.Contains(t, names, "validate")
	assert.Contains(t, names, "wrapped")
	assert.Contains(t, names, "is_key")
	assert.Contains(t, names, "size")
	assert.Contains(t, names, "MyApp.Reader")
	assert.Contains(t, names, "read")
	// defstruct attributes to the enclosing module.
	count := 0
	for _, n := range names {
		if n == "MyApp.Store" {
			count++
		}
	}
	assert.GreaterOrEqual(t, count, 2)
}

func TestExtract_MalformedSourceNeverFails(t *testing.T) {
	ext := NewExtractor()
	defer ext.Close()

	// Tree-sitter is error-tolerant, so even garbage yields a tree; the
	// contract is simply that extraction never fails.
	assert.NotPanics(t, func() {
		_ = ext.Extract(LangGo, []byte("func func func {{{"))
		_ = ext.Extract(LangRust, []byte("impl impl {{{"))
		_ = ext.Extract(LangElixir, []byte("defmodule do end end"))
	})
}

func TestExtract_UnsupportedLanguageYieldsNothing(t *testing.T) {
	ext := NewExtractor()
	defer ext.Close()

	assert.Empty(t, ext.Extract(LangText, []byte("plain text")))
	assert.Empty(t, ext.Extract("cobol", []byte("IDENTIFICATION DIVISION.")))
}

func TestExtract_DuplicatesPreservedInSourceOrder(t *testing.T) {
	src := []byte(`package demo

func process() {}

func (s *Server) process() {}
`)
	ext := NewExtractor()
	defer ext.Close()

	first := ext.Extract(LangGo, src)
	second := ext.Extract(LangGo, src)
	require.Equal(t, first, second, "extraction is pure")
	assert.Equal(t, []string{"process", "process"}, first)
}

func TestExtractFile_TSXUsesTSXGrammar(t *testing.T) {
	src := []byte(`export function App() {
  return <div>hello</div>;
}
`)
	ext := NewExtractor()
	defer ext.Close()

	names := ext.ExtractFile("src/App.tsx", src)
	assert.Contains(t, names, "App")
}
