package codeparse

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/amanmcp-labs/memoryd/internal/types"
)

// LanguageConfig maps a language's tree-sitter node type vocabulary onto the
// symbol/reference taxonomy spec.md §3 and §4.6 describe.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// DefinitionTypes maps a tree-sitter node type to the SymbolType it denotes.
	DefinitionTypes map[string]types.SymbolType
	// NameField is the field/child node type carrying the definition's identifier.
	NameField string
	// CallTypes are node types representing a call use-site.
	CallTypes []string
	// ImportTypes are node types representing an import use-site.
	ImportTypes []string
	// HeritageTypes are node types representing implements/extends clauses.
	HeritageTypes []string
}

// Registry holds the supported languages and their tree-sitter grammars.
type Registry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewRegistry builds a Registry with every language spec.md §4.6 names that
// has a verified tree-sitter grammar in the corpus. Dart has no wired
// grammar (see DESIGN.md) — its files still flow through scanning/chunking,
// just without symbol extraction, which spec.md §4.6 explicitly allows
// ("Others return no symbols (chunks still flow)").
func NewRegistry() *Registry {
	r := &Registry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}
	r.registerGo()
	r.registerPython()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerRust()
	r.registerJava()
	return r
}

func (r *Registry) register(cfg *LanguageConfig, lang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
	r.tsLanguages[cfg.Name] = lang
	for _, ext := range cfg.Extensions {
		r.extToLang[ext] = cfg.Name
	}
}

// GetByExtension returns the config registered for a file extension.
func (r *Registry) GetByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	cfg, ok := r.configs[name]
	return cfg, ok
}

// GetByName returns the config registered under a language name.
func (r *Registry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	return cfg, ok
}

// GetTreeSitterLanguage returns the compiled grammar for a language name.
func (r *Registry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[name]
	return lang, ok
}

func (r *Registry) registerGo() {
	r.register(&LanguageConfig{
		Name:       "go",
		Extensions: []string{".go"},
		DefinitionTypes: map[string]types.SymbolType{
			"function_declaration": types.SymbolFunction,
			"method_declaration":   types.SymbolMethod,
			"type_declaration":     types.SymbolStruct,
		},
		NameField:     "name",
		CallTypes:     []string{"call_expression"},
		ImportTypes:   []string{"import_spec", "import_declaration"},
		HeritageTypes: nil,
	}, golang.GetLanguage())
}

func (r *Registry) registerPython() {
	r.register(&LanguageConfig{
		Name:       "python",
		Extensions: []string{".py"},
		DefinitionTypes: map[string]types.SymbolType{
			"function_definition": types.SymbolFunction,
			"class_definition":    types.SymbolClass,
		},
		NameField:     "name",
		CallTypes:     []string{"call"},
		ImportTypes:   []string{"import_statement", "import_from_statement"},
		HeritageTypes: nil,
	}, python.GetLanguage())
}

func (r *Registry) registerTypeScript() {
	ts := &LanguageConfig{
		Name:       "typescript",
		Extensions: []string{".ts"},
		DefinitionTypes: map[string]types.SymbolType{
			"function_declaration":   types.SymbolFunction,
			"method_definition":      types.SymbolMethod,
			"class_declaration":      types.SymbolClass,
			"interface_declaration":  types.SymbolInterface,
			"type_alias_declaration": types.SymbolModule,
		},
		NameField:     "name",
		CallTypes:     []string{"call_expression"},
		ImportTypes:   []string{"import_statement"},
		HeritageTypes: []string{"class_heritage", "implements_clause", "extends_clause"},
	}
	r.register(ts, typescript.GetLanguage())

	tsxConfig := *ts
	tsxConfig.Name = "tsx"
	tsxConfig.Extensions = []string{".tsx"}
	r.register(&tsxConfig, tsx.GetLanguage())
}

func (r *Registry) registerJavaScript() {
	js := &LanguageConfig{
		Name:       "javascript",
		Extensions: []string{".js", ".mjs"},
		DefinitionTypes: map[string]types.SymbolType{
			"function_declaration": types.SymbolFunction,
			"function":             types.SymbolFunction,
			"method_definition":    types.SymbolMethod,
			"class_declaration":    types.SymbolClass,
		},
		NameField:     "name",
		CallTypes:     []string{"call_expression"},
		ImportTypes:   []string{"import_statement"},
		HeritageTypes: []string{"class_heritage"},
	}
	r.register(js, javascript.GetLanguage())

	jsx := *js
	jsx.Name = "jsx"
	jsx.Extensions = []string{".jsx"}
	r.register(&jsx, javascript.GetLanguage())
}

func (r *Registry) registerRust() {
	r.register(&LanguageConfig{
		Name:       "rust",
		Extensions: []string{".rs"},
		DefinitionTypes: map[string]types.SymbolType{
			"function_item":  types.SymbolFunction,
			"struct_item":    types.SymbolStruct,
			"enum_item":      types.SymbolEnum,
			"trait_item":     types.SymbolTrait,
			"impl_item":      types.SymbolModule,
			"mod_item":       types.SymbolModule,
		},
		NameField:     "name",
		CallTypes:     []string{"call_expression"},
		ImportTypes:   []string{"use_declaration"},
		HeritageTypes: []string{"trait_bounds"},
	}, rust.GetLanguage())
}

func (r *Registry) registerJava() {
	r.register(&LanguageConfig{
		Name:       "java",
		Extensions: []string{".java"},
		DefinitionTypes: map[string]types.SymbolType{
			"method_declaration":    types.SymbolMethod,
			"class_declaration":     types.SymbolClass,
			"interface_declaration": types.SymbolInterface,
			"enum_declaration":      types.SymbolEnum,
		},
		NameField:     "name",
		CallTypes:     []string{"method_invocation"},
		ImportTypes:   []string{"import_declaration"},
		HeritageTypes: []string{"superclass", "super_interfaces"},
	}, java.GetLanguage())
}
