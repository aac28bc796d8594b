// Package scan discovers indexable files under a project root (spec.md
// §4.6): it honors a built-in heavy-directory ignore list, VCS ignore files
// plus a project-level .memoryignore, dotfile exclusion, and a code-file
// extension allow-list.
package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/amanmcp-labs/memoryd/internal/gitignore"
)

// gitignoreCacheSize bounds the per-directory matcher cache.
const gitignoreCacheSize = 1000

// heavyDirs are skipped outright regardless of gitignore content.
var heavyDirs = map[string]bool{
	"node_modules": true,
	"target":       true,
	"build":        true,
	"dist":         true,
	"out":          true,
	".dart_tool":   true,
	".git":         true,
}

// generatedSuffixes are glob-style suffix patterns for generated/lock files
// that are never indexable even though their extension is in the allow list.
var generatedSuffixes = []string{
	".g.dart",
	".freezed.dart",
	".min.js",
	".lock",
}

// codeExtensions is the allow-list defining what counts as a "code file".
var codeExtensions = map[string]string{
	".rs":    "rust",
	".py":    "python",
	".js":    "javascript",
	".ts":    "typescript",
	".jsx":   "javascript",
	".tsx":   "typescript",
	".go":    "go",
	".java":  "java",
	".dart":  "dart",
	".c":     "c",
	".cpp":   "cpp",
	".h":     "c",
	".hpp":   "cpp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".zsh":   "shell",
}

// DetectLanguage maps a file extension to a language tag. Unknown
// extensions return "" ("Unknown" per spec.md §4.6 — parseable for text,
// not for symbols).
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := codeExtensions[ext]; ok {
		return lang
	}
	return ""
}

// IsCodeFile reports whether path's extension is in the allow-list.
func IsCodeFile(path string) bool {
	_, ok := codeExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Result is one discovered file.
type Result struct {
	AbsPath  string
	RelPath  string
	Language string
}

// Scanner walks project roots, caching compiled gitignore matchers by
// directory to avoid re-parsing on every incremental rescan.
type Scanner struct {
	matcherCache *lru.Cache[string, *gitignore.Matcher]
}

// New constructs a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, err
	}
	return &Scanner{matcherCache: cache}, nil
}

// Scan walks root and streams discovered code files on the returned
// channel, which is closed when the walk completes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, root string) (<-chan Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	matcher, err := s.loadMatcher(absRoot)
	if err != nil {
		return nil, err
	}

	out := make(chan Result, 64)
	go func() {
		defer close(out)
		_ = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			select {
			case <-ctx.Done():
				return filepath.SkipAll
			default:
			}

			rel, relErr := filepath.Rel(absRoot, path)
			if relErr != nil {
				return nil
			}
			if rel == "." {
				return nil
			}
			base := filepath.Base(path)

			if d.IsDir() {
				if heavyDirs[base] || (strings.HasPrefix(base, ".") && base != ".") {
					return filepath.SkipDir
				}
				if matcher.Match(filepath.ToSlash(rel), true) {
					return filepath.SkipDir
				}
				return nil
			}

			if strings.HasPrefix(base, ".") {
				return nil
			}
			if isGenerated(base) {
				return nil
			}
			if !IsCodeFile(path) {
				return nil
			}
			if matcher.Match(filepath.ToSlash(rel), false) {
				return nil
			}

			select {
			case out <- Result{AbsPath: path, RelPath: rel, Language: DetectLanguage(path)}:
			case <-ctx.Done():
				return filepath.SkipAll
			}
			return nil
		})
	}()
	return out, nil
}

func isGenerated(base string) bool {
	for _, suffix := range generatedSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// loadMatcher builds a combined gitignore matcher from every .gitignore and
// .memoryignore found under root, cached by root path.
func (s *Scanner) loadMatcher(root string) (*gitignore.Matcher, error) {
	if m, ok := s.matcherCache.Get(root); ok {
		return m, nil
	}

	m := gitignore.New()
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if name != ".gitignore" && name != ".memoryignore" {
			return nil
		}
		base, _ := filepath.Rel(root, filepath.Dir(path))
		if base == "." {
			base = ""
		}
		_ = m.AddFromFile(path, filepath.ToSlash(base))
		return nil
	})

	s.matcherCache.Add(root, m)
	return m, nil
}

// IsIgnored reports whether relPath (relative to root) is excluded by
// root's combined gitignore/.memoryignore rules or the built-in heavy-dir
// skip list — the same predicate Scan applies to each walked entry, shared
// with internal/watch so a live file event is filtered identically to how
// the initial scan would have treated it.
func (s *Scanner) IsIgnored(root, relPath string, isDir bool) (bool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false, err
	}
	matcher, err := s.loadMatcher(absRoot)
	if err != nil {
		return false, err
	}

	base := filepath.Base(relPath)
	if isDir {
		if heavyDirs[base] || (strings.HasPrefix(base, ".") && base != ".") {
			return true, nil
		}
		return matcher.Match(filepath.ToSlash(relPath), true), nil
	}

	if strings.HasPrefix(base, ".") || isGenerated(base) {
		return true, nil
	}
	return matcher.Match(filepath.ToSlash(relPath), false), nil
}

// Invalidate drops the cached matcher for root, forcing a reload on next Scan.
func (s *Scanner) Invalidate(root string) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return
	}
	s.matcherCache.Remove(absRoot)
}

// ReadFile reads a file's content, returning "" on error (the indexer logs
// and skips unreadable files per spec.md §4.8).
func ReadFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
