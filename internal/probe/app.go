package probe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/pulse/internal/types"
)

// language describes how to recognise and count one source language.
type language struct {
	Name       string
	Extensions []string

	// IsTest reports whether a file name is a test file
	IsTest func(name string) bool

	// TestPattern matches a test declaration line inside a test file
	TestPattern *regexp.Regexp
}

var languages = []language{
	{
		Name:        "go",
		Extensions:  []string{".go"},
		IsTest:      func(name string) bool { return strings.HasSuffix(name, "_test.go") },
		TestPattern: regexp.MustCompile(`^func Test([A-Z0-9_]\w*)?\(`),
	},
	{
		Name:       "python",
		Extensions: []string{".py"},
		IsTest: func(name string) bool {
			return strings.HasPrefix(name, "test_") || strings.HasSuffix(name, "_test.py")
		},
		TestPattern: regexp.MustCompile(`^\s*(async\s+)?def test_`),
	},
	{
		Name:        "typescript",
		Extensions:  []string{".ts", ".tsx"},
		IsTest:      isJSTest,
		TestPattern: jsTestPattern,
	},
	{
		Name:        "javascript",
		Extensions:  []string{".js", ".jsx", ".mjs", ".cjs"},
		IsTest:      isJSTest,
		TestPattern: jsTestPattern,
	},
	{
		Name:       "rust",
		Extensions: []string{".rs"},
		IsTest:     func(name string) bool { return false },
	},
	{
		Name:       "shell",
		Extensions: []string{".sh", ".bash"},
		IsTest:     func(name string) bool { return false },
	},
}

var jsTestPattern = regexp.MustCompile(`^\s*(it|test)(\.\w+)?\(`)

func isJSTest(name string) bool {
	return strings.Contains(name, ".test.") || strings.Contains(name, ".spec.")
}

// languageFor returns the language of a file name, or nil.
func languageFor(name string) *language {
	ext := strings.ToLower(filepath.Ext(name))
	for i := range languages {
		for _, e := range languages[i].Extensions {
			if e == ext {
				return &languages[i]
			}
		}
	}
	return nil
}

// AppProbe measures the application source tree: lines of code per
// language, file counts and test counts.
type AppProbe struct {
	// Roots are directories relative to the repository root
	Roots []string

	// ExcludePatterns for files/directories to skip
	ExcludePatterns []string

	// MaxWorkers bounds concurrent root walks
	MaxWorkers int
}

// NewAppProbe creates an app probe. No roots means the whole repository.
func NewAppProbe(roots, exclude []string, maxWorkers int) *AppProbe {
	if len(roots) == 0 {
		roots = []string{"."}
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &AppProbe{Roots: roots, ExcludePatterns: exclude, MaxWorkers: maxWorkers}
}

// Name implements Probe.
func (p *AppProbe) Name() types.SectionName {
	return types.SectionApp
}

// treeStats is the tally of one walked root.
type treeStats struct {
	loc         map[string]int
	sourceFiles int
	testFiles   int
	tests       int
	skipped     []string
}

func (s *treeStats) add(o *treeStats) {
	for lang, n := range o.loc {
		s.loc[lang] += n
	}
	s.sourceFiles += o.sourceFiles
	s.testFiles += o.testFiles
	s.tests += o.tests
	s.skipped = append(s.skipped, o.skipped...)
}

// Collect implements Probe.
func (p *AppProbe) Collect(ctx context.Context, req Request) (Result, error) {
	roots := dedupeRoots(req.RepoPath, p.Roots)
	perRoot := make([]*treeStats, len(roots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.MaxWorkers)
	for i, root := range roots {
		g.Go(func() error {
			stats, err := p.walk(gctx, req.RepoPath, root)
			if err != nil {
				return err
			}
			perRoot[i] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Failed("scanning source tree: %w", err), nil
	}

	total := &treeStats{loc: make(map[string]int)}
	for _, s := range perRoot {
		total.add(s)
	}

	var result Result
	for _, path := range total.skipped {
		result.warnf("skipped unreadable file %s", path)
	}

	section := types.Section{}
	totalLOC := 0
	for _, lang := range languages {
		section[lang.Name+"_loc"] = total.loc[lang.Name]
		totalLOC += total.loc[lang.Name]
	}
	section["total_loc"] = totalLOC
	section["source_files"] = total.sourceFiles
	section["test_files"] = total.testFiles
	section["test_count"] = total.tests

	if err := addGoModule(section, filepath.Join(req.RepoPath, "go.mod")); err != nil {
		result.warnf("%v", err)
	}

	result.Section = section
	if total.sourceFiles == 0 {
		result.Status = StatusEmpty
	} else {
		result.Status = StatusOK
	}
	return result, nil
}

// walk scans one root. Unreadable individual files are recorded and skipped.
func (p *AppProbe) walk(ctx context.Context, repoPath, root string) (*treeStats, error) {
	stats := &treeStats{loc: make(map[string]int)}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			stats.skipped = append(stats.skipped, path)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		relPath, err := filepath.Rel(repoPath, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path != root && ShouldExcludePath(relPath, true, p.ExcludePatterns) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ShouldExcludePath(relPath, false, p.ExcludePatterns) {
			return nil
		}

		lang := languageFor(d.Name())
		if lang == nil {
			return nil
		}

		isTest := lang.IsTest(d.Name())
		var pattern *regexp.Regexp
		if isTest {
			pattern = lang.TestPattern
		}
		counts, err := countLines(path, pattern)
		if err != nil {
			stats.skipped = append(stats.skipped, relPath)
			return nil
		}

		stats.sourceFiles++
		stats.loc[lang.Name] += counts.Lines
		if isTest {
			stats.testFiles++
			stats.tests += counts.Tests
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// dedupeRoots resolves roots against the repository and drops any root
// nested inside another so no file is counted twice.
func dedupeRoots(repoPath string, roots []string) []string {
	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		if !filepath.IsAbs(r) {
			r = filepath.Join(repoPath, r)
		}
		abs = append(abs, filepath.Clean(r))
	}

	var out []string
	for i, r := range abs {
		nested := false
		for j, other := range abs {
			if i == j {
				continue
			}
			if r == other && j < i {
				nested = true
				break
			}
			if r != other && strings.HasPrefix(r, other+string(filepath.Separator)) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, r)
		}
	}
	return out
}

// addGoModule records module facts from go.mod when present.
func addGoModule(section types.Section, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading go.mod: %w", err)
	}

	modFile, err := modfile.Parse(path, data, nil)
	if err != nil {
		return fmt.Errorf("parsing go.mod: %w", err)
	}

	if modFile.Module != nil {
		section["go_module"] = modFile.Module.Mod.Path
	}
	if modFile.Go != nil {
		section["go_version"] = modFile.Go.Version
	}
	direct := 0
	for _, req := range modFile.Require {
		if !req.Indirect {
			direct++
		}
	}
	section["go_dependencies"] = direct
	return nil
}
