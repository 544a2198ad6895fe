package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrResolution is returned (wrapped in *ResolutionError) when no target
// repository can be located.
var ErrResolution = errors.New("repository not found")

// DefaultRepoEnvVar overrides the repository location when set.
const DefaultRepoEnvVar = "PULSE_REPO"

// Candidate is one location tried while resolving the target repository.
type Candidate struct {
	Source string // "flag", "env", "conventional", "sibling"
	Path   string
	Reason string // why it was rejected; empty for the winner
}

// ResolutionError lists every candidate that was tried.
type ResolutionError struct {
	Tried []Candidate
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	b.WriteString("no git repository found")
	for _, c := range e.Tried {
		fmt.Fprintf(&b, "\n  %s: %s (%s)", c.Source, c.Path, c.Reason)
	}
	b.WriteString("\n  Use --repo to specify the repository path explicitly")
	b.WriteString("\n  Or set " + DefaultRepoEnvVar)
	return b.String()
}

func (e *ResolutionError) Unwrap() error { return ErrResolution }

// ResolveOptions configures the resolution chain. Empty fields are skipped.
type ResolveOptions struct {
	// Explicit is the --repo flag value.
	Explicit string

	// EnvVar names the environment variable to consult (default PULSE_REPO).
	EnvVar string

	// Conventional is the configured local path. Relative paths are
	// resolved against WorkDir. Defaults to WorkDir itself.
	Conventional string

	// SiblingName is a directory name looked up next to WorkDir.
	SiblingName string

	// WorkDir defaults to the process working directory.
	WorkDir string
}

// ResolveRepository returns the absolute path of the target repository.
// Candidates are tried in order (explicit, environment, conventional,
// sibling) and the first directory containing .git wins.
func ResolveRepository(opts ResolveOptions) (string, error) {
	workDir := opts.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		workDir = wd
	}
	envVar := opts.EnvVar
	if envVar == "" {
		envVar = DefaultRepoEnvVar
	}

	var candidates []Candidate
	if opts.Explicit != "" {
		candidates = append(candidates, Candidate{Source: "flag", Path: opts.Explicit})
	}
	if v := os.Getenv(envVar); v != "" {
		candidates = append(candidates, Candidate{Source: "env " + envVar, Path: v})
	}
	conventional := opts.Conventional
	if conventional == "" {
		conventional = workDir
	}
	candidates = append(candidates, Candidate{Source: "conventional", Path: conventional})
	if opts.SiblingName != "" {
		candidates = append(candidates, Candidate{
			Source: "sibling",
			Path:   filepath.Join(filepath.Dir(workDir), opts.SiblingName),
		})
	}

	tried := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		path := ExpandHome(c.Path)
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			c.Reason = fmt.Sprintf("invalid path: %v", err)
			tried = append(tried, c)
			continue
		}
		if reason := checkRepository(abs); reason != "" {
			c.Path = abs
			c.Reason = reason
			tried = append(tried, c)
			continue
		}
		return abs, nil
	}

	return "", &ResolutionError{Tried: tried}
}

// checkRepository returns "" when dir is a git work tree, otherwise the reason it is not.
func checkRepository(dir string) string {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "does not exist"
		}
		return err.Error()
	}
	if !info.IsDir() {
		return "not a directory"
	}
	// .git is a directory in a normal clone and a file in a worktree or submodule
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return "no .git"
	}
	return ""
}

// ExpandHome replaces a leading "~" with the user home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// DocumentPath joins a repository root with a possibly relative document path.
func DocumentPath(repoRoot, docPath string) string {
	if filepath.IsAbs(docPath) {
		return docPath
	}
	return filepath.Join(repoRoot, docPath)
}
