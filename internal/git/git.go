package git

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Git implements GitOperations using the git CLI.
type Git struct {
	// gitPath is the path to the git executable
	gitPath string
}

// NewGit creates a new Git instance.
// It verifies that git is available on the system.
func NewGit(ctx context.Context) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	// Verify git works
	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &Git{gitPath: gitPath}, nil
}

// run executes git -C repoPath args... and returns combined output.
func (g *Git) run(ctx context.Context, repoPath string, args ...string) (string, error) {
	full := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, g.gitPath, full...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// HasUncommittedChanges reports whether the work tree or index differs
// from HEAD, untracked files included.
// SECURITY: repoPath must be a validated, trusted path. This function
// does not perform path validation or sandboxing.
func (g *Git) HasUncommittedChanges(ctx context.Context, repoPath string) (bool, error) {
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "status", "--porcelain")
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("git status failed in %s: %w", repoPath, err)
	}
	return strings.TrimSpace(string(output)) != "", nil
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get current branch in %s: %w", repoPath, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// RemoteURL returns the fetch URL of a remote.
func (g *Git) RemoteURL(ctx context.Context, repoPath, remote string) (string, error) {
	if remote == "" {
		remote = "origin"
	}
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "remote", "get-url", remote)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get URL of remote %s in %s: %w", remote, repoPath, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// Pull fetches and rebases onto the remote branch.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) Pull(ctx context.Context, repoPath string, opts PullOptions) error {
	args := []string{"pull", "--rebase"}
	if opts.Autostash {
		args = append(args, "--autostash")
	}
	if opts.Remote != "" {
		branch := opts.Branch
		if branch == "" {
			b, err := g.CurrentBranch(ctx, repoPath)
			if err != nil {
				return err
			}
			branch = b
		}
		args = append(args, opts.Remote, branch)
	}

	output, err := g.run(ctx, repoPath, args...)
	if err != nil {
		if hasConflicts, _ := g.hasConflicts(ctx, repoPath); hasConflicts {
			return fmt.Errorf("git pull hit conflicts in %s (%s): %w",
				repoPath, strings.Join(g.getConflictedFiles(ctx, repoPath), ", "), err)
		}
		return fmt.Errorf("git pull failed in %s: %w\nOutput: %s", repoPath, err, strings.TrimSpace(output))
	}
	return nil
}

// Add stages the given paths.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) Add(ctx context.Context, repoPath string, paths ...string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no paths to add")
	}
	args := append([]string{"add", "--"}, paths...)
	if output, err := g.run(ctx, repoPath, args...); err != nil {
		return fmt.Errorf("git add failed in %s: %w\nOutput: %s", repoPath, err, strings.TrimSpace(output))
	}
	return nil
}

// HasStagedChanges reports whether the index differs from HEAD.
// In a repository with no commits yet, anything staged counts as a change.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) HasStagedChanges(ctx context.Context, repoPath string, paths ...string) (bool, error) {
	args := append([]string{"-C", repoPath, "diff", "--cached", "--quiet", "--"}, paths...)
	cmd := exec.CommandContext(ctx, g.gitPath, args...)
	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, fmt.Errorf("git diff --cached failed in %s: %w", repoPath, err)
}

// CommitChanges creates a git commit.
// SECURITY: repoPath must be a validated, trusted path. This function
// does not perform path validation or sandboxing.
func (g *Git) CommitChanges(ctx context.Context, repoPath string, opts CommitOptions) (string, error) {
	if opts.Message == "" {
		return "", fmt.Errorf("commit message is required")
	}

	// Build commit message with trailers in a stable order
	message := opts.Message
	if len(opts.Trailers) > 0 {
		keys := make([]string, 0, len(opts.Trailers))
		for k := range opts.Trailers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		message += "\n"
		for _, k := range keys {
			message += fmt.Sprintf("\n%s: %s", k, opts.Trailers[k])
		}
	}

	// Build commit command
	args := []string{"-C", repoPath, "commit", "-m", message}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}
	if len(opts.Paths) > 0 {
		args = append(args, "--")
		args = append(args, opts.Paths...)
	}

	commitCmd := exec.CommandContext(ctx, g.gitPath, args...)
	if output, err := commitCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git commit failed in %s: %w\nOutput: %s", repoPath, err, strings.TrimSpace(string(output)))
	}

	// Get the commit hash
	hashCmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "rev-parse", "HEAD")
	hashOutput, err := hashCmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get commit hash in %s: %w", repoPath, err)
	}

	commitHash := strings.TrimSpace(string(hashOutput))
	return commitHash, nil
}

// Push pushes the current branch to the remote.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) Push(ctx context.Context, repoPath string, opts PushOptions) error {
	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}
	branch := opts.Branch
	if branch == "" {
		b, err := g.CurrentBranch(ctx, repoPath)
		if err != nil {
			return err
		}
		branch = b
	}

	output, err := g.run(ctx, repoPath, "push", remote, "HEAD:"+branch)
	if err != nil {
		if isRejection(output) {
			return fmt.Errorf("git push to %s/%s: %w\nOutput: %s", remote, branch, ErrPushRejected, strings.TrimSpace(output))
		}
		return fmt.Errorf("git push failed in %s: %w\nOutput: %s", repoPath, err, strings.TrimSpace(output))
	}
	return nil
}

// isRejection recognises git's messages for a push that lost a race.
func isRejection(output string) bool {
	for _, marker := range []string{"[rejected]", "non-fast-forward", "fetch first", "failed to push some refs"} {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return false
}

// AbortRebase aborts an in-progress rebase. It is a no-op when none is in progress.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) AbortRebase(ctx context.Context, repoPath string) error {
	output, err := g.run(ctx, repoPath, "rebase", "--abort")
	if err != nil {
		if strings.Contains(output, "No rebase in progress") {
			return nil
		}
		return fmt.Errorf("git rebase --abort failed in %s: %w", repoPath, err)
	}
	return nil
}

// UndoCommit moves HEAD back one commit, keeping the index and work tree.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) UndoCommit(ctx context.Context, repoPath string) error {
	if output, err := g.run(ctx, repoPath, "reset", "--soft", "HEAD~1"); err != nil {
		return fmt.Errorf("git reset --soft failed in %s: %w\nOutput: %s", repoPath, err, strings.TrimSpace(output))
	}
	return nil
}

// DiscardPath restores path (relative to repoPath) in the index and work
// tree to its HEAD state. A path HEAD does not track is unstaged and deleted.
// Other paths are left alone.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) DiscardPath(ctx context.Context, repoPath, path string) error {
	if _, err := g.run(ctx, repoPath, "cat-file", "-e", "HEAD:"+filepath.ToSlash(path)); err == nil {
		if output, err := g.run(ctx, repoPath, "checkout", "HEAD", "--", path); err != nil {
			return fmt.Errorf("git checkout failed in %s: %w\nOutput: %s", repoPath, err, strings.TrimSpace(output))
		}
		return nil
	}

	if output, err := g.run(ctx, repoPath, "rm", "-q", "--cached", "--ignore-unmatch", "--", path); err != nil {
		return fmt.Errorf("git rm --cached failed in %s: %w\nOutput: %s", repoPath, err, strings.TrimSpace(output))
	}
	if err := os.Remove(filepath.Join(repoPath, path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// Fields in the log format are separated by \x1f, records by \x1e.
const logFormat = "--format=%x1e%H%x1f%ae%x1f%aI"

// Log returns commits in the given window with their numstat line counts.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) Log(ctx context.Context, repoPath string, opts LogOptions) ([]Commit, error) {
	args := []string{"-C", repoPath, "log", "--numstat", logFormat}
	if opts.NoMerges {
		args = append(args, "--no-merges")
	}
	if !opts.Since.IsZero() {
		args = append(args, "--since="+opts.Since.Format(time.RFC3339))
	}
	if !opts.Until.IsZero() {
		args = append(args, "--until="+opts.Until.Format(time.RFC3339))
	}

	cmd := exec.CommandContext(ctx, g.gitPath, args...)
	output, err := cmd.Output()
	if err != nil {
		// A repository without commits has no HEAD to log
		if exitErr, ok := err.(*exec.ExitError); ok && strings.Contains(string(exitErr.Stderr), "does not have any commits") {
			return nil, nil
		}
		return nil, fmt.Errorf("git log failed in %s: %w", repoPath, err)
	}
	return parseLog(string(output))
}

// parseLog parses output produced with logFormat and --numstat.
func parseLog(output string) ([]Commit, error) {
	var commits []Commit
	for _, record := range strings.Split(output, "\x1e") {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}
		lines := strings.Split(record, "\n")
		header := strings.Split(lines[0], "\x1f")
		if len(header) != 3 {
			return nil, fmt.Errorf("unexpected git log header %q", lines[0])
		}
		date, err := time.Parse(time.RFC3339, header[2])
		if err != nil {
			return nil, fmt.Errorf("invalid author date %q: %w", header[2], err)
		}

		c := Commit{Hash: header[0], AuthorEmail: strings.ToLower(header[1]), AuthorDate: date}
		for _, line := range lines[1:] {
			fields := strings.Split(line, "\t")
			if len(fields) < 3 {
				continue
			}
			// Binary files report "-" for both counts
			if added, err := strconv.Atoi(fields[0]); err == nil {
				c.LinesAdded += added
			}
			if removed, err := strconv.Atoi(fields[1]); err == nil {
				c.LinesRemoved += removed
			}
		}
		commits = append(commits, c)
	}
	return commits, nil
}

// hasConflicts checks if there are unmerged files (merge conflicts).
// This uses git diff --diff-filter=U which specifically checks for unmerged paths.
func (g *Git) hasConflicts(ctx context.Context, repoPath string) (bool, error) {
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "diff", "--name-only", "--diff-filter=U")
	output, err := cmd.Output()
	if err != nil {
		// If the command fails, it might be because we're not in a rebase
		// In that case, there are no conflicts
		return false, nil
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

// getConflictedFiles returns a list of files with merge conflicts.
func (g *Git) getConflictedFiles(ctx context.Context, repoPath string) []string {
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "diff", "--name-only", "--diff-filter=U")
	output, err := cmd.Output()
	if err != nil {
		return []string{}
	}

	var files []string
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			files = append(files, line)
		}
	}

	return files
}
