package git

import (
	"context"
	"errors"
	"time"
)

// ErrPushRejected is returned by Push when the remote refuses the update,
// typically because another run pushed first.
var ErrPushRejected = errors.New("push rejected by remote")

// GitOperations provides the git operations needed to publish a document.
// This interface is designed to be implementation-agnostic,
// allowing for testing with mock implementations.
type GitOperations interface {
	// Pull fetches and rebases the current branch onto its remote counterpart.
	Pull(ctx context.Context, repoPath string, opts PullOptions) error

	// Add stages the given paths.
	Add(ctx context.Context, repoPath string, paths ...string) error

	// HasStagedChanges reports whether the index differs from HEAD for the given paths.
	HasStagedChanges(ctx context.Context, repoPath string, paths ...string) (bool, error)

	// CommitChanges creates a commit with the given message.
	// Returns the commit hash if successful.
	CommitChanges(ctx context.Context, repoPath string, opts CommitOptions) (string, error)

	// Push pushes the current branch. A rejected push wraps ErrPushRejected.
	Push(ctx context.Context, repoPath string, opts PushOptions) error

	// AbortRebase aborts an in-progress rebase, if any.
	AbortRebase(ctx context.Context, repoPath string) error

	// UndoCommit moves HEAD back one commit, keeping the index and work tree.
	UndoCommit(ctx context.Context, repoPath string) error

	// DiscardPath restores a path to its HEAD state, removing it when HEAD
	// does not track it.
	DiscardPath(ctx context.Context, repoPath, path string) error
}

// CommitOptions configures a git commit operation.
type CommitOptions struct {
	// Message is the commit message
	Message string

	// Author specifies the author (optional, uses git config if empty)
	Author string

	// Trailers are appended to the message as "Key: value" lines
	Trailers map[string]string

	// Paths limits the commit to these paths (optional)
	Paths []string

	// AllowEmpty allows creating an empty commit
	AllowEmpty bool
}

// PullOptions configures a git pull.
type PullOptions struct {
	// Remote to pull from (default: upstream of the current branch)
	Remote string

	// Branch on the remote (default: current branch name when Remote is set)
	Branch string

	// Autostash stashes local modifications around the rebase
	Autostash bool
}

// PushOptions configures a git push.
type PushOptions struct {
	// Remote to push to (default: "origin")
	Remote string

	// Branch on the remote (default: current branch name)
	Branch string
}

// LogOptions selects commits for Log.
type LogOptions struct {
	Since time.Time
	Until time.Time

	// NoMerges excludes merge commits
	NoMerges bool
}

// Commit is one entry from git log with its line statistics.
type Commit struct {
	Hash         string
	AuthorEmail  string
	AuthorDate   time.Time
	LinesAdded   int
	LinesRemoved int
}
