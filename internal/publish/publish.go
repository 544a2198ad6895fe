// Package publish makes a written document visible to every consumer by
// committing it and pushing to the shared remote.
//
// Several independent triggers may publish at the same time. There is no
// cross-process lock: a push that loses the race is retried exactly once
// after resynchronizing, and a second failure is fatal. Because every run
// rewrites the collection timestamp, concurrent documents always conflict
// textually, so callers normally supply Request.Rebuild to re-merge onto the
// winner's document rather than rebasing.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/steveyegge/pulse/internal/git"
)

// ErrPublishConflict is returned when the push is still rejected after the
// single resync-and-retry cycle.
var ErrPublishConflict = errors.New("publish conflict: push rejected after retry")

// Outcome describes what Publish did.
type Outcome string

const (
	// OutcomeNoChange means the document matched the remote; nothing was committed.
	OutcomeNoChange Outcome = "no_change"

	// OutcomePublished means a commit was created and pushed.
	OutcomePublished Outcome = "published"

	// OutcomeSkipped means publishing was disabled for this run.
	OutcomeSkipped Outcome = "skipped"
)

// Coordinator stages, commits and pushes the persisted document.
type Coordinator struct {
	Git    git.GitOperations
	Remote string
	Branch string
	Logger *zap.SugaredLogger
}

// Request identifies what to publish.
type Request struct {
	RepoPath     string
	DocumentPath string // absolute, or relative to RepoPath
	RunID        string
	Now          time.Time

	// Rebuild regenerates the document on disk after a resync. When set, a
	// rejected push drops the local commit, pulls the remote document and
	// calls Rebuild before committing again. When nil, the retry rebases the
	// existing commit instead.
	Rebuild func(ctx context.Context) error
}

// Publish commits and pushes the document. It is a successful no-op when
// the staged document does not differ from what the remote already has.
// Callers are expected to Sync before writing the document.
func (c *Coordinator) Publish(ctx context.Context, req Request) (Outcome, error) {
	log := c.logger()
	docPath, err := relativeTo(req.RepoPath, req.DocumentPath)
	if err != nil {
		return "", err
	}

	hash, err := c.commit(ctx, req, docPath)
	if err != nil {
		return "", err
	}
	if hash == "" {
		log.Infow("document unchanged, nothing to publish", "document", docPath)
		return OutcomeNoChange, nil
	}

	pushErr := c.Git.Push(ctx, req.RepoPath, c.pushOptions())
	if pushErr == nil {
		log.Infow("published document", "commit", hash)
		return OutcomePublished, nil
	}

	log.Warnw("push failed, resyncing and retrying once", "error", pushErr)
	if req.Rebuild != nil {
		hash, err = c.rebuild(ctx, req, docPath)
	} else {
		err = c.resync(ctx, req.RepoPath)
	}
	if err != nil {
		return "", err
	}
	if hash == "" {
		log.Infow("remote already holds this document", "document", docPath)
		return OutcomeNoChange, nil
	}

	if err := c.Git.Push(ctx, req.RepoPath, c.pushOptions()); err != nil {
		if errors.Is(err, git.ErrPushRejected) {
			return "", fmt.Errorf("%w: %v", ErrPublishConflict, err)
		}
		return "", fmt.Errorf("push failed after retry: %w", err)
	}

	log.Infow("published document after retry", "commit", hash)
	return OutcomePublished, nil
}

// commit stages and commits the document. It returns an empty hash when
// there is nothing to commit.
func (c *Coordinator) commit(ctx context.Context, req Request, docPath string) (string, error) {
	if err := c.Git.Add(ctx, req.RepoPath, docPath); err != nil {
		return "", fmt.Errorf("staging document: %w", err)
	}

	changed, err := c.Git.HasStagedChanges(ctx, req.RepoPath, docPath)
	if err != nil {
		return "", fmt.Errorf("checking staged changes: %w", err)
	}
	if !changed {
		return "", nil
	}

	opts := git.CommitOptions{
		Message: CommitMessage(req.Now),
		Paths:   []string{docPath},
	}
	if req.RunID != "" {
		opts.Trailers = map[string]string{"Run-Id": req.RunID}
	}
	hash, err := c.Git.CommitChanges(ctx, req.RepoPath, opts)
	if err != nil {
		return "", fmt.Errorf("committing document: %w", err)
	}
	c.logger().Debugw("committed document", "commit", hash)
	return hash, nil
}

// resync rebases the local commit onto the remote.
func (c *Coordinator) resync(ctx context.Context, repoPath string) error {
	if err := c.Sync(ctx, repoPath); err != nil {
		if abortErr := c.Git.AbortRebase(ctx, repoPath); abortErr != nil {
			c.logger().Warnw("failed to abort rebase", "error", abortErr)
		}
		return fmt.Errorf("%w: resync failed: %v", ErrPublishConflict, err)
	}
	return nil
}

// rebuild replaces the rejected commit with one built on top of the remote
// document. Only the document path is touched in the work tree.
func (c *Coordinator) rebuild(ctx context.Context, req Request, docPath string) (string, error) {
	if err := c.Git.UndoCommit(ctx, req.RepoPath); err != nil {
		return "", fmt.Errorf("dropping rejected commit: %w", err)
	}
	if err := c.Git.DiscardPath(ctx, req.RepoPath, docPath); err != nil {
		return "", fmt.Errorf("discarding local document: %w", err)
	}
	if err := c.resync(ctx, req.RepoPath); err != nil {
		return "", err
	}
	if err := req.Rebuild(ctx); err != nil {
		return "", fmt.Errorf("rebuilding document after resync: %w", err)
	}
	return c.commit(ctx, req, docPath)
}

// CommitMessage returns the timestamped commit subject for a snapshot update.
func CommitMessage(now time.Time) string {
	return fmt.Sprintf("chore(metrics): update snapshot %s", now.UTC().Format(time.RFC3339))
}

// Sync rebases the local branch onto the remote so the next merge reads the
// latest published document. Unrelated local changes are autostashed.
func (c *Coordinator) Sync(ctx context.Context, repoPath string) error {
	return c.Git.Pull(ctx, repoPath, git.PullOptions{
		Remote:    c.Remote,
		Branch:    c.Branch,
		Autostash: true,
	})
}

func (c *Coordinator) pushOptions() git.PushOptions {
	return git.PushOptions{Remote: c.Remote, Branch: c.Branch}
}

func (c *Coordinator) logger() *zap.SugaredLogger {
	if c.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return c.Logger
}

// relativeTo returns path relative to the repository root, rejecting paths outside it.
func relativeTo(repoPath, path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	rel, err := filepath.Rel(repoPath, path)
	if err != nil {
		return "", fmt.Errorf("document %s is not inside %s: %w", path, repoPath, err)
	}
	if rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return "", fmt.Errorf("document %s is outside repository %s", path, repoPath)
	}
	return rel, nil
}
