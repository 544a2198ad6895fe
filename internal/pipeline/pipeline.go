// Package pipeline runs one collection: resolve the repository, build a
// snapshot, merge it into the persisted document, write it atomically and
// publish it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/steveyegge/pulse/internal/collector"
	"github.com/steveyegge/pulse/internal/merge"
	"github.com/steveyegge/pulse/internal/publish"
	"github.com/steveyegge/pulse/internal/storage"
	"github.com/steveyegge/pulse/internal/types"
)

// Pipeline wires the collection stages together.
type Pipeline struct {
	Builder   *collector.Builder
	Publisher *publish.Coordinator
	Logger    *zap.SugaredLogger

	// Stdout receives the merged document on dry runs
	Stdout io.Writer

	now func() time.Time
}

// Options describes one run.
type Options struct {
	Resolve storage.ResolveOptions

	// DocumentPath is relative to the repository root unless absolute
	DocumentPath string

	Sections types.SectionSet
	Period   types.Period

	// Publish commits and pushes the written document
	Publish bool

	// DryRun prints the merged document instead of writing it
	DryRun bool
}

// Report summarizes a completed run.
type Report struct {
	RunID        string
	Repo         string
	DocumentPath string

	// Produced holds the sections refreshed this run
	Produced types.SectionSet

	// Kept holds requested sections whose previous value was preserved
	Kept []types.SectionName

	PRSourceOK bool
	Outcome    publish.Outcome
	Document   *types.Document
}

// Run executes the pipeline. Errors wrap storage.ErrResolution,
// storage.ErrValidation or publish.ErrPublishConflict when they stem from
// those stages.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	log := p.logger()

	repo, err := storage.ResolveRepository(opts.Resolve)
	if err != nil {
		return nil, err
	}
	docPath := storage.DocumentPath(repo, opts.DocumentPath)
	log.Debugw("resolved repository", "repo", repo, "document", docPath)

	publishing := opts.Publish && !opts.DryRun && p.Publisher != nil
	if publishing {
		// Read the latest published document so the merge starts from it
		if err := p.Publisher.Sync(ctx, repo); err != nil {
			log.Warnw("pre-collection sync failed, continuing with local document", "error", err)
		}
	}

	snap, err := p.Builder.Build(ctx, collector.Request{
		RepoPath: repo,
		Sections: opts.Sections,
		Period:   opts.Period,
	})
	if err != nil {
		return nil, fmt.Errorf("building snapshot: %w", err)
	}
	log = log.With("run_id", snap.RunID)

	store := storage.NewStore(&storage.Config{Path: docPath})
	doc, err := p.mergeWithPrevious(store, snap, log)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:        snap.RunID,
		Repo:         repo,
		DocumentPath: docPath,
		Produced:     snap.Requested,
		PRSourceOK:   snap.PRSourceOK,
		Outcome:      publish.OutcomeSkipped,
		Document:     doc,
	}
	for _, name := range opts.Sections.Sorted() {
		if !snap.Requested.Has(name) {
			report.Kept = append(report.Kept, name)
		}
	}

	if opts.DryRun {
		data, err := types.EncodeDocument(doc)
		if err != nil {
			return nil, fmt.Errorf("encoding document: %w", err)
		}
		if p.Stdout != nil {
			if _, err := p.Stdout.Write(data); err != nil {
				return nil, fmt.Errorf("writing document: %w", err)
			}
		}
		return report, nil
	}

	if err := store.Write(doc); err != nil {
		return nil, err
	}
	log.Infow("wrote document", "document", docPath, "sections", snap.Requested.String())

	if !publishing {
		return report, nil
	}

	outcome, err := p.Publisher.Publish(ctx, publish.Request{
		RepoPath:     repo,
		DocumentPath: docPath,
		RunID:        snap.RunID,
		Now:          p.clock(),
		Rebuild: func(ctx context.Context) error {
			merged, err := p.mergeWithPrevious(store, snap, log)
			if err != nil {
				return err
			}
			if err := store.Write(merged); err != nil {
				return err
			}
			report.Document = merged
			return nil
		},
	})
	if err != nil {
		return report, err
	}
	report.Outcome = outcome
	return report, nil
}

// mergeWithPrevious loads the persisted document and merges snap into it.
// An unreadable document is replaced rather than failing the run.
func (p *Pipeline) mergeWithPrevious(store *storage.Store, snap *types.Snapshot, log *zap.SugaredLogger) (*types.Document, error) {
	previous, err := store.Load()
	if err != nil {
		if !errors.Is(err, storage.ErrCorruptDocument) {
			return nil, err
		}
		log.Warnw("previous document is unreadable, starting fresh", "error", err)
		previous = nil
	}
	return merge.Merge(previous, snap), nil
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

func (p *Pipeline) logger() *zap.SugaredLogger {
	if p.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return p.Logger
}
