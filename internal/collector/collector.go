// Package collector builds a Snapshot by running the requested probes.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steveyegge/pulse/internal/probe"
	"github.com/steveyegge/pulse/internal/prsource"
	"github.com/steveyegge/pulse/internal/types"
)

// ErrProbeFailed is returned in strict mode when a probe cannot reach its data source.
var ErrProbeFailed = errors.New("probe failed")

// Builder runs probes and assembles a Snapshot.
type Builder struct {
	Probes   *probe.Registry
	PRSource prsource.Source
	Logger   *zap.SugaredLogger

	// Strict aborts the build when any probe reports StatusFailed
	Strict bool

	// PRTimeout bounds the pull-request lookup (default: 60s)
	PRTimeout time.Duration

	// now is overridden in tests
	now func() time.Time
}

// Request selects what to build.
type Request struct {
	RepoPath string
	Sections types.SectionSet
	Period   types.Period
}

// Build runs one probe per requested section, sequentially in canonical
// order. Sections whose probe failed are left out of Snapshot.Requested so
// the merge keeps their previous value.
func (b *Builder) Build(ctx context.Context, req Request) (*types.Snapshot, error) {
	log := b.logger()
	if len(req.Sections) == 0 {
		return nil, fmt.Errorf("no sections requested")
	}
	if err := req.Period.Validate(); err != nil {
		return nil, fmt.Errorf("invalid period: %w", err)
	}

	snap := &types.Snapshot{
		RunID:       uuid.New().String(),
		CollectedAt: b.clock().UTC(),
		Period:      req.Period,
		Requested:   types.NewSectionSet(),
		Sections:    make(map[types.SectionName]types.Section),
	}
	log = log.With("run_id", snap.RunID)

	for _, name := range req.Sections.Sorted() {
		p, ok := b.Probes.Get(name)
		if !ok {
			return nil, fmt.Errorf("no probe registered for section %q", name)
		}

		start := time.Now()
		res, err := p.Collect(ctx, probe.Request{RepoPath: req.RepoPath, Period: req.Period})
		if err != nil {
			return nil, fmt.Errorf("collecting %s: %w", name, err)
		}
		for _, w := range res.Warnings {
			log.Warnw("probe warning", "section", name, "warning", w)
		}

		if !res.Produced() {
			if b.Strict {
				return nil, fmt.Errorf("%w: %s: %v", ErrProbeFailed, name, res.Err)
			}
			log.Warnw("probe failed, keeping previous section", "section", name, "error", res.Err)
			continue
		}

		section := res.Section
		if section == nil {
			section = types.Section{}
		}
		snap.Sections[name] = section
		snap.Requested[name] = true
		log.Debugw("collected section", "section", name, "status", res.Status, "duration", time.Since(start))
	}

	if snap.Requested.Has(types.SectionGit) {
		snap.PRSourceOK = b.addPullRequests(ctx, log, req, snap.Sections[types.SectionGit])
	}

	return snap, nil
}

// addPullRequests fills the PR fields of the git section. On any lookup
// failure it writes the zero baseline and returns false; the merge then
// restores previously known counts.
func (b *Builder) addPullRequests(ctx context.Context, log *zap.SugaredLogger, req Request, section types.Section) bool {
	source := b.PRSource
	if source == nil {
		source = prsource.Disabled{}
	}

	timeout := b.PRTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prs, err := source.MergedPullRequests(lookupCtx, req.RepoPath, req.Period.Start)
	if err != nil {
		if errors.Is(err, prsource.ErrDisabled) {
			log.Debugw("pull request lookup disabled")
		} else {
			log.Warnw("pull request lookup failed, keeping previous counts", "source", source.Name(), "error", err)
		}
		section[types.FieldPRMergedCount] = 0
		section[types.FieldPRMergedByMonth] = map[string]any{}
		return false
	}

	count, byMonth := prsource.Summarize(prs, req.Period)
	section[types.FieldPRMergedCount] = count
	section[types.FieldPRMergedByMonth] = types.MonthCounts(byMonth)
	log.Debugw("pull requests merged", "source", source.Name(), "count", count)
	return true
}

func (b *Builder) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

func (b *Builder) logger() *zap.SugaredLogger {
	if b.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return b.Logger
}
