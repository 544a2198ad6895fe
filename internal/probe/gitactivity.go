package probe

import (
	"context"

	"github.com/steveyegge/pulse/internal/git"
	"github.com/steveyegge/pulse/internal/types"
)

// CommitLog lists commits with line statistics. *git.Git implements it.
type CommitLog interface {
	Log(ctx context.Context, repoPath string, opts git.LogOptions) ([]git.Commit, error)
}

// GitActivityProbe summarizes commit activity over the period.
// Pull-request fields are added by the snapshot builder.
type GitActivityProbe struct {
	Git CommitLog
}

// NewGitActivityProbe creates a git activity probe.
func NewGitActivityProbe(g CommitLog) *GitActivityProbe {
	return &GitActivityProbe{Git: g}
}

// Name implements Probe.
func (p *GitActivityProbe) Name() types.SectionName {
	return types.SectionGit
}

// Collect implements Probe.
func (p *GitActivityProbe) Collect(ctx context.Context, req Request) (Result, error) {
	if p.Git == nil {
		return Failed("git is not available"), nil
	}

	commits, err := p.Git.Log(ctx, req.RepoPath, git.LogOptions{
		Since:    req.Period.Start,
		NoMerges: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Failed("reading git log: %w", err), nil
	}

	var (
		added, removed int
		byMonth        = make(map[string]int)
		days           = make(map[string]bool)
		authors        = make(map[string]bool)
		first, last    string
		count          int
	)
	for _, c := range commits {
		if !req.Period.Contains(c.AuthorDate) {
			continue
		}
		count++
		added += c.LinesAdded
		removed += c.LinesRemoved
		byMonth[c.AuthorDate.Format(types.MonthLayout)]++
		day := c.AuthorDate.Format(types.DateLayout)
		days[day] = true
		if c.AuthorEmail != "" {
			authors[c.AuthorEmail] = true
		}
		if first == "" || day < first {
			first = day
		}
		if day > last {
			last = day
		}
	}

	section := types.Section{
		"commits":          count,
		"commits_by_month": types.MonthCounts(byMonth),
		"lines_added":      added,
		"lines_removed":    removed,
		"net_lines":        added - removed,
		"active_days":      len(days),
		"contributors":     len(authors),
	}
	if count == 0 {
		return Empty(section), nil
	}
	section["first_commit"] = first
	section["last_commit"] = last
	return OK(section), nil
}
