// Package prsource looks up merged pull requests for the git section.
//
// Every source is optional: a missing tool, a network or authentication
// failure, or a malformed response is reported as an error and the caller
// degrades to the previously persisted counters.
package prsource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/pulse/internal/types"
)

// ErrDisabled is returned by the disabled source.
var ErrDisabled = errors.New("pull request lookup disabled")

// ErrTruncated is returned when more pull requests matched than the
// configured limit allows. A partial list would undercount, so callers treat
// it like any other lookup failure.
var ErrTruncated = errors.New("pull request list truncated at limit")

// MergedPR is one merged pull request.
type MergedPR struct {
	Number   int
	MergedAt time.Time
}

// Source lists merged pull requests for a repository.
type Source interface {
	// Name identifies the source in logs ("gh", "api", "none").
	Name() string

	// MergedPullRequests returns pull requests merged on or after since.
	MergedPullRequests(ctx context.Context, repoPath string, since time.Time) ([]MergedPR, error)
}

// Disabled is a Source that never has data.
type Disabled struct{}

// Name implements Source.
func (Disabled) Name() string { return "none" }

// MergedPullRequests implements Source.
func (Disabled) MergedPullRequests(ctx context.Context, repoPath string, since time.Time) ([]MergedPR, error) {
	return nil, ErrDisabled
}

// Summarize counts the pull requests merged inside the period, in total
// and per month.
func Summarize(prs []MergedPR, period types.Period) (int, map[string]int) {
	byMonth := make(map[string]int)
	count := 0
	for _, pr := range prs {
		if !period.Contains(pr.MergedAt) {
			continue
		}
		count++
		byMonth[pr.MergedAt.UTC().Format(types.MonthLayout)]++
	}
	return count, byMonth
}

// ParseRepoSlug extracts "owner/name" from a GitHub remote URL such as
// git@github.com:owner/name.git or https://github.com/owner/name.
func ParseRepoSlug(remoteURL string) (string, error) {
	u := strings.TrimSpace(remoteURL)
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, ".git")

	var path string
	switch {
	case strings.HasPrefix(u, "git@"):
		_, after, ok := strings.Cut(u, ":")
		if !ok {
			return "", fmt.Errorf("unrecognized remote URL %q", remoteURL)
		}
		path = after
	case strings.Contains(u, "://"):
		_, after, _ := strings.Cut(u, "://")
		_, rest, ok := strings.Cut(after, "/")
		if !ok {
			return "", fmt.Errorf("unrecognized remote URL %q", remoteURL)
		}
		path = rest
	default:
		return "", fmt.Errorf("unrecognized remote URL %q", remoteURL)
	}

	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("remote URL %q does not name owner/repository", remoteURL)
	}
	return parts[0] + "/" + parts[1], nil
}
