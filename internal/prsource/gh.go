package prsource

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// commandRunner runs an external command in dir and returns its stdout.
type commandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return output, nil
}

// GHSource reads merged pull requests with the GitHub CLI.
type GHSource struct {
	// Limit caps the number of pull requests listed; more than Limit
	// matches is ErrTruncated
	Limit int

	ghPath string
	run    commandRunner
}

// NewGHSource creates a gh-backed source. It fails when gh is not installed.
func NewGHSource(limit int) (*GHSource, error) {
	ghPath, err := exec.LookPath("gh")
	if err != nil {
		return nil, fmt.Errorf("gh not found in PATH: %w", err)
	}
	if limit <= 0 {
		limit = 1000
	}
	return &GHSource{Limit: limit, ghPath: ghPath, run: execRunner}, nil
}

// Name implements Source.
func (s *GHSource) Name() string { return "gh" }

// MergedPullRequests implements Source.
// SECURITY: repoPath must be a validated, trusted path.
func (s *GHSource) MergedPullRequests(ctx context.Context, repoPath string, since time.Time) ([]MergedPR, error) {
	args := []string{
		"pr", "list",
		"--state", "merged",
		"--json", "number,mergedAt",
		"--limit", strconv.Itoa(s.Limit+1),
	}
	if !since.IsZero() {
		args = append(args, "--search", "merged:>="+since.Format("2006-01-02"))
	}

	output, err := s.run(ctx, repoPath, s.ghPath, args...)
	if err != nil {
		return nil, err
	}
	prs, err := parseGHList(output)
	if err != nil {
		return nil, err
	}
	if len(prs) > s.Limit {
		return nil, fmt.Errorf("%w: gh listed more than %d (raise pr.limit)", ErrTruncated, s.Limit)
	}
	return prs, nil
}

// parseGHList parses the JSON array printed by gh pr list --json number,mergedAt.
func parseGHList(output []byte) ([]MergedPR, error) {
	if !gjson.ValidBytes(output) {
		return nil, fmt.Errorf("gh returned malformed JSON")
	}
	list := gjson.ParseBytes(output)
	if !list.IsArray() {
		return nil, fmt.Errorf("gh returned %s, expected an array", list.Type)
	}

	var prs []MergedPR
	var parseErr error
	list.ForEach(func(_, item gjson.Result) bool {
		merged := item.Get("mergedAt").String()
		if merged == "" {
			return true // not merged
		}
		at, err := time.Parse(time.RFC3339, merged)
		if err != nil {
			parseErr = fmt.Errorf("pull request #%d: invalid mergedAt %q", item.Get("number").Int(), merged)
			return false
		}
		prs = append(prs, MergedPR{Number: int(item.Get("number").Int()), MergedAt: at})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return prs, nil
}
