// Package probe gathers raw metrics for one section of the snapshot.
//
// Probes are independent and partially unreliable. A probe that cannot
// reach its data source reports StatusFailed rather than an error, so the
// builder can keep the previously persisted section. An error returned from
// Collect means something unexpected happened and aborts the run.
package probe

import (
	"context"
	"fmt"

	"github.com/steveyegge/pulse/internal/types"
)

// Probe collects the metrics of a single section.
type Probe interface {
	// Name returns the section this probe produces.
	Name() types.SectionName

	// Collect gathers the section for the repository and period in req.
	Collect(ctx context.Context, req Request) (Result, error)
}

// Request describes what a probe should measure.
type Request struct {
	// RepoPath is the absolute path of the resolved repository
	RepoPath string

	// Period bounds time-based counters
	Period types.Period
}

// Status classifies a probe outcome.
type Status string

const (
	// StatusOK means the data source answered with data.
	StatusOK Status = "ok"

	// StatusEmpty means the data source answered but had nothing to count.
	// The zero-valued section is still authoritative.
	StatusEmpty Status = "empty"

	// StatusFailed means the data source could not be read this run.
	StatusFailed Status = "failed"
)

// Result is the outcome of one Collect call.
type Result struct {
	Status  Status
	Section types.Section

	// Err explains a StatusFailed result
	Err error

	// Warnings are non-fatal problems encountered while collecting
	// (skipped files, unparseable records)
	Warnings []string
}

// Produced reports whether the result carries an authoritative section.
func (r Result) Produced() bool {
	return r.Status == StatusOK || r.Status == StatusEmpty
}

// OK wraps a populated section.
func OK(section types.Section) Result {
	return Result{Status: StatusOK, Section: section}
}

// Empty wraps a zero-valued section.
func Empty(section types.Section) Result {
	return Result{Status: StatusEmpty, Section: section}
}

// Failed reports an unreachable data source.
func Failed(format string, args ...any) Result {
	return Result{Status: StatusFailed, Err: fmt.Errorf(format, args...)}
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
