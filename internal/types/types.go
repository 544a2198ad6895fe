package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SectionName identifies one category of metrics in a snapshot.
type SectionName string

const (
	SectionGit               SectionName = "git"
	SectionAssistantActivity SectionName = "assistant_activity"
	SectionInfrastructure    SectionName = "infrastructure"
	SectionApp               SectionName = "app"
)

// AllSections lists every section in canonical order.
// Probes run and documents serialize in this order.
var AllSections = []SectionName{
	SectionGit,
	SectionAssistantActivity,
	SectionInfrastructure,
	SectionApp,
}

// IsValid checks if the section name is one of the known sections
func (s SectionName) IsValid() bool {
	switch s {
	case SectionGit, SectionAssistantActivity, SectionInfrastructure, SectionApp:
		return true
	}
	return false
}

// ParseSectionName converts a user-supplied name into a SectionName.
func ParseSectionName(name string) (SectionName, error) {
	s := SectionName(strings.TrimSpace(strings.ToLower(name)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown section %q (valid: %s)", name, joinSections(AllSections))
	}
	return s, nil
}

// SectionSet is an unordered set of section names.
type SectionSet map[SectionName]bool

// NewSectionSet builds a set from the given names.
func NewSectionSet(names ...SectionName) SectionSet {
	set := make(SectionSet, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// ParseSectionList parses a comma-separated list such as "git,app".
func ParseSectionList(list string) (SectionSet, error) {
	set := SectionSet{}
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		name, err := ParseSectionName(part)
		if err != nil {
			return nil, err
		}
		set[name] = true
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no sections given")
	}
	return set, nil
}

// Has reports whether the set contains name.
func (s SectionSet) Has(name SectionName) bool {
	return s[name]
}

// Sorted returns the members in canonical section order.
func (s SectionSet) Sorted() []SectionName {
	out := make([]SectionName, 0, len(s))
	for _, name := range AllSections {
		if s[name] {
			out = append(out, name)
		}
	}
	return out
}

// String renders the set as a comma-separated list in canonical order.
func (s SectionSet) String() string {
	return joinSections(s.Sorted())
}

func joinSections(names []SectionName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ",")
}

// Mode selects which sections a run requests.
type Mode string

const (
	// ModeFull requests every section.
	ModeFull Mode = "full"

	// ModeRestricted requests every section except assistant_activity, for
	// environments (CI runners) that cannot see local assistant session logs.
	ModeRestricted Mode = "restricted"
)

// IsValid checks if the mode value is valid
func (m Mode) IsValid() bool {
	switch m {
	case ModeFull, ModeRestricted:
		return true
	}
	return false
}

// Sections returns the section set requested by the mode.
func (m Mode) Sections() SectionSet {
	switch m {
	case ModeRestricted:
		return NewSectionSet(SectionGit, SectionInfrastructure, SectionApp)
	default:
		return NewSectionSet(AllSections...)
	}
}

// DateLayout is the layout used for period bounds and day-level fields.
const DateLayout = "2006-01-02"

// MonthLayout is the key layout of month-bucketed counters.
const MonthLayout = "2006-01"

// Period is the date range covered by time-bounded counters.
type Period struct {
	Start time.Time
	End   time.Time
}

// Validate checks that the period is well-formed
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("period start and end are required")
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("period end %s is before start %s",
			p.End.Format(DateLayout), p.Start.Format(DateLayout))
	}
	return nil
}

// Contains reports whether t falls inside the period. The end day is inclusive.
func (p Period) Contains(t time.Time) bool {
	end := time.Date(p.End.Year(), p.End.Month(), p.End.Day(), 0, 0, 0, 0, p.End.Location()).AddDate(0, 0, 1)
	return !t.Before(p.Start) && t.Before(end)
}

type periodJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (p Period) toJSON() periodJSON {
	return periodJSON{Start: p.Start.Format(DateLayout), End: p.End.Format(DateLayout)}
}

func (pj periodJSON) toPeriod() (Period, error) {
	var p Period
	var err error
	if pj.Start != "" {
		if p.Start, err = time.Parse(DateLayout, pj.Start); err != nil {
			return p, fmt.Errorf("invalid period start %q: %w", pj.Start, err)
		}
	}
	if pj.End != "" {
		if p.End, err = time.Parse(DateLayout, pj.End); err != nil {
			return p, fmt.Errorf("invalid period end %q: %w", pj.End, err)
		}
	}
	return p, nil
}

// Snapshot is the in-memory result of one collection run before merging.
//
// Requested and PRSourceOK are run-scoped bookkeeping: they drive the merge
// and never reach the persisted Document.
type Snapshot struct {
	RunID       string
	CollectedAt time.Time
	Period      Period

	// Requested holds the sections this run actually produced.
	Requested SectionSet

	// PRSourceOK is false when the pull-request lookup failed this run.
	// Only meaningful when Requested contains SectionGit.
	PRSourceOK bool

	Sections map[SectionName]Section
}

// SectionNames returns the names of the sections held by the snapshot, sorted.
func (s *Snapshot) SectionNames() []string {
	names := make([]string, 0, len(s.Sections))
	for name := range s.Sections {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}
