// Package merge folds a freshly collected snapshot into the previously
// persisted document.
//
// Rules, applied in order:
//
//  1. Section preservation: a section the run did not request keeps the
//     previous document's value verbatim, when that value is a well-formed
//     mapping. Otherwise the fresh value (possibly absent) is used.
//  2. Pull-request reconciliation: when git was requested but the
//     pull-request source was unavailable, and the previous document has a
//     positive pr_merged_count, the two pull-request fields of the fresh git
//     section are replaced with the previous values. Every other git field
//     stays as freshly collected.
//  3. Bookkeeping (requested sections, PR source status) never reaches the
//     output.
//
// Apart from the pull-request carve-out there is no recursive merge: a
// section is either replaced or preserved whole.
package merge

import (
	"encoding/json"

	"github.com/steveyegge/pulse/internal/types"
)

// Merge combines previous (nil on the first run) with fresh. Neither
// argument is modified.
func Merge(previous *types.Document, fresh *types.Snapshot) *types.Document {
	out := &types.Document{
		CollectedAt: fresh.CollectedAt,
		Period:      fresh.Period,
		Sections:    make(map[types.SectionName]types.Section, len(types.AllSections)),
	}

	for _, name := range types.AllSections {
		if section := pickSection(previous, fresh, name); section != nil {
			out.Sections[name] = section
		}
	}

	if fresh.Requested.Has(types.SectionGit) && !fresh.PRSourceOK {
		if git := reconcilePullRequests(previous.Section(types.SectionGit), out.Sections[types.SectionGit]); git != nil {
			out.Sections[types.SectionGit] = git
		}
	}

	if previous != nil && len(previous.Extra) > 0 {
		out.Extra = make(map[string]json.RawMessage, len(previous.Extra))
		for k, v := range previous.Extra {
			if types.IsBookkeepingKey(k) {
				continue
			}
			out.Extra[k] = v
		}
	}

	return out
}

// pickSection applies the section-level preservation rule.
func pickSection(previous *types.Document, fresh *types.Snapshot, name types.SectionName) types.Section {
	if !fresh.Requested.Has(name) {
		if prev := previous.Section(name); prev != nil {
			return prev
		}
	}
	return fresh.Sections[name]
}

// reconcilePullRequests returns a copy of fresh with the pull-request fields
// taken from prev, or nil when no override applies.
func reconcilePullRequests(prev, fresh types.Section) types.Section {
	if prev == nil || fresh == nil {
		return nil
	}
	if prev.Int(types.FieldPRMergedCount) <= 0 {
		return nil
	}

	git := fresh.Clone()
	git[types.FieldPRMergedCount] = prev[types.FieldPRMergedCount]
	if byMonth, ok := prev[types.FieldPRMergedByMonth]; ok {
		git[types.FieldPRMergedByMonth] = byMonth
	} else {
		delete(git, types.FieldPRMergedByMonth)
	}
	return git
}
