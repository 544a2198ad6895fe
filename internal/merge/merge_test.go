package merge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/pulse/internal/types"
)

var (
	testPeriod = types.Period{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
	}
	testNow = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
)

func previousDocument() *types.Document {
	return &types.Document{
		CollectedAt: testNow.Add(-24 * time.Hour),
		Period:      testPeriod,
		Sections: map[types.SectionName]types.Section{
			types.SectionGit: {
				"commits":                  120,
				"lines_added":              5000,
				types.FieldPRMergedCount:   4,
				types.FieldPRMergedByMonth: map[string]any{"2026-09": 3, "2026-10": 1},
			},
			types.SectionAssistantActivity: {"sessions": 42, "tool_calls": 900},
			types.SectionInfrastructure:    {"agents": 3, "commands": 7},
			types.SectionApp:               {"python_loc": 850, "test_count": 60},
		},
	}
}

func freshSnapshot(requested types.SectionSet, prOK bool, sections map[types.SectionName]types.Section) *types.Snapshot {
	return &types.Snapshot{
		RunID:       "run-1",
		CollectedAt: testNow,
		Period:      testPeriod,
		Requested:   requested,
		PRSourceOK:  prOK,
		Sections:    sections,
	}
}

func TestMerge_SectionPreservation(t *testing.T) {
	prev := previousDocument()
	fresh := freshSnapshot(types.NewSectionSet(types.SectionApp), true, map[types.SectionName]types.Section{
		types.SectionApp: {"python_loc": 900},
	})

	merged := Merge(prev, fresh)

	for _, name := range []types.SectionName{types.SectionGit, types.SectionAssistantActivity, types.SectionInfrastructure} {
		assert.Equal(t, prev.Sections[name], merged.Sections[name], "section %s should be preserved", name)
	}
	assert.Equal(t, types.Section{"python_loc": 900}, merged.Sections[types.SectionApp])
}

func TestMerge_SectionOverwrite(t *testing.T) {
	prev := previousDocument()
	freshGit := types.Section{
		"commits":                  130,
		"lines_added":              5400,
		types.FieldPRMergedCount:   6,
		types.FieldPRMergedByMonth: map[string]any{"2026-10": 3},
	}
	fresh := freshSnapshot(types.NewSectionSet(types.AllSections...), true, map[types.SectionName]types.Section{
		types.SectionGit:               freshGit,
		types.SectionAssistantActivity: {"sessions": 0},
		types.SectionInfrastructure:    {"agents": 0},
		types.SectionApp:               {"python_loc": 0},
	})

	merged := Merge(prev, fresh)

	assert.Equal(t, freshGit, merged.Sections[types.SectionGit])
	assert.Equal(t, types.Section{"sessions": 0}, merged.Sections[types.SectionAssistantActivity])
	assert.Equal(t, types.Section{"agents": 0}, merged.Sections[types.SectionInfrastructure])
	assert.Equal(t, types.Section{"python_loc": 0}, merged.Sections[types.SectionApp])
}

func TestMerge_PRFieldReconciliation(t *testing.T) {
	prev := previousDocument()
	prev.Sections[types.SectionGit][types.FieldPRMergedCount] = 7
	freshGit := types.Section{
		"commits":                  131,
		"lines_added":              5500,
		"active_days":              88,
		types.FieldPRMergedCount:   0,
		types.FieldPRMergedByMonth: map[string]any{},
	}
	fresh := freshSnapshot(types.NewSectionSet(types.SectionGit), false, map[types.SectionName]types.Section{
		types.SectionGit: freshGit,
	})

	merged := Merge(prev, fresh)
	git := merged.Sections[types.SectionGit]

	assert.Equal(t, int64(7), git.Int(types.FieldPRMergedCount))
	assert.Equal(t, prev.Sections[types.SectionGit][types.FieldPRMergedByMonth], git[types.FieldPRMergedByMonth])
	assert.Equal(t, 131, git["commits"])
	assert.Equal(t, 5500, git["lines_added"])
	assert.Equal(t, 88, git["active_days"])

	// The fresh input is not modified.
	assert.Equal(t, 0, freshGit[types.FieldPRMergedCount])
}

func TestMerge_PRReconciliationNeedsPositivePrevious(t *testing.T) {
	prev := previousDocument()
	prev.Sections[types.SectionGit][types.FieldPRMergedCount] = 0
	freshGit := types.Section{"commits": 1, types.FieldPRMergedCount: 0, types.FieldPRMergedByMonth: map[string]any{}}
	fresh := freshSnapshot(types.NewSectionSet(types.SectionGit), false, map[types.SectionName]types.Section{
		types.SectionGit: freshGit,
	})

	merged := Merge(prev, fresh)

	assert.Equal(t, freshGit, merged.Sections[types.SectionGit])
}

func TestMerge_PRSourceHealthyUsesFreshCount(t *testing.T) {
	prev := previousDocument()
	freshGit := types.Section{types.FieldPRMergedCount: 2, types.FieldPRMergedByMonth: map[string]any{"2026-10": 2}}
	fresh := freshSnapshot(types.NewSectionSet(types.SectionGit), true, map[types.SectionName]types.Section{
		types.SectionGit: freshGit,
	})

	merged := Merge(prev, fresh)

	assert.Equal(t, int64(2), merged.Sections[types.SectionGit].Int(types.FieldPRMergedCount))
}

func TestMerge_FirstRun(t *testing.T) {
	sections := map[types.SectionName]types.Section{
		types.SectionGit: {"commits": 10, types.FieldPRMergedCount: 0},
		types.SectionApp: {"go_loc": 1200},
	}
	fresh := freshSnapshot(types.NewSectionSet(types.SectionGit, types.SectionApp), false, sections)

	merged := Merge(nil, fresh)

	require.Len(t, merged.Sections, 2)
	assert.Equal(t, sections[types.SectionGit], merged.Sections[types.SectionGit])
	assert.Equal(t, sections[types.SectionApp], merged.Sections[types.SectionApp])
	assert.NotContains(t, merged.Sections, types.SectionAssistantActivity)
	assert.NotContains(t, merged.Sections, types.SectionInfrastructure)
	assert.Equal(t, testNow, merged.CollectedAt)
	assert.Equal(t, testPeriod, merged.Period)
}

func TestMerge_MalformedPreviousSectionFallsThrough(t *testing.T) {
	raw := []byte(`{
		"collected_at": "2026-10-18T08:00:00Z",
		"period": {"start": "2025-01-01", "end": "2026-10-18"},
		"git": {"commits": 100, "pr_merged_count": 4},
		"infrastructure": 17,
		"app": null
	}`)
	prev, err := types.DecodeDocument(raw)
	require.NoError(t, err)

	fresh := freshSnapshot(types.NewSectionSet(types.SectionGit), true, map[types.SectionName]types.Section{
		types.SectionGit: {"commits": 101, types.FieldPRMergedCount: 5},
	})

	merged := Merge(prev, fresh)

	assert.NotContains(t, merged.Sections, types.SectionInfrastructure)
	assert.NotContains(t, merged.Sections, types.SectionApp)
	assert.Equal(t, int64(101), merged.Sections[types.SectionGit].Int("commits"))
}

func TestMerge_BookkeepingNeverPublished(t *testing.T) {
	raw := []byte(`{
		"collected_at": "2026-10-18T08:00:00Z",
		"period": {"start": "2025-01-01", "end": "2026-10-18"},
		"requested_sections": ["git"],
		"pr_source_ok": false,
		"git": {"commits": 100},
		"dashboard_notes": {"owner": "platform"}
	}`)
	prev, err := types.DecodeDocument(raw)
	require.NoError(t, err)

	fresh := freshSnapshot(types.NewSectionSet(types.SectionApp), false, map[types.SectionName]types.Section{
		types.SectionApp: {"go_loc": 10},
	})

	data, err := types.EncodeDocument(Merge(prev, fresh))
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &top))
	assert.NotContains(t, top, types.KeyRequestedSections)
	assert.NotContains(t, top, types.KeyPRSourceOK)
	assert.Contains(t, top, "dashboard_notes")
	assert.Contains(t, top, "git")
}

func TestMerge_Idempotent(t *testing.T) {
	prev := previousDocument()
	fresh := freshSnapshot(types.NewSectionSet(types.SectionGit, types.SectionApp), false, map[types.SectionName]types.Section{
		types.SectionGit: {"commits": 140, types.FieldPRMergedCount: 0, types.FieldPRMergedByMonth: map[string]any{}},
		types.SectionApp: {"python_loc": 900},
	})

	once := Merge(prev, fresh)
	twice := Merge(once, fresh)

	assert.Equal(t, once, twice)

	// Also a fixed point across a serialization round trip.
	data, err := types.EncodeDocument(once)
	require.NoError(t, err)
	persisted, err := types.DecodeDocument(data)
	require.NoError(t, err)
	again, err := types.EncodeDocument(Merge(persisted, fresh))
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestMerge_Scenario_DegradedPRSubsetRun(t *testing.T) {
	prev := previousDocument()
	fresh := freshSnapshot(types.NewSectionSet(types.SectionGit, types.SectionApp), false, map[types.SectionName]types.Section{
		types.SectionGit: {"commits": 125, types.FieldPRMergedCount: 0, types.FieldPRMergedByMonth: map[string]any{}},
		types.SectionApp: {"python_loc": 900},
	})

	merged := Merge(prev, fresh)

	assert.Equal(t, int64(4), merged.Sections[types.SectionGit].Int(types.FieldPRMergedCount))
	assert.Equal(t, int64(900), merged.Sections[types.SectionApp].Int("python_loc"))
	assert.Equal(t, int64(3), merged.Sections[types.SectionInfrastructure].Int("agents"))
	assert.Equal(t, prev.Sections[types.SectionInfrastructure], merged.Sections[types.SectionInfrastructure])
	assert.Equal(t, prev.Sections[types.SectionAssistantActivity], merged.Sections[types.SectionAssistantActivity])
}

func TestMerge_Scenario_FirstRunSubset(t *testing.T) {
	fresh := freshSnapshot(types.NewSectionSet(types.SectionGit, types.SectionApp), true, map[types.SectionName]types.Section{
		types.SectionGit: {"commits": 3},
		types.SectionApp: {"python_loc": 40},
	})

	data, err := types.EncodeDocument(Merge(nil, fresh))
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &top))
	assert.Contains(t, top, "git")
	assert.Contains(t, top, "app")
	assert.NotContains(t, top, "assistant_activity")
	assert.NotContains(t, top, "infrastructure")
}
