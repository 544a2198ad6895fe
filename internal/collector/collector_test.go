package collector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/pulse/internal/merge"
	"github.com/steveyegge/pulse/internal/probe"
	"github.com/steveyegge/pulse/internal/prsource"
	"github.com/steveyegge/pulse/internal/types"
)

type fakeProbe struct {
	name   types.SectionName
	result probe.Result
	err    error
	calls  int
}

func (f *fakeProbe) Name() types.SectionName { return f.name }

func (f *fakeProbe) Collect(ctx context.Context, req probe.Request) (probe.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeSource struct {
	prs   []prsource.MergedPR
	err   error
	calls int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) MergedPullRequests(ctx context.Context, repoPath string, since time.Time) ([]prsource.MergedPR, error) {
	f.calls++
	return f.prs, f.err
}

var period = types.Period{
	Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
}

func newBuilder(t *testing.T, source prsource.Source, probes ...probe.Probe) *Builder {
	t.Helper()
	reg := probe.NewRegistry()
	for _, p := range probes {
		require.NoError(t, reg.Register(p))
	}
	return &Builder{
		Probes:   reg,
		PRSource: source,
		now:      func() time.Time { return time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC) },
	}
}

func gitProbe() *fakeProbe {
	return &fakeProbe{name: types.SectionGit, result: probe.OK(types.Section{"commits": 10})}
}

func TestBuild_AllSectionsHealthy(t *testing.T) {
	source := &fakeSource{prs: []prsource.MergedPR{
		{Number: 1, MergedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{Number: 2, MergedAt: time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC)},
		{Number: 3, MergedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
	}}
	app := &fakeProbe{name: types.SectionApp, result: probe.Empty(types.Section{"total_loc": 0})}
	b := newBuilder(t, source, gitProbe(), app)

	snap, err := b.Build(context.Background(), Request{
		RepoPath: "/repo",
		Sections: types.NewSectionSet(types.SectionGit, types.SectionApp),
		Period:   period,
	})
	require.NoError(t, err)

	_, err = uuid.Parse(snap.RunID)
	assert.NoError(t, err, "RunID should be a UUID")
	assert.Equal(t, time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC), snap.CollectedAt)
	assert.Equal(t, types.NewSectionSet(types.SectionGit, types.SectionApp), snap.Requested)
	assert.True(t, snap.PRSourceOK)

	git := snap.Sections[types.SectionGit]
	assert.Equal(t, int64(10), git.Int("commits"))
	assert.Equal(t, int64(3), git.Int(types.FieldPRMergedCount))
	assert.Equal(t, map[string]any{"2025-02": 2, "2025-05": 1}, git.Map(types.FieldPRMergedByMonth))

	assert.Contains(t, snap.Sections, types.SectionApp, "empty results are authoritative")
}

func TestBuild_PRSourceFailureWritesSentinel(t *testing.T) {
	source := &fakeSource{err: errors.New("gh: not authenticated")}
	b := newBuilder(t, source, gitProbe())

	snap, err := b.Build(context.Background(), Request{
		RepoPath: "/repo",
		Sections: types.NewSectionSet(types.SectionGit),
		Period:   period,
	})
	require.NoError(t, err, "PR source failure is never fatal")

	assert.False(t, snap.PRSourceOK)
	git := snap.Sections[types.SectionGit]
	assert.Equal(t, 0, git[types.FieldPRMergedCount])
	assert.Equal(t, map[string]any{}, git[types.FieldPRMergedByMonth])
	assert.Equal(t, int64(10), git.Int("commits"))
}

func TestBuild_NoPRSourceIsDisabled(t *testing.T) {
	b := newBuilder(t, nil, gitProbe())

	snap, err := b.Build(context.Background(), Request{
		RepoPath: "/repo",
		Sections: types.NewSectionSet(types.SectionGit),
		Period:   period,
	})
	require.NoError(t, err)
	assert.False(t, snap.PRSourceOK)
}

func TestBuild_PRSourceSkippedWithoutGit(t *testing.T) {
	source := &fakeSource{}
	infra := &fakeProbe{name: types.SectionInfrastructure, result: probe.OK(types.Section{"agents": 2})}
	b := newBuilder(t, source, infra)

	snap, err := b.Build(context.Background(), Request{
		RepoPath: "/repo",
		Sections: types.NewSectionSet(types.SectionInfrastructure),
		Period:   period,
	})
	require.NoError(t, err)
	assert.Zero(t, source.calls)
	assert.False(t, snap.Requested.Has(types.SectionGit))
}

func TestBuild_FailedProbeIsNotProduced(t *testing.T) {
	assistant := &fakeProbe{
		name:   types.SectionAssistantActivity,
		result: probe.Failed("session directory unreadable"),
	}
	app := &fakeProbe{name: types.SectionApp, result: probe.OK(types.Section{"total_loc": 100})}
	b := newBuilder(t, nil, assistant, app)

	snap, err := b.Build(context.Background(), Request{
		RepoPath: "/repo",
		Sections: types.NewSectionSet(types.SectionAssistantActivity, types.SectionApp),
		Period:   period,
	})
	require.NoError(t, err)

	assert.Equal(t, types.NewSectionSet(types.SectionApp), snap.Requested)
	assert.NotContains(t, snap.Sections, types.SectionAssistantActivity)
	assert.Equal(t, 1, app.calls)
}

func TestBuild_NoSessionDirectoryZeroesAssistantActivity(t *testing.T) {
	assistant := probe.NewAssistantProbe(filepath.Join(t.TempDir(), "projects"))
	b := newBuilder(t, nil, assistant)
	b.Strict = true
	req := Request{
		RepoPath: "/repo",
		Sections: types.NewSectionSet(types.SectionAssistantActivity),
		Period:   period,
	}

	snap, err := b.Build(context.Background(), req)
	require.NoError(t, err, "a missing session directory is not a failure, even in strict mode")
	assert.True(t, snap.Requested.Has(types.SectionAssistantActivity))

	first := merge.Merge(nil, snap)
	require.NotNil(t, first.Section(types.SectionAssistantActivity))
	assert.Equal(t, int64(0), first.Section(types.SectionAssistantActivity).Int("sessions"))

	previous := &types.Document{Sections: map[types.SectionName]types.Section{
		types.SectionAssistantActivity: {"sessions": 42, "tool_calls": 300},
	}}
	merged := merge.Merge(previous, snap)
	assistantSection := merged.Section(types.SectionAssistantActivity)
	assert.Equal(t, int64(0), assistantSection.Int("sessions"))
	assert.Equal(t, int64(0), assistantSection.Int("tool_calls"))
}

func TestBuild_StrictModeAbortsOnFailedProbe(t *testing.T) {
	assistant := &fakeProbe{
		name:   types.SectionAssistantActivity,
		result: probe.Failed("session directory unreadable"),
	}
	b := newBuilder(t, nil, assistant)
	b.Strict = true

	_, err := b.Build(context.Background(), Request{
		RepoPath: "/repo",
		Sections: types.NewSectionSet(types.SectionAssistantActivity),
		Period:   period,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProbeFailed))
}

func TestBuild_ProbeErrorIsFatal(t *testing.T) {
	broken := &fakeProbe{name: types.SectionGit, err: errors.New("unexpected")}
	app := &fakeProbe{name: types.SectionApp, result: probe.OK(types.Section{})}
	b := newBuilder(t, nil, broken, app)

	_, err := b.Build(context.Background(), Request{
		RepoPath: "/repo",
		Sections: types.NewSectionSet(types.SectionGit, types.SectionApp),
		Period:   period,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collecting git")
	assert.Zero(t, app.calls, "sections run in canonical order and stop at the first error")
}

func TestBuild_InvalidRequests(t *testing.T) {
	b := newBuilder(t, nil, gitProbe())

	_, err := b.Build(context.Background(), Request{RepoPath: "/repo", Period: period})
	assert.Error(t, err, "no sections")

	_, err = b.Build(context.Background(), Request{
		RepoPath: "/repo",
		Sections: types.NewSectionSet(types.SectionApp),
		Period:   period,
	})
	assert.ErrorContains(t, err, "no probe registered")

	_, err = b.Build(context.Background(), Request{
		RepoPath: "/repo",
		Sections: types.NewSectionSet(types.SectionGit),
		Period:   types.Period{Start: period.End, End: period.Start},
	})
	assert.ErrorContains(t, err, "invalid period")
}
