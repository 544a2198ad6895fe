package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/pulse/internal/types"
)

// stubProbe implements Probe for testing
type stubProbe struct {
	name types.SectionName
}

func (s *stubProbe) Name() types.SectionName { return s.name }

func (s *stubProbe) Collect(ctx context.Context, req Request) (Result, error) {
	return OK(types.Section{"n": 1}), nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&stubProbe{name: types.SectionApp}))
	require.NoError(t, r.Register(&stubProbe{name: types.SectionGit}))

	err := r.Register(&stubProbe{name: types.SectionApp})
	assert.Error(t, err, "duplicate section")

	err = r.Register(&stubProbe{name: "weather"})
	assert.Error(t, err, "unknown section")

	p, ok := r.Get(types.SectionGit)
	require.True(t, ok)
	assert.Equal(t, types.SectionGit, p.Name())

	_, ok = r.Get(types.SectionInfrastructure)
	assert.False(t, ok)
}

func TestRegistry_NamesCanonicalOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubProbe{name: types.SectionApp}))
	require.NoError(t, r.Register(&stubProbe{name: types.SectionInfrastructure}))
	require.NoError(t, r.Register(&stubProbe{name: types.SectionGit}))

	assert.Equal(t, []types.SectionName{
		types.SectionGit,
		types.SectionInfrastructure,
		types.SectionApp,
	}, r.Names())
}

func TestNewStandardRegistry(t *testing.T) {
	r, err := NewStandardRegistry(StandardOptions{
		Git:         &fakeLog{},
		SessionRoot: t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.AllSections, r.Names())
}

func TestResultProduced(t *testing.T) {
	assert.True(t, OK(types.Section{}).Produced())
	assert.True(t, Empty(types.Section{}).Produced())
	assert.False(t, Failed("boom").Produced())
}
