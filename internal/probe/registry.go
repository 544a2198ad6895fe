package probe

import (
	"fmt"
	"sync"

	"github.com/steveyegge/pulse/internal/types"
)

// Registry holds the probe responsible for each section.
type Registry struct {
	mu     sync.RWMutex
	probes map[types.SectionName]Probe
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{probes: make(map[types.SectionName]Probe)}
}

// Register adds a probe. Each section may have only one probe.
func (r *Registry) Register(p Probe) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if !name.IsValid() {
		return fmt.Errorf("probe for unknown section %q", name)
	}
	if _, exists := r.probes[name]; exists {
		return fmt.Errorf("probe for section %q already registered", name)
	}
	r.probes[name] = p
	return nil
}

// Get returns the probe for a section.
func (r *Registry) Get(name types.SectionName) (Probe, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.probes[name]
	return p, ok
}

// Names returns the registered sections in canonical order.
func (r *Registry) Names() []types.SectionName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]types.SectionName, 0, len(r.probes))
	for _, name := range types.AllSections {
		if _, ok := r.probes[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// StandardOptions configures the built-in probes.
type StandardOptions struct {
	Git           CommitLog
	SessionRoot   string
	ConfigDir     string
	AppRoots      []string
	AppExclude    []string
	AppMaxWorkers int
}

// NewStandardRegistry registers the four built-in probes.
func NewStandardRegistry(opts StandardOptions) (*Registry, error) {
	r := NewRegistry()
	probes := []Probe{
		NewGitActivityProbe(opts.Git),
		NewAssistantProbe(opts.SessionRoot),
		NewInfrastructureProbe(opts.ConfigDir),
		NewAppProbe(opts.AppRoots, opts.AppExclude, opts.AppMaxWorkers),
	}
	for _, p := range probes {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}
