package probe

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/steveyegge/pulse/internal/types"
)

// InfrastructureProbe counts the assistant configuration checked into the
// repository: agents, commands, skills, hooks and MCP servers.
type InfrastructureProbe struct {
	// Dir is the configuration directory relative to the repository root
	Dir string
}

// NewInfrastructureProbe creates an infrastructure probe. An empty dir means ".claude".
func NewInfrastructureProbe(dir string) *InfrastructureProbe {
	if dir == "" {
		dir = ".claude"
	}
	return &InfrastructureProbe{Dir: dir}
}

// Name implements Probe.
func (p *InfrastructureProbe) Name() types.SectionName {
	return types.SectionInfrastructure
}

// Collect implements Probe.
func (p *InfrastructureProbe) Collect(ctx context.Context, req Request) (Result, error) {
	root := filepath.Join(req.RepoPath, p.Dir)

	agents, err := countMarkdown(filepath.Join(root, "agents"), false)
	if err != nil {
		return Failed("counting agents: %w", err), nil
	}
	commands, err := countMarkdown(filepath.Join(root, "commands"), true)
	if err != nil {
		return Failed("counting commands: %w", err), nil
	}
	skills, err := countSkills(filepath.Join(root, "skills"))
	if err != nil {
		return Failed("counting skills: %w", err), nil
	}
	hooks, err := countHooks(filepath.Join(root, "settings.json"))
	if err != nil {
		return Failed("reading hooks: %w", err), nil
	}
	servers, err := countMCPServers(filepath.Join(req.RepoPath, ".mcp.json"))
	if err != nil {
		return Failed("reading MCP servers: %w", err), nil
	}

	section := types.Section{
		"agents":      agents,
		"commands":    commands,
		"skills":      skills,
		"hooks":       hooks,
		"mcp_servers": servers,
	}
	if agents+commands+skills+hooks+servers == 0 {
		return Empty(section), nil
	}
	return OK(section), nil
}

// countMarkdown counts .md files in dir, descending into subdirectories
// when recursive is set. A missing directory counts as zero.
func countMarkdown(dir string, recursive bool) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".md") {
			count++
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return count, err
}

// countSkills counts the direct subdirectories of dir that contain SKILL.md.
func countSkills(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, entry.Name(), "SKILL.md")); err == nil {
			count++
		}
	}
	return count, nil
}

// countHooks counts hook commands in a settings file shaped like
// {"hooks": {"<Event>": [{"matcher": "...", "hooks": [{...}, ...]}]}}.
func countHooks(path string) (int, error) {
	doc, err := readJSON(path)
	if err != nil || !doc.Exists() {
		return 0, err
	}

	count := 0
	doc.Get("hooks").ForEach(func(_, matchers gjson.Result) bool {
		matchers.ForEach(func(_, matcher gjson.Result) bool {
			count += int(matcher.Get("hooks.#").Int())
			return true
		})
		return true
	})
	return count, nil
}

// countMCPServers counts the keys of "mcpServers".
func countMCPServers(path string) (int, error) {
	doc, err := readJSON(path)
	if err != nil || !doc.Exists() {
		return 0, err
	}

	count := 0
	doc.Get("mcpServers").ForEach(func(_, _ gjson.Result) bool {
		count++
		return true
	})
	return count, nil
}

// readJSON parses a JSON file. A missing file yields an empty result.
func readJSON(path string) (gjson.Result, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return gjson.Result{}, nil
	}
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, errors.New(filepath.Base(path) + " is not valid JSON")
	}
	return gjson.ParseBytes(data), nil
}
