package probe

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/steveyegge/pulse/internal/types"
)

// AssistantProbe counts AI-assistant usage from the session logs the
// assistant keeps per project: one JSONL file per session under
// <root>/<encoded repository path>/.
type AssistantProbe struct {
	// Root holds one directory per project
	Root string
}

// NewAssistantProbe creates an assistant activity probe.
func NewAssistantProbe(root string) *AssistantProbe {
	return &AssistantProbe{Root: root}
}

// Name implements Probe.
func (p *AssistantProbe) Name() types.SectionName {
	return types.SectionAssistantActivity
}

var projectDirChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// ProjectDir returns the session directory for a repository path.
func (p *AssistantProbe) ProjectDir(repoPath string) string {
	return filepath.Join(p.Root, projectDirChars.ReplaceAllString(repoPath, "-"))
}

// sessionStats is the tally of one session file.
type sessionStats struct {
	first, last     time.Time
	user, assistant int
	toolCalls       int
	tools           map[string]int
	days            map[string]bool
	malformed       int
}

// Collect implements Probe.
func (p *AssistantProbe) Collect(ctx context.Context, req Request) (Result, error) {
	dir := p.ProjectDir(req.RepoPath)
	// No directory means the assistant was never used here: zero, not unknown
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Failed("reading session directory %s: %w", dir, err), nil
	}

	var (
		result   Result
		sessions int
		users    int
		replies  int
		calls    int
		last     time.Time
		byMonth  = make(map[string]int)
		tools    = make(map[string]int)
		days     = make(map[string]bool)
	)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}

		stats, err := readSession(filepath.Join(dir, entry.Name()), req.Period)
		if err != nil {
			result.warnf("skipping session %s: %v", entry.Name(), err)
			continue
		}
		if stats.malformed > 0 {
			result.warnf("session %s: %d unparseable records", entry.Name(), stats.malformed)
		}
		if stats.first.IsZero() {
			continue // nothing in the period
		}

		sessions++
		users += stats.user
		replies += stats.assistant
		calls += stats.toolCalls
		byMonth[stats.first.Format(types.MonthLayout)]++
		for name, n := range stats.tools {
			tools[name] += n
		}
		for day := range stats.days {
			days[day] = true
		}
		if stats.last.After(last) {
			last = stats.last
		}
	}

	toolCounts := make(map[string]any, len(tools))
	for name, n := range tools {
		toolCounts[name] = n
	}

	result.Section = types.Section{
		"sessions":           sessions,
		"user_messages":      users,
		"assistant_messages": replies,
		"tool_calls":         calls,
		"active_days":        len(days),
		"sessions_by_month":  types.MonthCounts(byMonth),
		"tools":              toolCounts,
	}
	if sessions == 0 {
		result.Status = StatusEmpty
		return result, nil
	}
	result.Section["last_session"] = last.UTC().Format(time.RFC3339)
	result.Status = StatusOK
	return result, nil
}

// readSession tallies the in-period messages of one session log.
func readSession(path string, period types.Period) (*sessionStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stats := &sessionStats{tools: make(map[string]int), days: make(map[string]bool)}

	scanner := bufio.NewScanner(f)
	// Records embed whole tool outputs and can be large
	scanner.Buffer(make([]byte, 0, 256*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !gjson.Valid(line) {
			stats.malformed++
			continue
		}

		record := gjson.Parse(line)
		kind := record.Get("type").String()
		if kind != "user" && kind != "assistant" {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, record.Get("timestamp").String())
		if err != nil || !period.Contains(ts) {
			continue
		}

		switch kind {
		case "user":
			// Tool results come back as user records; they are not prompts
			if record.Get(`message.content.#(type=="tool_result")`).Exists() {
				continue
			}
			stats.user++
		case "assistant":
			stats.assistant++
			record.Get(`message.content.#(type=="tool_use")#.name`).ForEach(func(_, name gjson.Result) bool {
				stats.toolCalls++
				stats.tools[name.String()]++
				return true
			})
		}

		if stats.first.IsZero() || ts.Before(stats.first) {
			stats.first = ts
		}
		if ts.After(stats.last) {
			stats.last = ts
		}
		stats.days[ts.UTC().Format(types.DateLayout)] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}
