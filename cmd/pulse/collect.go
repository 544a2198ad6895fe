package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/pulse/internal/collector"
	"github.com/steveyegge/pulse/internal/config"
	"github.com/steveyegge/pulse/internal/git"
	"github.com/steveyegge/pulse/internal/pipeline"
	"github.com/steveyegge/pulse/internal/probe"
	"github.com/steveyegge/pulse/internal/prsource"
	"github.com/steveyegge/pulse/internal/publish"
	"github.com/steveyegge/pulse/internal/storage"
	"github.com/steveyegge/pulse/internal/types"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect metrics, merge them into the document and publish it",
	Long: `Run every requested probe, merge the results into the persisted document,
write it atomically and commit and push it to the shared remote.

Modes:
  full        git, assistant_activity, infrastructure and app
  restricted  everything except assistant_activity (for CI runners)

Sections that are not requested, or whose data source is unavailable,
keep their previously published values.

Exit codes:
  0 - Success, including runs with nothing new to publish
  1 - Other fatal error
  2 - Repository could not be located
  3 - Merged document failed validation
  4 - Push was rejected again after the retry`,
	Args: cobra.NoArgs,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().String("mode", string(types.ModeFull), "Section preset: full or restricted")
	collectCmd.Flags().String("sections", "", "Comma-separated sections to collect (overrides --mode)")
	collectCmd.Flags().String("repo", "", "Path to the target repository")
	collectCmd.Flags().String("since", "", "Period start, YYYY-MM-DD (default: period.start from config)")
	collectCmd.Flags().String("until", "", "Period end, YYYY-MM-DD (default: today)")
	collectCmd.Flags().Bool("dry-run", false, "Print the merged document instead of writing it")
	collectCmd.Flags().Bool("no-publish", false, "Write the document but do not commit or push")
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := cmd.Flags()
	mode, _ := flags.GetString("mode")
	sectionList, _ := flags.GetString("sections")
	repoFlag, _ := flags.GetString("repo")
	since, _ := flags.GetString("since")
	until, _ := flags.GetString("until")
	dryRun, _ := flags.GetBool("dry-run")
	noPublish, _ := flags.GetBool("no-publish")

	sections, err := selectSections(mode, sectionList)
	if err != nil {
		return err
	}
	period, err := collectionPeriod(cfg.StartDate(), since, until, time.Now())
	if err != nil {
		return err
	}

	g, err := git.NewGit(ctx)
	if err != nil {
		return err
	}

	registry, err := probe.NewStandardRegistry(probe.StandardOptions{
		Git:         g,
		SessionRoot: storage.ExpandHome(cfg.Assistant.SessionDir),
		ConfigDir:   cfg.Infrastructure.Dir,
		AppRoots:    cfg.App.Roots,
		AppExclude:  cfg.App.Exclude,
	})
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Builder: &collector.Builder{
			Probes:    registry,
			PRSource:  newPRSource(cfg, g),
			Logger:    logger,
			Strict:    cfg.Strict,
			PRTimeout: cfg.PR.Timeout,
		},
		Publisher: &publish.Coordinator{
			Git:    g,
			Remote: cfg.Publish.Remote,
			Branch: cfg.Publish.Branch,
			Logger: logger,
		},
		Logger: logger,
		Stdout: cmd.OutOrStdout(),
	}

	report, err := p.Run(ctx, pipeline.Options{
		Resolve: storage.ResolveOptions{
			Explicit:     repoFlag,
			Conventional: cfg.Repo.Path,
			SiblingName:  cfg.Repo.Name,
		},
		DocumentPath: cfg.DocumentPath,
		Sections:     sections,
		Period:       period,
		Publish:      cfg.Publish.Enabled && !noPublish,
		DryRun:       dryRun,
	})
	if err != nil {
		return err
	}

	if !dryRun {
		printSummary(cmd.OutOrStdout(), report)
	}
	return nil
}

// selectSections resolves --sections, falling back to --mode.
func selectSections(mode, list string) (types.SectionSet, error) {
	if strings.TrimSpace(list) != "" {
		return types.ParseSectionList(list)
	}
	m := types.Mode(mode)
	if !m.IsValid() {
		return nil, fmt.Errorf("invalid mode %q (valid: %s, %s)", mode, types.ModeFull, types.ModeRestricted)
	}
	return m.Sections(), nil
}

// collectionPeriod builds the reporting window from the flags. The end
// defaults to today in UTC.
func collectionPeriod(start time.Time, since, until string, now time.Time) (types.Period, error) {
	period := types.Period{Start: start}
	if since != "" {
		t, err := time.Parse(types.DateLayout, since)
		if err != nil {
			return period, fmt.Errorf("invalid --since %q: expected YYYY-MM-DD", since)
		}
		period.Start = t
	}
	if until != "" {
		t, err := time.Parse(types.DateLayout, until)
		if err != nil {
			return period, fmt.Errorf("invalid --until %q: expected YYYY-MM-DD", until)
		}
		period.End = t
	} else {
		y, m, d := now.UTC().Date()
		period.End = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	if err := period.Validate(); err != nil {
		return period, err
	}
	return period, nil
}

// newPRSource builds the configured pull-request source. A source that
// cannot be set up degrades to Disabled, which the merge treats like any
// other lookup failure.
func newPRSource(c config.Config, g *git.Git) prsource.Source {
	switch c.PR.Source {
	case "gh":
		source, err := prsource.NewGHSource(c.PR.Limit)
		if err != nil {
			logger.Warnw("pull request source unavailable", "source", "gh", "error", err)
			return prsource.Disabled{}
		}
		return source
	case "api":
		remote := c.Publish.Remote
		source, err := prsource.NewRESTSource(prsource.RESTConfig{
			BaseURL: c.PR.APIURL,
			Repo:    c.PR.Repo,
			RemoteURL: func(ctx context.Context, repoPath string) (string, error) {
				return g.RemoteURL(ctx, repoPath, remote)
			},
			Token:             os.Getenv("GITHUB_TOKEN"),
			Limit:             c.PR.Limit,
			RequestsPerSecond: c.PR.RequestsPerSecond,
			Timeout:           c.PR.Timeout,
		})
		if err != nil {
			logger.Warnw("pull request source unavailable", "source", "api", "error", err)
			return prsource.Disabled{}
		}
		return source
	default:
		return prsource.Disabled{}
	}
}

func printSummary(w io.Writer, report *pipeline.Report) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s Collected %s %s\n", green("✓"), report.Produced.String(), gray("(run "+report.RunID+")"))
	fmt.Fprintf(w, "  Document: %s\n", report.DocumentPath)
	if len(report.Kept) > 0 {
		kept := make([]string, len(report.Kept))
		for i, name := range report.Kept {
			kept[i] = string(name)
		}
		fmt.Fprintf(w, "  %s Kept previous values: %s\n", yellow("⚠"), strings.Join(kept, ", "))
	}
	if report.Produced.Has(types.SectionGit) && !report.PRSourceOK {
		fmt.Fprintf(w, "  %s Pull request data unavailable this run\n", yellow("⚠"))
	}

	doc := report.Document
	if activity := doc.Section(types.SectionGit); activity != nil {
		fmt.Fprintf(w, "  %s %s commits, +%s/-%s lines, %s merged PRs\n", cyan("git:"),
			humanize.Comma(activity.Int("commits")),
			humanize.Comma(activity.Int("lines_added")),
			humanize.Comma(activity.Int("lines_removed")),
			humanize.Comma(activity.Int(types.FieldPRMergedCount)))
	}
	if assistant := doc.Section(types.SectionAssistantActivity); assistant != nil {
		fmt.Fprintf(w, "  %s %s sessions, %s tool calls\n", cyan("assistant:"),
			humanize.Comma(assistant.Int("sessions")),
			humanize.Comma(assistant.Int("tool_calls")))
	}
	if infra := doc.Section(types.SectionInfrastructure); infra != nil {
		fmt.Fprintf(w, "  %s %d agents, %d commands, %d skills, %d hooks\n", cyan("infrastructure:"),
			infra.Int("agents"), infra.Int("commands"), infra.Int("skills"), infra.Int("hooks"))
	}
	if app := doc.Section(types.SectionApp); app != nil {
		fmt.Fprintf(w, "  %s %s lines of code, %s tests\n", cyan("app:"),
			humanize.Comma(app.Int("total_loc")),
			humanize.Comma(app.Int("test_count")))
	}

	switch report.Outcome {
	case publish.OutcomePublished:
		fmt.Fprintf(w, "%s Published\n", green("✓"))
	case publish.OutcomeNoChange:
		fmt.Fprintf(w, "%s No changes to publish\n", green("✓"))
	default:
		fmt.Fprintf(w, "%s Not published\n", gray("○"))
	}
}
