package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/pulse/internal/git"
	"github.com/steveyegge/pulse/internal/probe"
	"github.com/steveyegge/pulse/internal/prsource"
	"github.com/steveyegge/pulse/internal/storage"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the pulse environment",
	Long: `Run checks to diagnose common pulse configuration and environment issues.

This command checks for:
- Repository resolution
- Git availability, branch and remote
- Pull request source availability
- Assistant session logs for this repository
- Assistant configuration directory
- Persisted document parseability

Exit codes:
  0 - All checks passed (possibly with warnings)
  1 - One or more checks failed
  2 - Critical failures that prevent collection`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		repoFlag, _ := cmd.Flags().GetString("repo")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("Running pulse health checks...\n\n")

		var failures []string
		var warnings []string
		var criticalFailures []string

		// Check 1: Repository resolution
		fmt.Printf("%s Repository\n", cyan("→"))
		repo, err := storage.ResolveRepository(storage.ResolveOptions{
			Explicit:     repoFlag,
			Conventional: cfg.Repo.Path,
			SiblingName:  cfg.Repo.Name,
		})
		if err != nil {
			criticalFailures = append(criticalFailures, "No target repository found")
			fmt.Printf("  %s No repository found\n", red("✗"))
			if verbose {
				fmt.Printf("    %v\n", strings.ReplaceAll(err.Error(), "\n", "\n    "))
			}
			fmt.Printf("\n%s Critical failures prevent pulse from running\n", red("✗"))
			os.Exit(exitResolution)
		}
		fmt.Printf("  %s Found repository: %s\n", green("✓"), repo)

		// Check 2: Git
		fmt.Printf("%s Git\n", cyan("→"))
		g, err := git.NewGit(ctx)
		if err != nil {
			criticalFailures = append(criticalFailures, fmt.Sprintf("git unavailable: %v", err))
			fmt.Printf("  %s git not available\n", red("✗"))
		} else {
			if branch, err := g.CurrentBranch(ctx, repo); err != nil {
				failures = append(failures, "Cannot determine current branch")
				fmt.Printf("  %s Cannot determine current branch\n", red("✗"))
			} else {
				fmt.Printf("  %s On branch %s\n", green("✓"), branch)
			}

			if dirty, err := g.HasUncommittedChanges(ctx, repo); err == nil && dirty {
				warnings = append(warnings, "Working tree has uncommitted changes")
				fmt.Printf("  %s Uncommitted changes (autostashed during sync)\n", yellow("⚠"))
			}

			if cfg.Publish.Enabled {
				if url, err := g.RemoteURL(ctx, repo, cfg.Publish.Remote); err != nil {
					failures = append(failures, fmt.Sprintf("Remote %q is not configured", cfg.Publish.Remote))
					fmt.Printf("  %s Remote %s missing\n", red("✗"), cfg.Publish.Remote)
				} else {
					fmt.Printf("  %s Publishing to %s (%s)\n", green("✓"), cfg.Publish.Remote, url)
				}
			} else {
				fmt.Printf("  %s Publishing disabled\n", gray("○"))
			}
		}

		// Check 3: Pull request source
		fmt.Printf("%s Pull request source (%s)\n", cyan("→"), cfg.PR.Source)
		switch cfg.PR.Source {
		case "gh":
			if _, err := exec.LookPath("gh"); err != nil {
				warnings = append(warnings, "gh CLI not found; merged pull request counts will be preserved from the previous document")
				fmt.Printf("  %s gh not found in PATH\n", yellow("⚠"))
			} else if out, err := exec.CommandContext(ctx, "gh", "auth", "status").CombinedOutput(); err != nil {
				warnings = append(warnings, "gh is not authenticated")
				fmt.Printf("  %s gh is not authenticated\n", yellow("⚠"))
				if verbose {
					fmt.Printf("    %s\n", strings.TrimSpace(string(out)))
				}
			} else {
				fmt.Printf("  %s gh is installed and authenticated\n", green("✓"))
			}
		case "api":
			slug := cfg.PR.Repo
			if slug == "" && g != nil {
				if url, err := g.RemoteURL(ctx, repo, cfg.Publish.Remote); err == nil {
					slug, _ = prsource.ParseRepoSlug(url)
				}
			}
			if slug == "" {
				failures = append(failures, "Cannot determine owner/name for the REST source (set pr.repo)")
				fmt.Printf("  %s No repository slug\n", red("✗"))
			} else {
				fmt.Printf("  %s Repository %s\n", green("✓"), slug)
			}
			if os.Getenv("GITHUB_TOKEN") == "" {
				warnings = append(warnings, "GITHUB_TOKEN is not set; requests are unauthenticated and heavily rate limited")
				fmt.Printf("  %s GITHUB_TOKEN not set\n", yellow("⚠"))
			}
		default:
			fmt.Printf("  %s Disabled\n", gray("○"))
		}

		// Check 4: Assistant session logs
		fmt.Printf("%s Assistant session logs\n", cyan("→"))
		sessions := probe.NewAssistantProbe(storage.ExpandHome(cfg.Assistant.SessionDir)).ProjectDir(repo)
		if matches, err := filepath.Glob(filepath.Join(sessions, "*.jsonl")); err != nil || len(matches) == 0 {
			warnings = append(warnings, "No assistant sessions for this repository; use --mode restricted on this machine")
			fmt.Printf("  %s No sessions in %s\n", yellow("⚠"), sessions)
		} else {
			fmt.Printf("  %s %d session file(s) in %s\n", green("✓"), len(matches), sessions)
		}

		// Check 5: Assistant configuration directory
		fmt.Printf("%s Assistant configuration\n", cyan("→"))
		if info, err := os.Stat(filepath.Join(repo, cfg.Infrastructure.Dir)); err != nil || !info.IsDir() {
			fmt.Printf("  %s No %s directory (infrastructure counts will be zero)\n", gray("○"), cfg.Infrastructure.Dir)
		} else {
			fmt.Printf("  %s Found %s\n", green("✓"), cfg.Infrastructure.Dir)
		}

		// Check 6: Persisted document
		fmt.Printf("%s Document\n", cyan("→"))
		docPath := storage.DocumentPath(repo, cfg.DocumentPath)
		doc, err := storage.NewStore(&storage.Config{Path: docPath}).Load()
		switch {
		case err != nil:
			failures = append(failures, fmt.Sprintf("Document is unreadable: %v", err))
			fmt.Printf("  %s Cannot parse %s (the next collect replaces it)\n", red("✗"), docPath)
		case doc == nil:
			warnings = append(warnings, "No document yet; run 'pulse collect'")
			fmt.Printf("  %s No document at %s\n", yellow("⚠"), docPath)
		default:
			fmt.Printf("  %s %s, collected %s\n", green("✓"), docPath, humanize.Time(doc.CollectedAt))
			if verbose {
				for name := range doc.Sections {
					fmt.Printf("    section: %s\n", name)
				}
			}
		}

		// Summary
		fmt.Printf("\n%s\n", strings.Repeat("─", 60))

		if len(criticalFailures)+len(failures)+len(warnings) == 0 {
			fmt.Printf("%s All checks passed! pulse is ready to run.\n", green("✓"))
			os.Exit(0)
		}
		printFindings(red("✗")+" Critical failures", criticalFailures)
		printFindings(red("✗")+" Failures", failures)
		printFindings(yellow("⚠")+" Warnings", warnings)

		if len(criticalFailures) > 0 {
			fmt.Printf("\n%s pulse cannot run until critical issues are resolved.\n", red("✗"))
			os.Exit(2)
		}
		if len(failures) > 0 {
			fmt.Printf("\n%s pulse may not work correctly. Please address the failures above.\n", yellow("⚠"))
			os.Exit(1)
		}
		fmt.Printf("\n%s pulse should work, but some warnings were detected.\n", green("✓"))
		os.Exit(0)
	},
}

func init() {
	doctorCmd.Flags().String("repo", "", "Path to the target repository")
	rootCmd.AddCommand(doctorCmd)
}

func printFindings(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s (%d):\n", title, len(items))
	for _, item := range items {
		fmt.Printf("  • %s\n", item)
	}
}
