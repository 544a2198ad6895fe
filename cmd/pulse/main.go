package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/steveyegge/pulse/internal/config"
	"github.com/steveyegge/pulse/internal/logging"
	"github.com/steveyegge/pulse/internal/publish"
	"github.com/steveyegge/pulse/internal/storage"
)

// Exit codes
const (
	exitFailure    = 1
	exitResolution = 2
	exitValidation = 3
	exitConflict   = 4
)

var (
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Collect project health metrics into a shared document",
	Long: `pulse gathers project health metrics (git activity, assistant usage,
assistant configuration and source size) and merges them into a single
JSON document that is committed and pushed for a static dashboard.

Configuration is read from .pulse.yaml at the root of the target repository
(or --config) and PULSE_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		// Only collect and doctor define --repo
		repoFlag, _ := cmd.Flags().GetString("repo")
		cfg, err = loadConfig(configPath, wd, repoFlag)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Log, verbose)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: "+config.DefaultFileName+" at the repository root)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(exitCode(err))
	}
}

// loadConfig reads the configuration. Without --config, the working
// directory's file seeds repository resolution, and the resolved
// repository's own file wins when it has one.
func loadConfig(explicit, wd, repoFlag string) (config.Config, error) {
	c, err := config.Load(config.FindFile(explicit, wd))
	if err != nil || explicit != "" {
		return c, err
	}

	repo, err := storage.ResolveRepository(storage.ResolveOptions{
		Explicit:     repoFlag,
		Conventional: c.Repo.Path,
		SiblingName:  c.Repo.Name,
		WorkDir:      wd,
	})
	if err != nil || filepath.Clean(repo) == filepath.Clean(wd) {
		// Resolution errors surface from the command itself
		return c, nil
	}
	path := config.FindFile("", repo)
	if _, err := os.Stat(path); err != nil {
		return c, nil
	}
	return config.Load(path)
}

// exitCode maps a fatal error to the process exit status.
func exitCode(err error) int {
	switch {
	case errors.Is(err, storage.ErrResolution):
		return exitResolution
	case errors.Is(err, storage.ErrValidation):
		return exitValidation
	case errors.Is(err, publish.ErrPublishConflict):
		return exitConflict
	default:
		return exitFailure
	}
}
