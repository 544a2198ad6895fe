package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pulse/internal/storage"
	"github.com/steveyegge/pulse/internal/types"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted metrics document",
	Long:  `Print the current persisted document, or a single section of it with --section.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoFlag, _ := cmd.Flags().GetString("repo")
		sectionFlag, _ := cmd.Flags().GetString("section")

		repo, err := storage.ResolveRepository(storage.ResolveOptions{
			Explicit:     repoFlag,
			Conventional: cfg.Repo.Path,
			SiblingName:  cfg.Repo.Name,
		})
		if err != nil {
			return err
		}

		path := storage.DocumentPath(repo, cfg.DocumentPath)
		doc, err := storage.NewStore(&storage.Config{Path: path}).Load()
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("no document at %s (run 'pulse collect' first)", path)
		}

		out := cmd.OutOrStdout()
		if sectionFlag == "" {
			data, err := types.EncodeDocument(doc)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		}

		name, err := types.ParseSectionName(sectionFlag)
		if err != nil {
			return err
		}
		section := doc.Section(name)
		if section == nil {
			return fmt.Errorf("document has no %s section", name)
		}
		data, err := json.MarshalIndent(map[string]any(section), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding section: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	},
}

func init() {
	showCmd.Flags().String("repo", "", "Path to the target repository")
	showCmd.Flags().String("section", "", "Print only this section")
	rootCmd.AddCommand(showCmd)
}
