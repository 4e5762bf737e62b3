package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roamtools/roamsync/internal/sync"
)

var (
	pushPage   string
	pushDryRun bool
)

var pushCmd = &cobra.Command{
	Use:   "push <file>",
	Short: "Push a local page file to the graph",
	Long: `Push parses a local markup file, diffs it against the page's current
state in the graph, and applies the resulting plan as one batch write.

Blocks that survive the diff keep their UIDs, so references to them from
elsewhere in the graph stay intact. Use --dry-run to see the plan and a
unified diff without writing anything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		cfg := loadConfig()
		client := backendClient(cfg)
		syncer := sync.New(client, nil)

		title := pushPage
		if title == "" {
			title = sync.TitleFromPath(path)
		}

		if pushDryRun {
			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read page file: %w", err)
			}
			preview, err := syncer.Preview(cmd.Context(), title, string(src))
			if err != nil {
				return err
			}
			if !preview.Changed() {
				fmt.Printf("Page %q is up to date\n", title)
				return nil
			}
			fmt.Printf("Plan for %q (%d actions):\n", title, len(preview.Actions))
			for _, a := range preview.Actions {
				fmt.Printf("  %s\n", a)
			}
			fmt.Println()
			fmt.Print(preview.Diff)
			return nil
		}

		result, err := syncer.SyncFile(cmd.Context(), path, title)
		if err != nil {
			return err
		}
		if !result.Changed() {
			fmt.Printf("Page %q is up to date\n", title)
			return nil
		}
		if result.PageCreated {
			fmt.Printf("Created page %q\n", title)
		}
		fmt.Printf("Synced %q: %d created, %d updated, %d moved, %d deleted\n",
			title, result.Created, result.Updated, result.Moved, result.Deleted)
		return nil
	},
}

func init() {
	pushCmd.Flags().StringVar(&pushPage, "page", "", "page title (default: file name without extension)")
	pushCmd.Flags().BoolVar(&pushDryRun, "dry-run", false, "print the plan and diff without applying")
	rootCmd.AddCommand(pushCmd)
}
