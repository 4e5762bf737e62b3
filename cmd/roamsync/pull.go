package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roamtools/roamsync/internal/cache"
	"github.com/roamtools/roamsync/internal/format"
)

var (
	pullLevel   int
	pullFlat    bool
	pullNoCache bool
)

var pullCmd = &cobra.Command{
	Use:   "pull <page>",
	Short: "Fetch a page and render it as text",
	Long: `Pull fetches a page subtree from the graph and renders it.

The --level flag bounds reference expansion: 0 leaves ((uid)) and
[[Page]] markers verbatim, 1 resolves targets already loaded, higher
levels also fetch referenced blocks from the graph. Fetched blocks go
through the local cache.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := args[0]
		cfg := loadConfig()
		client := backendClient(cfg)

		if !cmd.Flags().Changed("level") {
			pullLevel = cfg.ResolveLevel
		}

		var fetcher format.Fetcher = client
		if !pullNoCache {
			store, err := cache.Open(cfg.CachePath)
			if err != nil {
				return err
			}
			defer store.Close()
			fetcher = cache.NewFetcher(store, client, cfg.CacheTTL, nil)
		}

		page, err := fetcher.FetchPage(cmd.Context(), title)
		if err != nil {
			return fmt.Errorf("failed to fetch page %q: %w", title, err)
		}

		mode := format.Hierarchical
		if pullFlat {
			mode = format.Flat
		}
		resolver := format.NewResolver(fetcher, page)
		formatter := format.NewFormatter(resolver, format.Options{
			Level:                pullLevel,
			Mode:                 mode,
			TopLevelAsParagraphs: true,
		})

		fmt.Println(formatter.Format(cmd.Context(), page))
		return nil
	},
}

func init() {
	pullCmd.Flags().IntVar(&pullLevel, "level", 1, "reference resolution depth (0 = verbatim markers)")
	pullCmd.Flags().BoolVar(&pullFlat, "flat", false, "render a flat bullet list instead of nested output")
	pullCmd.Flags().BoolVar(&pullNoCache, "no-cache", false, "bypass the local block cache")
	rootCmd.AddCommand(pullCmd)
}
