package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/craftsman/pkg/loader"
)

func newLoadCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load documents into the vector collection",
	}
	cmd.AddCommand(newLoadCraftsmenCmd(a), newLoadURLCmd(a))
	return cmd
}

func newLoadCraftsmenCmd(a *app) *cobra.Command {
	var (
		reset  bool
		crafts []string
	)

	cmd := &cobra.Command{
		Use:   "craftsmen",
		Short: "Load craftsman records from the craftsmen API",
		Long: `Fetch every page of craftsmen for each configured craft, embed each
record and insert it. Records that fail are logged and skipped.

Examples:
  craftsman load craftsmen
  craftsman load craftsmen --reset
  craftsman load craftsmen --craft نجار --craft سباك`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireConfig("embedding", "store", "craftsmen"); err != nil {
				return err
			}
			ctx := cmd.Context()

			embedder, err := a.newEmbedder(ctx)
			if err != nil {
				return err
			}
			vs, err := a.newStore(ctx)
			if err != nil {
				return err
			}
			defer vs.Close()

			bar := getProgressBar(-1, " Loading craftsmen")
			ld, err := a.newLoader(embedder, vs, func(e loader.Event) {
				switch e.Stage {
				case "page":
					bar.Describe(color.BlueString(" Loading %s, page %d", e.Craft, e.Page))
				case "record":
					bar.Add(1)
				}
			})
			if err != nil {
				return err
			}

			if err := ld.CheckAPI(ctx); err != nil {
				return err
			}
			color.Green("✓ Craftsmen API reachable")

			if reset {
				if err := ld.Reset(ctx); err != nil {
					return err
				}
				color.Green("✓ Collection reset")
			}

			stats, err := ld.LoadCraftsmen(ctx, crafts...)
			bar.Finish()
			if err != nil {
				return err
			}

			color.Green("\n✓ Inserted %d craftsmen from %d pages across %d crafts", stats.Inserted, stats.Pages, stats.Crafts)
			if stats.Failed > 0 {
				color.Yellow("  %d records failed", stats.Failed)
			}
			return printInspection(cmd, ld)
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Drop and recreate the collection first")
	cmd.Flags().StringSliceVar(&crafts, "craft", nil, "Craft to load (repeatable); defaults to the configured list")
	return cmd
}

func newLoadURLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "url <url>",
		Short: "Scrape a website and index its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireConfig("embedding", "store", "scraper", "processor"); err != nil {
				return err
			}
			ctx := cmd.Context()

			embedder, err := a.newEmbedder(ctx)
			if err != nil {
				return err
			}
			vs, err := a.newStore(ctx)
			if err != nil {
				return err
			}
			defer vs.Close()

			ld, err := a.newLoader(embedder, vs, nil)
			if err != nil {
				return err
			}

			color.Blue("Starting pipeline for %s", args[0])
			indexURL(cmd, ld, args[0])
			return printInspection(cmd, ld)
		},
	}
}
