package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/craftsman/pkg/loader"
)

func newDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect or drop the vector collection",
	}
	cmd.AddCommand(newDBStatusCmd(a), newDBDropCmd(a))
	return cmd
}

func newDBStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show collections, document count and a sample document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireConfig("store"); err != nil {
				return err
			}
			ctx := cmd.Context()

			vs, err := a.newStore(ctx)
			if err != nil {
				return err
			}
			defer vs.Close()

			names, err := vs.ListCollections(ctx)
			if err != nil {
				return fmt.Errorf("failed to list collections: %w", err)
			}
			color.Cyan("Backend: %s", a.cfg.Store.Backend)
			color.Cyan("Collections: %s", strings.Join(names, ", "))

			ld, err := a.newLoader(nil, vs, nil)
			if err != nil {
				return err
			}
			return printInspection(cmd, ld)
		},
	}
}

func newDBDropCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop the collection and recreate it empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireConfig("store"); err != nil {
				return err
			}

			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Drop collection %q? [y/N] ", a.cfg.Store.Collection)
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if reply := strings.ToLower(strings.TrimSpace(answer)); reply != "y" && reply != "yes" {
					color.Yellow("Aborted")
					return nil
				}
			}

			ctx := cmd.Context()
			vs, err := a.newStore(ctx)
			if err != nil {
				return err
			}
			defer vs.Close()

			ld, err := a.newLoader(nil, vs, nil)
			if err != nil {
				return err
			}
			if err := ld.Reset(ctx); err != nil {
				return err
			}
			color.Green("✓ Collection %s dropped and recreated", a.cfg.Store.Collection)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func printInspection(cmd *cobra.Command, ld *loader.Loader) error {
	info, err := ld.Inspect(cmd.Context())
	if err != nil {
		return err
	}

	count := fmt.Sprint(info.Count)
	if info.Count >= loader.InspectLimit {
		count += "+"
	}
	color.Cyan("Documents: %s", count)

	if info.Sample != nil {
		text := []rune(info.Sample.Text)
		if len(text) > 200 {
			text = append(text[:200], []rune("...")...)
		}
		color.Cyan("Sample: %s", info.Sample.Title)
		fmt.Fprintln(cmd.OutOrStdout(), string(text))
	}
	return nil
}
