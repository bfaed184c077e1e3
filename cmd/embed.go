package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newEmbedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "embed [text]",
		Short: "Print the embedding for a piece of text",
		Long: `Embed text with the configured embedding provider and print the
result as JSON. Text is read from stdin when no argument is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireConfig("embedding"); err != nil {
				return err
			}

			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(data)
			}
			text = strings.TrimSpace(text)
			if text == "" {
				return errors.New("text must not be empty")
			}

			embedder, err := a.newEmbedder(cmd.Context())
			if err != nil {
				return err
			}
			vector, err := embedder.EmbedQuery(cmd.Context(), text)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"text":       text,
				"embedding":  vector,
				"dimensions": len(vector),
				"model":      embedder.Config.Model,
			})
		},
	}
}
