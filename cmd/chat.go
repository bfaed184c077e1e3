package main

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/pkg/extract"
	"github.com/xhad/craftsman/pkg/loader"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

func newChatCmd(a *app) *cobra.Command {
	var showCards bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the craftsman assistant in the terminal",
		Long: `Start an interactive chat. Type 'exit' to quit.

A message containing a URL indexes that site into the collection
before answering.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireConfig("llm", "embedding", "store", "retrieval"); err != nil {
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

			engine, err := a.newChatEngine(ctx)
			if err != nil {
				return err
			}
			svc := a.newRAG(embedder, vs, engine)

			ld, err := a.newLoader(embedder, vs, nil)
			if err != nil {
				return err
			}

			color.Cyan("\nChat with the craftsman assistant (type 'exit' to quit)")

			scanner := bufio.NewScanner(os.Stdin)
			userPrompt := color.New(color.FgGreen).PrintfFunc()
			assistantPrompt := color.New(color.FgCyan).PrintfFunc()

			var history []models.ChatMessage
			for {
				userPrompt("\nYou: ")
				if !scanner.Scan() {
					break
				}

				query := strings.TrimSpace(scanner.Text())
				if strings.ToLower(query) == "exit" {
					break
				}
				if query == "" {
					continue
				}

				if url := urlRegex.FindString(query); url != "" {
					color.Blue("\nDetected URL: %s", url)
					indexURL(cmd, ld, url)
					if query == url {
						continue
					}
				}

				history = append(history, models.ChatMessage{Role: models.RoleUser, Content: query})

				querySpinner := getSpinner(" Searching craftsmen...")
				stream, retrieval, err := svc.Answer(ctx, history)
				querySpinner.Finish()
				if err != nil {
					color.Red("Error: %v\n", err)
					history = history[:len(history)-1]
					continue
				}
				if retrieval.Err != nil {
					color.Yellow("Retrieval failed, answering without context: %v", retrieval.Err)
				}

				var answer strings.Builder
				fmt.Print("\n")
				assistantPrompt("Assistant: ")

				for chunk := range stream {
					if chunk.Err != nil {
						color.Red("\n%v", chunk.Err)
						break
					}
					answer.WriteString(chunk.Text)
					if a.cfg.UI.Streaming {
						fmt.Print(chunk.Text)
					}
				}
				if !a.cfg.UI.Streaming {
					fmt.Print(answer.String())
				}
				fmt.Print("\n")

				history = append(history, models.ChatMessage{Role: models.RoleAssistant, Content: answer.String()})

				if showCards {
					printCards(answer.String())
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().BoolVar(&showCards, "cards", false, "Print craftsman cards found in each answer")
	return cmd
}

func indexURL(cmd *cobra.Command, ld *loader.Loader, url string) {
	bar := getProgressBar(-1, " Indexing site")
	stats, err := ld.LoadURL(cmd.Context(), url, func(e loader.Event) {
		if e.Stage == "chunk" {
			bar.Add(1)
		}
	})
	bar.Finish()
	if err != nil {
		color.Red("\nFailed to index URL: %v", err)
		return
	}
	color.Green("\n✓ Indexed %d chunks from %d pages (%d failed)", stats.Inserted, stats.Pages, stats.Failed)
}

func printCards(answer string) {
	for _, c := range extract.Craftsmen(answer) {
		line := fmt.Sprintf("  %s (%s)", c.Name, c.Craft)
		if c.Rating != nil {
			line += fmt.Sprintf(" ★ %.1f", *c.Rating)
		}
		if c.Address != "" {
			line += " - " + c.Address
		}
		if c.Status == extract.StatusBusy {
			color.Yellow(line + " [busy]")
		} else {
			color.Green(line)
		}
	}
}
