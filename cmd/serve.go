package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xhad/craftsman/pkg/loader"
	"github.com/xhad/craftsman/server"
)

func newServeCmd(a *app) *cobra.Command {
	var noLoader bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat server",
		Long: `Run the chat API and web page.

Routes:
  POST /api/chat     retrieval-augmented chat (AI data stream)
  POST /api/sample   plain chat without retrieval
  POST /api/embed    embed a piece of text
  POST /api/extract  pull craftsman cards from an answer
  POST /api/load     reload the collection from the craftsmen API
  GET  /ws           websocket chat with URL indexing
  GET  /health`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireConfig("llm", "embedding", "store", "retrieval"); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

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

			var ld *loader.Loader
			if !noLoader {
				if ld, err = a.newLoader(embedder, vs, nil); err != nil {
					return err
				}
			}

			srv := server.New(server.Config{
				Addr:           a.cfg.Addr(),
				AllowedOrigins: a.cfg.Server.AllowedOrigins,
				Streaming:      a.cfg.UI.Streaming,
				EmbeddingModel: embedder.Config.Model,
				Logger:         a.log,
			}, a.newRAG(embedder, vs, engine), embedder, ld)

			a.log.Info("components ready",
				"addr", a.cfg.Addr(),
				"llm", a.cfg.LLM.Provider+"/"+engine.Config().Model,
				"embedding", embedder.Config.Provider+"/"+embedder.Config.Model,
				"store", a.cfg.Store.Backend,
			)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&noLoader, "no-loader", false, "Disable /api/load and websocket URL indexing")
	return cmd
}
