package server

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/pkg/loader"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// wsConn serialises writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *Server) sendMessage(c *wsConn, msgType string, content string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(Message{Type: msgType, Content: content, Data: data}); err != nil {
		s.log.Debug("error sending message", "error", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &wsConn{conn: conn}
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("error reading message", "error", err)
			}
			return
		}

		switch msg.Type {
		case "chat", "":
			s.handleMessage(r.Context(), c, msg)
		case "ping":
			s.sendMessage(c, "pong", "", nil)
		default:
			s.sendMessage(c, "error", fmt.Sprintf("unknown message type %q", msg.Type), nil)
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, c *wsConn, msg Message) {
	defer s.sendMessage(c, "done", "", nil)

	query := strings.TrimSpace(msg.Content)
	if query == "" {
		s.sendMessage(c, "error", errInvalidMessages.Error(), nil)
		return
	}

	if url := urlRegex.FindString(query); url != "" {
		if !s.indexURL(ctx, c, url) {
			return
		}
		// Only continue with chat if the message is more than the URL
		if query == url {
			return
		}
	}

	stream, retrieval, err := s.rag.Answer(ctx, []models.ChatMessage{{Role: models.RoleUser, Content: query}})
	if err != nil {
		s.sendMessage(c, "error", fmt.Sprintf("Error: %v", err), nil)
		return
	}
	s.sendMessage(c, "status", fmt.Sprintf("Found %d relevant documents", len(retrieval.Documents)), nil)

	var answer strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			s.sendMessage(c, "error", chunk.Err.Error(), nil)
			continue
		}
		if s.config.Streaming {
			s.sendMessage(c, "stream", chunk.Text, nil)
		} else {
			answer.WriteString(chunk.Text)
		}
	}
	if !s.config.Streaming {
		s.sendMessage(c, "response", answer.String(), nil)
	}
}

func (s *Server) indexURL(ctx context.Context, c *wsConn, url string) bool {
	if s.loader == nil {
		s.sendMessage(c, "error", "URL indexing is not configured", nil)
		return false
	}
	s.sendMessage(c, "status", fmt.Sprintf("Processing URL: %s", url), nil)

	scraped := 0
	stats, err := s.loader.LoadURL(ctx, url, func(e loader.Event) {
		if e.Stage == "url" {
			scraped++
			s.sendMessage(c, "progress", fmt.Sprintf("Scraped %d pages", scraped), nil)
		}
	})
	if err != nil {
		s.sendMessage(c, "error", fmt.Sprintf("Failed to scrape URL: %v", err), nil)
		return false
	}

	s.sendMessage(c, "status", fmt.Sprintf("Indexed %d chunks from %d pages", stats.Inserted, stats.Pages), stats)
	return true
}
