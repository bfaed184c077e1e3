package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/pkg/extract"
	"github.com/xhad/craftsman/web"
)

var (
	errInvalidMessages = errors.New("Invalid message format")
	errNotArray        = errors.New("Messages must be an array")
)

type incomingMessage struct {
	ID      string          `json:"id,omitempty"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type chatRequest struct {
	Messages json.RawMessage `json:"messages"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func contentString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func parseRole(role string) (models.Role, bool) {
	switch models.Role(strings.ToLower(role)) {
	case "", models.RoleUser:
		return models.RoleUser, true
	case models.RoleAssistant:
		return models.RoleAssistant, true
	case models.RoleSystem:
		return models.RoleSystem, true
	}
	return "", false
}

// decodeMessages validates a chat body. The final message must be a user
// message with non-empty string content; earlier messages that are not
// well formed are dropped.
func (s *Server) decodeMessages(body io.Reader) ([]models.ChatMessage, error) {
	var req chatRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, errInvalidMessages
	}

	var incoming []incomingMessage
	if err := json.Unmarshal(req.Messages, &incoming); err != nil {
		return nil, errNotArray
	}
	if len(incoming) == 0 {
		return nil, errInvalidMessages
	}

	last := incoming[len(incoming)-1]
	content, ok := contentString(last.Content)
	if !ok || strings.TrimSpace(content) == "" {
		return nil, errInvalidMessages
	}
	if role, ok := parseRole(last.Role); !ok || role != models.RoleUser {
		return nil, errInvalidMessages
	}

	messages := make([]models.ChatMessage, 0, len(incoming))
	for i, m := range incoming {
		text, ok := contentString(m.Content)
		role, roleOK := parseRole(m.Role)
		if !ok || !roleOK {
			s.log.Warn("dropping malformed message", "index", i, "role", m.Role)
			continue
		}
		messages = append(messages, models.ChatMessage{ID: m.ID, Role: role, Content: text})
	}
	return messages, nil
}

func (s *Server) readMessages(w http.ResponseWriter, r *http.Request) ([]models.ChatMessage, bool) {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	messages, err := s.decodeMessages(body)
	if err != nil {
		if errors.Is(err, errNotArray) && r.URL.Path == "/api/chat" {
			err = errInvalidMessages
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return messages, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	messages, ok := s.readMessages(w, r)
	if !ok {
		return
	}

	stream, retrieval, err := s.rag.Answer(r.Context(), messages)
	if err != nil {
		s.log.Error("chat failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Internal server error",
			"details": err.Error(),
		})
		return
	}
	s.log.Info("answering", "documents", len(retrieval.Documents), "retrieval_error", retrieval.Err)

	s.pipe(w, stream)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	messages, ok := s.readMessages(w, r)
	if !ok {
		return
	}

	stream, err := s.rag.Sample(r.Context(), messages)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Internal server error",
			"details": err.Error(),
		})
		return
	}
	s.pipe(w, stream)
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) readText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req textRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text must be a non-empty string")
		return "", false
	}
	return req.Text, true
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	text, ok := s.readText(w, r)
	if !ok {
		return
	}

	vector, err := s.embedder.EmbedQuery(r.Context(), text)
	if err != nil {
		s.log.Error("error generating embedding", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"text":       text,
		"embedding":  vector,
		"dimensions": len(vector),
		"model":      s.config.EmbeddingModel,
	})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	text, ok := s.readText(w, r)
	if !ok {
		return
	}

	res, _ := extract.Parse(text)
	if res.Craftsmen == nil {
		res.Craftsmen = []extract.Craftsman{}
	}
	writeJSON(w, http.StatusOK, res)
}

type loadRequest struct {
	Crafts []string `json:"crafts"`
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if s.loader == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "loader is not configured"})
		return
	}

	var req loadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	stats, err := s.loader.LoadCraftsmen(r.Context(), req.Crafts...)
	if err != nil {
		s.log.Error("error loading craftsmen data", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"inserted": stats.Inserted,
		"failed":   stats.Failed,
		"pages":    stats.Pages,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(web.Index)
}
