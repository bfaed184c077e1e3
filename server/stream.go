package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/xhad/craftsman/pkg/llm"
)

// dataStream writes the line protocol understood by the AI SDK chat hooks:
// each line is "<code>:<json>".
type dataStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	err     error
}

type finishPart struct {
	FinishReason string `json:"finishReason"`
	Usage        struct {
		PromptTokens     int `json:"promptTokens"`
		CompletionTokens int `json:"completionTokens"`
	} `json:"usage"`
	IsContinued *bool `json:"isContinued,omitempty"`
}

func newDataStream(w http.ResponseWriter) *dataStream {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Vercel-AI-Data-Stream", "v1")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	return &dataStream{w: w, flusher: flusher}
}

func (d *dataStream) part(code string, v any) {
	if d.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		d.err = err
		return
	}
	if _, err := fmt.Fprintf(d.w, "%s:%s\n", code, data); err != nil {
		d.err = err
		return
	}
	if d.flusher != nil {
		d.flusher.Flush()
	}
}

func (d *dataStream) start() {
	d.part("f", map[string]string{"messageId": "msg-" + uuid.NewString()})
}

func (d *dataStream) text(s string) {
	d.part("0", s)
}

func (d *dataStream) fail(msg string) {
	d.part("3", msg)
}

func (d *dataStream) finish(reason string) {
	continued := false
	step := finishPart{FinishReason: reason, IsContinued: &continued}
	d.part("e", step)
	d.part("d", finishPart{FinishReason: reason})
}

// pipe streams generator output to the client. An error before any text is
// produced becomes a 500 JSON response; later errors are sent in-band.
func (s *Server) pipe(w http.ResponseWriter, stream <-chan llm.StreamChunk) {
	first, ok := <-stream
	if ok && first.Err != nil {
		s.log.Error("generation failed", "error", first.Err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Internal server error",
			"details": first.Err.Error(),
		})
		return
	}

	ds := newDataStream(w)
	ds.start()
	if !ok {
		ds.finish("stop")
		return
	}
	ds.text(first.Text)

	reason := "stop"
	for chunk := range stream {
		if chunk.Err != nil {
			s.log.Error("stream interrupted", "error", chunk.Err)
			ds.fail(chunk.Err.Error())
			reason = "error"
			continue
		}
		ds.text(chunk.Text)
	}
	ds.finish(reason)

	if ds.err != nil {
		s.log.Warn("client went away during stream", "error", ds.err)
	}
}
