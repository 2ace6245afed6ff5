// Package aitest provides a fake OpenAI-compatible HTTP server for tests.
package aitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

// Server answers chat completions with canned replies in order; the last
// reply repeats. Transcription requests return Transcript.
type Server struct {
	URL        string
	Transcript string

	mu       sync.Mutex
	replies  []string
	requests []openai.ChatCompletionRequest
	calls    int
}

// NewServer starts a server closed on test cleanup. Use URL+"/v1" as the
// client base URL.
func NewServer(t testing.TB, replies ...string) *Server {
	t.Helper()
	s := &Server{replies: replies}
	httpServer := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(httpServer.Close)
	s.URL = httpServer.URL
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/chat/completions"):
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		reply := ""
		if len(s.replies) > 0 {
			index := min(s.calls, len(s.replies)-1)
			reply = s.replies[index]
		}
		s.calls++
		s.mu.Unlock()

		writeJSON(w, openai.ChatCompletionResponse{
			ID:     "chatcmpl-test",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []openai.ChatCompletionChoice{{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	case strings.HasSuffix(r.URL.Path, "/audio/transcriptions"):
		_, _ = io.Copy(io.Discard, r.Body)
		s.mu.Lock()
		s.calls++
		transcript := s.Transcript
		s.mu.Unlock()
		writeJSON(w, map[string]string{"text": transcript})
	default:
		http.NotFound(w, r)
	}
}

// Calls returns how many requests were served.
func (s *Server) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastRequest returns the most recent chat completion request.
func (s *Server) LastRequest(t testing.TB) openai.ChatCompletionRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		t.Fatal("no chat completion requests recorded")
	}
	return s.requests[len(s.requests)-1]
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
