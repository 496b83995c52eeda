package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sawane/loom/pkg/agent"
	"github.com/sawane/loom/pkg/convstore"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, convstore.ErrNotFound) {
		status = http.StatusNotFound
	}
	s.writeJSON(w, status, ErrorResponse{Kind: "error", Error: err.Error()})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.store.ListConversations(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": conversations,
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	messages, err := s.store.ListMessages(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": conv,
		"messages":     messages,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := s.store.GetConversation(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.DeleteConversation(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	s.broadcaster.Broadcast("conversation.deleted", map[string]interface{}{
		"conversation_id": id,
	})
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

func (s *Server) agentFor(req ChatRequest) (*agent.Agent, error) {
	return s.agents.Get(agent.Options{
		Provider: req.Provider,
		Model:    req.Model,
	})
}

// handleChat runs a blocking turn. A request_id makes retries idempotent.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Kind: "error", Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Kind: "error", Error: "input cannot be empty"})
		return
	}

	ag, err := s.agentFor(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	turn, err := ag.Chat(r.Context(), agent.Params{
		Input:          req.Input,
		ConversationID: req.ConversationID,
		FocusMessageID: req.FocusMessageID,
		RequestID:      req.RequestID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": turn.Conversation,
		"user":         turn.UserMessage,
		"assistant":    turn.AssistantMessage,
	})
}

// handleChatSocket streams one turn over a websocket: the client sends a
// single ChatRequest frame and receives the turn's event sequence as JSON
// frames. The connection closes after the final event, or after an error
// frame when the turn fails.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	var req ChatRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(ErrorResponse{Kind: "error", Error: "invalid request frame"})
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		_ = conn.WriteJSON(ErrorResponse{Kind: "error", Error: "input cannot be empty"})
		return
	}

	ag, err := s.agentFor(req)
	if err != nil {
		_ = conn.WriteJSON(ErrorResponse{Kind: "error", Error: err.Error()})
		return
	}

	events, err := ag.ChatStream(r.Context(), agent.Params{
		Input:          req.Input,
		ConversationID: req.ConversationID,
		FocusMessageID: req.FocusMessageID,
	})
	if err != nil {
		_ = conn.WriteJSON(ErrorResponse{Kind: "error", Error: err.Error()})
		return
	}

	finalized := false
	for ev := range events {
		for _, out := range regranularize(ev, req.StreamGranularity) {
			if err := conn.WriteJSON(out); err != nil {
				s.logger.Debug().Err(err).Msg("Stream client went away")
				return
			}
		}
		if ev.Kind == agent.EventFinal {
			finalized = true
		}
	}

	if !finalized {
		_ = conn.WriteJSON(ErrorResponse{Kind: "error", Error: "turn did not complete"})
	}
}

// regranularize optionally re-splits a delta event into per-rune deltas.
func regranularize(ev agent.Event, granularity string) []agent.Event {
	if granularity != "char" || ev.Kind != agent.EventDelta {
		return []agent.Event{ev}
	}

	runes := []rune(ev.Delta)
	out := make([]agent.Event, 0, len(runes))
	for _, r := range runes {
		char := ev
		char.Delta = string(r)
		out = append(out, char)
	}
	return out
}

// handleEventsSocket subscribes a client to broadcast notifications until
// it disconnects.
func (s *Server) handleEventsSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	s.broadcaster.Add(conn)
	defer s.broadcaster.Remove(conn)
	defer conn.Close()

	// Drain the connection; broadcasts are write-only.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
