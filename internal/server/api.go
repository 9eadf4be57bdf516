// ABOUTME: HTTP handlers for conversation lists, timelines, sends and read receipts
// ABOUTME: Sends honor the Idempotency-Key header so client retries never duplicate

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/2389/coven-inbox/internal/auth"
	"github.com/2389/coven-inbox/internal/chat"
	"github.com/2389/coven-inbox/internal/store"
)

// IdempotencyKeyHeader names the request header carrying a send's key.
const IdempotencyKeyHeader = "Idempotency-Key"

// maxBodyLength caps a message body in bytes.
const maxBodyLength = 16 * 1024

// ConversationsResponse is the JSON response for GET /api/viewers/{viewer}/conversations.
type ConversationsResponse struct {
	Conversations []chat.Conversation `json:"conversations"`
}

// MessagesResponse is the JSON response for GET /api/conversations/{id}/messages.
type MessagesResponse struct {
	Messages []chat.Message `json:"messages"`
}

// SendMessageRequest is the JSON body for POST /api/conversations/{id}/messages.
type SendMessageRequest struct {
	Body string `json:"body"`
}

// MarkReadRequest is the JSON body for POST /api/conversations/{id}/read.
type MarkReadRequest struct {
	Through string `json:"through"`
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleListConversations handles GET /api/viewers/{viewer}/conversations.
// A viewer may only list their own conversations.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	viewerID := mux.Vars(r)["viewer"]
	if !auth.FromContext(r.Context()).CanView(viewerID) {
		sendJSONError(w, http.StatusForbidden, "cannot list another viewer's conversations")
		return
	}

	conversations, err := s.store.ListConversations(r.Context(), viewerID)
	if err != nil {
		s.logger.Error("failed to list conversations", "viewer_id", viewerID, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	sendJSON(w, http.StatusOK, ConversationsResponse{Conversations: conversations})
}

// handleListMessages handles GET /api/conversations/{id}/messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.conversationFor(w, r)
	if !ok {
		return
	}

	messages, err := s.store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("failed to list messages", "conversation_id", conv.ID, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	sendJSON(w, http.StatusOK, MessagesResponse{Messages: messages})
}

// handleSendMessage handles POST /api/conversations/{id}/messages.
// The first request for an idempotency key creates the message (201);
// replays return the original message (200).
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.conversationFor(w, r)
	if !ok {
		return
	}
	viewer := auth.FromContext(r.Context())

	var req SendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyLength+1024)).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		sendJSONError(w, http.StatusBadRequest, "body is required")
		return
	}
	if len(req.Body) > maxBodyLength {
		sendJSONError(w, http.StatusUnprocessableEntity, "body too long")
		return
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       viewer.ViewerID,
		Body:           req.Body,
		CreatedAt:      s.clock.Now().UTC(),
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	var cacheKey string
	if key != "" {
		cacheKey = viewer.ViewerID + ":" + key
		if storedID, dup := s.sends.CheckAndStore(cacheKey, msg.ID); dup {
			s.replaySend(w, r, viewer, storedID)
			return
		}
	}

	if err := s.store.SaveMessage(r.Context(), msg); err != nil {
		if cacheKey != "" {
			s.sends.Forget(cacheKey)
		}
		if errors.Is(err, store.ErrNotFound) {
			sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("failed to save message", "conversation_id", conv.ID, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Debug("message sent",
		"conversation_id", conv.ID,
		"message_id", msg.ID,
		"sender_id", viewer.ViewerID,
	)
	sendJSON(w, http.StatusCreated, toChatMessage(msg, viewer.DisplayName))
}

// replaySend answers a repeated idempotency key with the message the
// first request created.
func (s *Server) replaySend(w http.ResponseWriter, r *http.Request, viewer *auth.AuthContext, messageID string) {
	original, err := s.store.GetMessage(r.Context(), messageID)
	if errors.Is(err, store.ErrNotFound) {
		// The first request has not finished saving yet.
		sendJSONError(w, http.StatusConflict, "send in progress")
		return
	}
	if err != nil {
		s.logger.Error("failed to load replayed message", "message_id", messageID, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Debug("replayed send", "message_id", messageID)
	sendJSON(w, http.StatusOK, toChatMessage(original, viewer.DisplayName))
}

// handleMarkRead handles POST /api/conversations/{id}/read.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.conversationFor(w, r)
	if !ok {
		return
	}
	viewer := auth.FromContext(r.Context())

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Through == "" {
		sendJSONError(w, http.StatusBadRequest, "through is required")
		return
	}

	if err := s.store.MarkRead(r.Context(), conv.ID, viewer.ViewerID, req.Through); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendJSONError(w, http.StatusNotFound, "message not found in conversation")
			return
		}
		s.logger.Error("failed to mark read", "conversation_id", conv.ID, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// conversationFor loads the conversation named in the path and checks the
// viewer takes part in it. Conversations the viewer is not in are reported
// as missing. Writes the error response and returns false on failure.
func (s *Server) conversationFor(w http.ResponseWriter, r *http.Request) (*store.Conversation, bool) {
	id := mux.Vars(r)["id"]
	viewer := auth.FromContext(r.Context())
	if viewer == nil {
		sendJSONError(w, http.StatusUnauthorized, "unauthenticated")
		return nil, false
	}

	conv, err := s.store.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !conv.Includes(viewer.ViewerID)) {
		sendJSONError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to load conversation", "conversation_id", id, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return conv, true
}

func toChatMessage(m *store.Message, senderName string) chat.Message {
	return chat.Message{
		ID:             chat.MessageID(m.ID),
		ConversationID: chat.ConversationID(m.ConversationID),
		SenderID:       m.SenderID,
		SenderName:     senderName,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]string{"error": message})
}
