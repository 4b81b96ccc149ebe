package api

import (
	"net/http"

	"github.com/example/ec-storefront/internal/domain/conversation"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/example/ec-storefront/internal/realtime"
	"github.com/go-chi/chi/v5"
)

// ConversationHandlers serves customer/admin messaging and its websocket
type ConversationHandlers struct {
	conversationSvc *conversation.Service
	userSvc         *user.Service
	hub             *realtime.Hub
}

func NewConversationHandlers(conversationSvc *conversation.Service, userSvc *user.Service, hub *realtime.Hub) *ConversationHandlers {
	return &ConversationHandlers{
		conversationSvc: conversationSvc,
		userSvc:         userSvc,
		hub:             hub,
	}
}

type messageRequest struct {
	Text string `json:"text"`
}

// Customer side

func (h *ConversationHandlers) GetMine(w http.ResponseWriter, r *http.Request) {
	u, err := h.userSvc.Get(r.Context(), getUserID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.conversationSvc.ForUser(r.Context(), u.ID, u.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *ConversationHandlers) PostMine(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	u, err := h.userSvc.Get(r.Context(), getUserID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.conversationSvc.PostUserMessage(r.Context(), u.ID, u.Name, req.Text)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *ConversationHandlers) ReadMine(w http.ResponseWriter, r *http.Request) {
	c, err := h.conversationSvc.MarkRead(r.Context(), conversation.ConversationID(getUserID(r)), conversation.SenderUser)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// Connect upgrades to a websocket that receives conversation updates. Admin
// connections receive updates for every conversation.
func (h *ConversationHandlers) Connect(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r, getUserID(r), isAdmin(r))
}

// Admin side

func (h *ConversationHandlers) List(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.conversationSvc.List(r.Context(), conversation.Status(r.URL.Query().Get("status")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, conversations)
}

func (h *ConversationHandlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.conversationSvc.AdminUnreadCount(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *ConversationHandlers) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.conversationSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *ConversationHandlers) Reply(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	c, err := h.conversationSvc.PostAdminReply(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *ConversationHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	c, err := h.conversationSvc.MarkRead(r.Context(), chi.URLParam(r, "id"), conversation.SenderAdmin)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *ConversationHandlers) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status conversation.Status `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	c, err := h.conversationSvc.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}
