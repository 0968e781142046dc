package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/omadligroup/ai-agent-api/internal/middleware"
	"github.com/omadligroup/ai-agent-api/internal/model"
	"github.com/omadligroup/ai-agent-api/internal/rag"
	"github.com/omadligroup/ai-agent-api/internal/service"
	"github.com/omadligroup/ai-agent-api/internal/store"
	"github.com/omadligroup/ai-agent-api/pkg/logger"
)

// ChatHandler handles conversation, message, folder and template endpoints.
type ChatHandler struct {
	chatService *service.ChatService
	logger      *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      log,
	}
}

// SendMessage handles POST /api/v1/chat
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.chatService.ProcessMessage(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListConversations handles GET /api/v1/chat/conversations
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	f := store.ConversationFilter{
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
		Offset: offset,
	}
	if v := r.URL.Query().Get("folder_id"); v != "" {
		f.FolderID = &v
	}
	if v := r.URL.Query().Get("archived"); v != "" {
		archived := v == "true"
		f.Archived = &archived
	}
	if v := r.URL.Query().Get("pinned"); v != "" {
		pinned := v == "true"
		f.Pinned = &pinned
	}

	resp, err := h.chatService.Conversations(r.Context(), middleware.GetUserID(r.Context()), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetConversation handles GET /api/v1/chat/conversations/{id}
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, messages, err := h.chatService.Conversation(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if messages == nil {
		messages = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     messages,
	})
}

// UpdateConversation handles PATCH /api/v1/chat/conversations/{id}
func (h *ChatHandler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := middleware.GetUserID(r.Context())
	conv, _, err := h.chatService.Conversation(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req struct {
		Title      *string `json:"title,omitempty"`
		FolderID   *string `json:"folder_id,omitempty"`
		IsArchived *bool   `json:"is_archived,omitempty"`
		IsPinned   *bool   `json:"is_pinned,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title != nil {
		if err := middleware.ValidateTitle(*req.Title); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		conv.Title = *req.Title
	}
	if req.FolderID != nil {
		if *req.FolderID == "" {
			conv.FolderID = nil
		} else {
			conv.FolderID = req.FolderID
		}
	}
	if req.IsArchived != nil {
		conv.IsArchived = *req.IsArchived
	}
	if req.IsPinned != nil {
		conv.IsPinned = *req.IsPinned
	}

	updated, err := h.chatService.UpdateConversation(r.Context(), conv)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteConversation handles DELETE /api/v1/chat/conversations/{id}
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.chatService.DeleteConversation(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "conversation deleted"})
}

// ExportConversation handles GET /api/v1/chat/conversations/{id}/export
func (h *ChatHandler) ExportConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	export, err := h.chatService.Export(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "conversation_"+id+".json"))
	writeJSON(w, http.StatusOK, export)
}

// Feedback handles POST /api/v1/chat/messages/{id}/feedback
func (h *ChatHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.MessageFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.chatService.Feedback(r.Context(), middleware.GetUserID(r.Context()), id, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// ListFolders handles GET /api/v1/chat/folders
func (h *ChatHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.chatService.Folders(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if folders == nil {
		folders = []model.Folder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

// CreateFolder handles POST /api/v1/chat/folders
func (h *ChatHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var folder model.Folder
	if err := json.NewDecoder(r.Body).Decode(&folder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	folder.UserID = middleware.GetUserID(r.Context())

	created, err := h.chatService.CreateFolder(r.Context(), &folder)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetFolder handles GET /api/v1/chat/folders/{id}
func (h *ChatHandler) GetFolder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	folder, err := h.chatService.Folder(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

// UpdateFolder handles PUT /api/v1/chat/folders/{id}
func (h *ChatHandler) UpdateFolder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var folder model.Folder
	if err := json.NewDecoder(r.Body).Decode(&folder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	folder.ID = id
	folder.UserID = middleware.GetUserID(r.Context())

	updated, err := h.chatService.UpdateFolder(r.Context(), &folder)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteFolder handles DELETE /api/v1/chat/folders/{id}
func (h *ChatHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.chatService.DeleteFolder(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "folder deleted"})
}

// ListTemplates handles GET /api/v1/chat/templates
func (h *ChatHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	category := model.TemplateCategory(r.URL.Query().Get("category"))
	templates, err := h.chatService.Templates(r.Context(), middleware.GetUserID(r.Context()), category)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if templates == nil {
		templates = []model.ChatTemplate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// CreateTemplate handles POST /api/v1/chat/templates
func (h *ChatHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t model.ChatTemplate
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	t.CreatedBy = &userID

	created, err := h.chatService.CreateTemplate(r.Context(), &t)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Stats handles GET /api/v1/chat/stats
func (h *ChatHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.chatService.Stats(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// FeedbackAnalytics handles GET /api/v1/chat/feedback/analytics (admin only)
func (h *ChatHandler) FeedbackAnalytics(w http.ResponseWriter, r *http.Request) {
	dateFrom := r.URL.Query().Get("date_from")
	dateTo := r.URL.Query().Get("date_to")
	for _, d := range []string{dateFrom, dateTo} {
		if d == "" {
			continue
		}
		if err := middleware.ValidateDate(d); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	data, err := h.chatService.FeedbackAnalytics(r.Context(), dateFrom, dateTo)
	if err != nil {
		writeError(w, http.StatusBadGateway, "feedback analytics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// History handles GET /api/v1/chat/conversations/{id}/history
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	msgs, err := h.chatService.History(r.Context(), middleware.GetUserID(r.Context()),
		chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// RAGHistory handles GET /api/v1/chat/conversations/{id}/rag-history
func (h *ChatHandler) RAGHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := pagination(r)
	entries, err := h.chatService.RAGHistory(r.Context(), middleware.GetUserID(r.Context()),
		chi.URLParam(r, "id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []model.RAGHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// Archive handles POST /api/v1/chat/conversations/{id}/archive
func (h *ChatHandler) Archive(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chatService.Archive(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Pin handles POST /api/v1/chat/conversations/{id}/pin
func (h *ChatHandler) Pin(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chatService.TogglePin(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Move handles POST /api/v1/chat/conversations/{id}/move
func (h *ChatHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FolderID *string `json:"folder_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.chatService.Move(r.Context(), middleware.GetUserID(r.Context()),
		chi.URLParam(r, "id"), req.FolderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// ClearAll handles POST /api/v1/chat/conversations/clear-all
func (h *ChatHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.chatService.ClearAll(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// FolderConversations handles GET /api/v1/chat/folders/{id}/conversations
func (h *ChatHandler) FolderConversations(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	folderID := chi.URLParam(r, "id")
	f := store.ConversationFilter{
		FolderID: &folderID,
		Limit:    limit,
		Offset:   offset,
	}

	resp, err := h.chatService.Conversations(r.Context(), middleware.GetUserID(r.Context()), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// templateID parses the numeric template id from the URL.
func templateID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// GetTemplate handles GET /api/v1/chat/templates/{id}
func (h *ChatHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return
	}

	t, err := h.chatService.Template(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateTemplate handles PUT /api/v1/chat/templates/{id}
func (h *ChatHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return
	}

	var t model.ChatTemplate
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t.ID = id

	isAdmin := middleware.GetRole(r.Context()) == model.RoleAdmin
	updated, err := h.chatService.UpdateTemplate(r.Context(), middleware.GetUserID(r.Context()), isAdmin, &t)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteTemplate handles DELETE /api/v1/chat/templates/{id}
func (h *ChatHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return
	}

	isAdmin := middleware.GetRole(r.Context()) == model.RoleAdmin
	if err := h.chatService.DeleteTemplate(r.Context(), middleware.GetUserID(r.Context()), isAdmin, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "template deleted"})
}

// AdminAnalytics handles GET /api/v1/chat/admin/analytics (admin only)
func (h *ChatHandler) AdminAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.chatService.AdminAnalytics(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// SubmitFeedback handles POST /api/v1/chat/feedback
func (h *ChatHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var fb rag.Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.chatService.ProxyFeedback(r.Context(), fb); err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeServiceError(w, err)
			return
		}
		writeError(w, http.StatusBadGateway, "feedback webhook unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "feedback submitted"})
}

// ListFeedbacks handles GET /api/v1/chat/feedbacks (admin only)
func (h *ChatHandler) ListFeedbacks(w http.ResponseWriter, r *http.Request) {
	data, err := h.chatService.Feedbacks(r.Context(),
		r.URL.Query().Get("status"),
		r.URL.Query().Get("date_from"),
		r.URL.Query().Get("date_to"))
	if err != nil {
		writeError(w, http.StatusBadGateway, "feedback listing unavailable")
		return
	}
	writeJSON(w, http.StatusOK, data)
}
