package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omadligroup/ai-agent-api/internal/model"
	"github.com/omadligroup/ai-agent-api/internal/rag"
	"github.com/omadligroup/ai-agent-api/internal/store"
	"github.com/omadligroup/ai-agent-api/pkg/logger"
	"github.com/omadligroup/ai-agent-api/pkg/metrics"
)

// maxTitleLength bounds titles derived from the first message, in runes.
const maxTitleLength = 50

// ChatService orchestrates conversations with the assistant backend.
type ChatService struct {
	db     *store.Database
	rag    *rag.Client
	events EventPublisher
	logger *logger.Logger
}

// NewChatService creates a new chat service.
func NewChatService(db *store.Database, ragClient *rag.Client, events EventPublisher, log *logger.Logger) *ChatService {
	return &ChatService{
		db:     db,
		rag:    ragClient,
		events: events,
		logger: log,
	}
}

// prepare resolves the conversation and final message content for a
// chat request, applying templates and creating conversations as needed.
func (s *ChatService) prepare(ctx context.Context, userID string, req *model.ChatRequest) (*model.Conversation, string, error) {
	content := req.Message

	if req.TemplateID != nil {
		template, err := s.db.GetTemplate(*req.TemplateID, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, "", ErrNotFound
			}
			return nil, "", err
		}
		// Only public templates may seed a chat, even for their owner.
		if !template.IsPublic {
			return nil, "", ErrNotFound
		}
		content = template.Prompt + "\n\n" + content
		if err := s.db.IncrementTemplateUsage(template.ID); err != nil {
			s.logger.Warn("failed to bump template usage", zap.Error(err))
		}
	}

	if req.ConversationID != nil {
		conv, err := s.db.GetConversation(*req.ConversationID, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, "", ErrNotFound
			}
			return nil, "", err
		}
		return conv, content, nil
	}

	conv := &model.Conversation{
		UserID: userID,
		Title:  titleFromMessage(req.Message),
	}
	if req.FolderID != nil {
		// A missing folder is not an error, the conversation just
		// lands outside any folder.
		if _, err := s.db.GetFolder(*req.FolderID, userID); err == nil {
			conv.FolderID = req.FolderID
		}
	}
	if err := s.db.CreateConversation(conv); err != nil {
		return nil, "", err
	}
	return conv, content, nil
}

func titleFromMessage(message string) string {
	title := []rune(strings.TrimSpace(message))
	if len(title) > maxTitleLength {
		return string(title[:maxTitleLength]) + "..."
	}
	return string(title)
}

// ProcessMessage handles a non-streaming chat exchange: persist the
// user message, query the assistant backend, persist the reply.
func (s *ChatService) ProcessMessage(ctx context.Context, userID string, req *model.ChatRequest) (*model.ChatResponse, error) {
	conv, content, err := s.prepare(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	userMsg := &model.ChatMessage{
		ConversationID: conv.ID,
		UserID:         userID,
		MessageType:    model.MessageTypeUser,
		Content:        content,
		Status:         model.MessageStatusCompleted,
	}
	if err := s.db.CreateMessage(userMsg); err != nil {
		return nil, err
	}
	metrics.ChatMessagesTotal.WithLabelValues("user", "completed").Inc()

	start := time.Now()
	answer, ragErr := s.rag.Ask(ctx, content)
	responseTime := time.Since(start).Milliseconds()

	tokens := rag.EstimateTokens(content, answer.Response)
	status := model.MessageStatusCompleted
	errMsg := ""
	if ragErr != nil {
		status = model.MessageStatusFailed
		errMsg = ragErr.Error()
		tokens = 0
	}

	assistantMsg := &model.ChatMessage{
		ConversationID: conv.ID,
		UserID:         userID,
		MessageType:    model.MessageTypeAssistant,
		Content:        answer.Response,
		Status:         status,
		ModelUsed:      rag.ModelName,
		ResponseTimeMs: &responseTime,
		ErrorMessage:   errMsg,
		Sources:        answer.Sources,
	}
	if tokens > 0 {
		assistantMsg.TokensUsed = &tokens
	}
	if err := s.db.CreateMessage(assistantMsg); err != nil {
		return nil, err
	}
	metrics.ChatMessagesTotal.WithLabelValues("assistant", string(status)).Inc()
	metrics.ChatTokensTotal.Add(float64(tokens))

	s.db.BumpSessionCounter(userID, "chat_messages_sent")
	s.publishChatEvent(ctx, userID, conv.ID, tokens)

	return &model.ChatResponse{
		Success:          ragErr == nil,
		ConversationID:   conv.ID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		TokensUsed:       tokens,
		ResponseTimeMs:   responseTime,
	}, nil
}

// StreamMessage handles a streaming chat exchange. Chunks are delivered
// on the returned channel: word deltas, then sources, then a final
// complete frame (or an error frame). The channel closes when done.
func (s *ChatService) StreamMessage(ctx context.Context, userID string, req *model.ChatRequest) (<-chan model.StreamChunk, error) {
	conv, content, err := s.prepare(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	userMsg := &model.ChatMessage{
		ConversationID: conv.ID,
		UserID:         userID,
		MessageType:    model.MessageTypeUser,
		Content:        content,
		Status:         model.MessageStatusCompleted,
	}
	if err := s.db.CreateMessage(userMsg); err != nil {
		return nil, err
	}
	metrics.ChatMessagesTotal.WithLabelValues("user", "completed").Inc()

	assistantMsg := &model.ChatMessage{
		ConversationID: conv.ID,
		UserID:         userID,
		MessageType:    model.MessageTypeAssistant,
		Content:        "",
		Status:         model.MessageStatusProcessing,
		ModelUsed:      rag.ModelName,
	}
	if err := s.db.CreateMessage(assistantMsg); err != nil {
		return nil, err
	}

	out := make(chan model.StreamChunk)
	go s.runStream(ctx, conv, userMsg, assistantMsg, content, out)
	return out, nil
}

func (s *ChatService) runStream(ctx context.Context, conv *model.Conversation, userMsg, assistantMsg *model.ChatMessage, content string, out chan<- model.StreamChunk) {
	defer close(out)

	ids := func(c model.StreamChunk) model.StreamChunk {
		c.ConversationID = conv.ID
		c.UserMessageID = userMsg.ID
		c.AssistantMessageID = assistantMsg.ID
		return c
	}

	start := time.Now()
	answer, ragErr := s.rag.Ask(ctx, content)
	responseTime := time.Since(start).Milliseconds()

	if ragErr != nil {
		assistantMsg.Content = answer.Response
		assistantMsg.Status = model.MessageStatusFailed
		assistantMsg.ErrorMessage = ragErr.Error()
		assistantMsg.ResponseTimeMs = &responseTime
		if err := s.db.UpdateMessage(assistantMsg); err != nil {
			s.logger.Error("failed to persist failed message", zap.Error(err))
		}
		metrics.ChatMessagesTotal.WithLabelValues("assistant", "failed").Inc()

		select {
		case out <- ids(model.StreamChunk{
			Type:           "error",
			Response:       answer.Response,
			Error:          ragErr.Error(),
			ResponseTimeMs: responseTime,
			ModelUsed:      rag.ModelName,
		}):
		case <-ctx.Done():
		}
		return
	}

	// Deliver the answer word by word, each delta carrying a trailing
	// space, matching how clients render incremental markdown.
	for _, word := range strings.Split(answer.Response, " ") {
		select {
		case out <- ids(model.StreamChunk{Type: "delta", Content: word + " "}):
		case <-ctx.Done():
			return
		}
	}

	if len(answer.Sources) > 0 {
		select {
		case out <- ids(model.StreamChunk{Type: "sources", Sources: answer.Sources}):
		case <-ctx.Done():
			return
		}
	}

	tokens := rag.EstimateTokens(content, answer.Response)
	assistantMsg.Content = answer.Response
	assistantMsg.Status = model.MessageStatusCompleted
	assistantMsg.TokensUsed = &tokens
	assistantMsg.ResponseTimeMs = &responseTime
	assistantMsg.Sources = answer.Sources
	if err := s.db.UpdateMessage(assistantMsg); err != nil {
		s.logger.Error("failed to persist assistant message", zap.Error(err))
	}
	if err := s.db.AddMessageTokens(conv.ID, tokens); err != nil {
		s.logger.Warn("failed to update conversation tokens", zap.Error(err))
	}
	metrics.ChatMessagesTotal.WithLabelValues("assistant", "completed").Inc()
	metrics.ChatTokensTotal.Add(float64(tokens))

	s.db.BumpSessionCounter(userMsg.UserID, "chat_messages_sent")
	s.publishChatEvent(ctx, userMsg.UserID, conv.ID, tokens)

	select {
	case out <- ids(model.StreamChunk{
		Type:           "complete",
		Response:       answer.Response,
		Sources:        answer.Sources,
		TokensUsed:     tokens,
		ResponseTimeMs: responseTime,
		ModelUsed:      rag.ModelName,
	}):
	case <-ctx.Done():
	}
}

func (s *ChatService) publishChatEvent(ctx context.Context, userID, conversationID string, tokens int) {
	if s.events == nil {
		return
	}
	event := &model.AnalyticsEvent{
		EventType: model.EventChatMessage,
		EventName: "chat_message_sent",
		UserID:    &userID,
		Properties: map[string]any{
			"conversation_id": conversationID,
			"tokens_used":     tokens,
		},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.events.PublishEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish chat event", zap.Error(err))
	}
}

// Feedback records a thumbs rating on an assistant message and forwards
// it to the feedback webhook.
func (s *ChatService) Feedback(ctx context.Context, userID, messageID string, req *model.MessageFeedbackRequest) (*model.ChatMessage, error) {
	msg, err := s.db.GetMessage(messageID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if msg.MessageType != model.MessageTypeAssistant {
		return nil, fmt.Errorf("%w: feedback applies to assistant messages", ErrInvalidInput)
	}

	msg.IsHelpful = &req.IsHelpful
	msg.FeedbackComment = req.Comment
	if err := s.db.UpdateMessage(msg); err != nil {
		return nil, err
	}

	// Find the question the answer responded to for the webhook payload.
	question := ""
	if history, err := s.db.ListMessages(msg.ConversationID, 0, 0); err == nil {
		for i := range history {
			if history[i].ID == msg.ID && i > 0 {
				question = history[i-1].Content
				break
			}
		}
	}

	feedbackType := rag.ThumbsUp
	if !req.IsHelpful {
		feedbackType = rag.ThumbsDown
	}
	if err := s.rag.SubmitFeedback(ctx, rag.Feedback{
		Question:     question,
		Answer:       msg.Content,
		FeedbackType: feedbackType,
		Comment:      req.Comment,
	}); err != nil {
		// Local feedback is already saved; webhook delivery is best effort.
		s.logger.Warn("failed to forward feedback", zap.Error(err))
	}
	return msg, nil
}

// Conversations lists the user's conversations.
func (s *ChatService) Conversations(ctx context.Context, userID string, f store.ConversationFilter) (*model.ListConversationsResponse, error) {
	convs, total, err := s.db.ListConversations(userID, f)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         total,
		HasMore:       f.Offset+len(convs) < total,
	}, nil
}

// Conversation returns one conversation with its messages.
func (s *ChatService) Conversation(ctx context.Context, userID, conversationID string) (*model.Conversation, []model.ChatMessage, error) {
	conv, err := s.db.GetConversation(conversationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	msgs, err := s.db.ListMessages(conversationID, 0, 0)
	if err != nil {
		return nil, nil, err
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	return conv, msgs, nil
}

// UpdateConversation applies title, folder, archive and pin changes.
func (s *ChatService) UpdateConversation(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	if err := s.db.UpdateConversation(conv); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.db.GetConversation(conv.ID, conv.UserID)
}

// DeleteConversation removes a conversation and its messages.
func (s *ChatService) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if err := s.db.DeleteConversation(conversationID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Export produces the full JSON export of a conversation.
func (s *ChatService) Export(ctx context.Context, userID, conversationID string) (*model.ConversationExport, error) {
	conv, msgs, err := s.Conversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	export := &model.ConversationExport{
		ConversationID:  conv.ID,
		Title:           conv.Title,
		CreatedAt:       conv.CreatedAt,
		TotalMessages:   conv.TotalMessages,
		TotalTokensUsed: conv.TotalTokensUsed,
		Messages:        make([]model.ExportedMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		export.Messages = append(export.Messages, model.ExportedMessage{
			Timestamp:      m.CreatedAt,
			Type:           m.MessageType,
			Content:        m.Content,
			TokensUsed:     m.TokensUsed,
			ResponseTimeMs: m.ResponseTimeMs,
		})
	}
	return export, nil
}

// Folders lists the user's folders.
func (s *ChatService) Folders(ctx context.Context, userID string) ([]model.Folder, error) {
	folders, err := s.db.ListFolders(userID)
	if err != nil {
		return nil, err
	}
	if folders == nil {
		folders = []model.Folder{}
	}
	return folders, nil
}

// Folder fetches one of the user's folders.
func (s *ChatService) Folder(ctx context.Context, userID, folderID string) (*model.Folder, error) {
	folder, err := s.db.GetFolder(folderID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return folder, nil
}

// CreateFolder makes a new folder.
func (s *ChatService) CreateFolder(ctx context.Context, folder *model.Folder) (*model.Folder, error) {
	if folder.Name == "" {
		return nil, fmt.Errorf("%w: folder name required", ErrInvalidInput)
	}
	if err := s.db.CreateFolder(folder); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: folder name taken", ErrConflict)
		}
		return nil, err
	}
	return folder, nil
}

// UpdateFolder renames or recolors a folder.
func (s *ChatService) UpdateFolder(ctx context.Context, folder *model.Folder) (*model.Folder, error) {
	if err := s.db.UpdateFolder(folder); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: folder name taken", ErrConflict)
		}
		return nil, err
	}
	return s.db.GetFolder(folder.ID, folder.UserID)
}

// DeleteFolder removes a folder, keeping its conversations.
func (s *ChatService) DeleteFolder(ctx context.Context, userID, folderID string) error {
	if err := s.db.DeleteFolder(folderID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Templates lists templates visible to the user.
func (s *ChatService) Templates(ctx context.Context, userID string, category model.TemplateCategory) ([]model.ChatTemplate, error) {
	templates, err := s.db.ListTemplates(userID, category)
	if err != nil {
		return nil, err
	}
	if templates == nil {
		templates = []model.ChatTemplate{}
	}
	return templates, nil
}

// CreateTemplate adds a prompt template.
func (s *ChatService) CreateTemplate(ctx context.Context, t *model.ChatTemplate) (*model.ChatTemplate, error) {
	if t.Name == "" || t.Prompt == "" {
		return nil, fmt.Errorf("%w: template name and prompt required", ErrInvalidInput)
	}
	if err := s.db.CreateTemplate(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Stats summarizes the user's chat usage.
func (s *ChatService) Stats(ctx context.Context, userID string) (*model.ConversationStats, error) {
	return s.db.ConversationStats(userID, time.Now())
}

// FeedbackAnalytics proxies the feedback analytics webhook.
func (s *ChatService) FeedbackAnalytics(ctx context.Context, dateFrom, dateTo string) (any, error) {
	return s.rag.FeedbackAnalytics(ctx, dateFrom, dateTo)
}

// History returns a conversation's messages in order.
func (s *ChatService) History(ctx context.Context, userID, conversationID string, limit, offset int) ([]model.ChatMessage, error) {
	if _, err := s.db.GetConversation(conversationID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	msgs, err := s.db.ListMessages(conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	return msgs, nil
}

// RAGHistory returns recent messages in the webhook's wire shape,
// current message first.
func (s *ChatService) RAGHistory(ctx context.Context, userID, conversationID string, n int) ([]model.RAGHistoryEntry, error) {
	if _, err := s.db.GetConversation(conversationID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if n <= 0 {
		n = 10
	}
	entries, err := s.db.RecentHistory(conversationID, n)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.RAGHistoryEntry{}
	}
	// Reverse to current-first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Archive marks a conversation archived.
func (s *ChatService) Archive(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	conv, err := s.db.GetConversation(conversationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	conv.IsArchived = true
	return s.UpdateConversation(ctx, conv)
}

// TogglePin flips a conversation's pinned state.
func (s *ChatService) TogglePin(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	conv, err := s.db.GetConversation(conversationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	conv.IsPinned = !conv.IsPinned
	return s.UpdateConversation(ctx, conv)
}

// Move assigns a conversation to a folder, or detaches it when
// folderID is nil.
func (s *ChatService) Move(ctx context.Context, userID, conversationID string, folderID *string) (*model.Conversation, error) {
	conv, err := s.db.GetConversation(conversationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if folderID != nil {
		if _, err := s.db.GetFolder(*folderID, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: folder not found", ErrInvalidInput)
			}
			return nil, err
		}
	}
	conv.FolderID = folderID
	return s.UpdateConversation(ctx, conv)
}

// ClearAll deletes every conversation of the user and returns how many
// were removed.
func (s *ChatService) ClearAll(ctx context.Context, userID string) (int64, error) {
	return s.db.ClearConversations(userID)
}

// Template fetches one template visible to the user.
func (s *ChatService) Template(ctx context.Context, userID string, id int64) (*model.ChatTemplate, error) {
	t, err := s.db.GetTemplate(id, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// templateEditable reports whether the user may edit the template.
func templateEditable(t *model.ChatTemplate, userID string, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	return t.CreatedBy != nil && *t.CreatedBy == userID
}

// UpdateTemplate edits a template the user owns (admins edit any).
func (s *ChatService) UpdateTemplate(ctx context.Context, userID string, isAdmin bool, t *model.ChatTemplate) (*model.ChatTemplate, error) {
	existing, err := s.Template(ctx, userID, t.ID)
	if err != nil {
		return nil, err
	}
	if !templateEditable(existing, userID, isAdmin) {
		return nil, ErrForbidden
	}
	if t.Name == "" || t.Prompt == "" {
		return nil, fmt.Errorf("%w: template name and prompt required", ErrInvalidInput)
	}
	if err := s.db.UpdateTemplate(t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.db.GetTemplate(t.ID, userID)
}

// DeleteTemplate removes a template the user owns (admins delete any).
func (s *ChatService) DeleteTemplate(ctx context.Context, userID string, isAdmin bool, id int64) error {
	existing, err := s.Template(ctx, userID, id)
	if err != nil {
		return err
	}
	if !templateEditable(existing, userID, isAdmin) {
		return ErrForbidden
	}
	if err := s.db.DeleteTemplate(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// AdminAnalytics summarizes chat usage across all users.
func (s *ChatService) AdminAnalytics(ctx context.Context) (*store.AdminChatStats, error) {
	return s.db.AdminChatSummary(time.Now())
}

// ProxyFeedback forwards a raw feedback payload to the webhook.
func (s *ChatService) ProxyFeedback(ctx context.Context, fb rag.Feedback) error {
	if fb.Answer == "" {
		return fmt.Errorf("%w: answer required", ErrInvalidInput)
	}
	if fb.FeedbackType != rag.ThumbsUp && fb.FeedbackType != rag.ThumbsDown {
		return fmt.Errorf("%w: unknown feedback type %q", ErrInvalidInput, fb.FeedbackType)
	}
	if err := s.rag.SubmitFeedback(ctx, fb); err != nil {
		return fmt.Errorf("feedback webhook unavailable: %w", err)
	}
	return nil
}

// Feedbacks proxies the webhook's feedback listing.
func (s *ChatService) Feedbacks(ctx context.Context, status, dateFrom, dateTo string) (any, error) {
	return s.rag.ListFeedbacks(ctx, status, dateFrom, dateTo)
}
