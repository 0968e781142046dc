package model

import (
	"time"
)

// MessageType represents the sender of a chat message.
type MessageType string

const (
	MessageTypeUser      MessageType = "user"
	MessageTypeAssistant MessageType = "assistant"
	MessageTypeSystem    MessageType = "system"
)

// MessageStatus represents the processing state of a chat message.
type MessageStatus string

const (
	MessageStatusPending    MessageStatus = "pending"
	MessageStatusProcessing MessageStatus = "processing"
	MessageStatusCompleted  MessageStatus = "completed"
	MessageStatusFailed     MessageStatus = "failed"
)

// Folder groups conversations for organization.
type Folder struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Color             string    `json:"color"`
	ConversationCount int       `json:"conversation_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Conversation represents a chat thread.
type Conversation struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	FolderID        *string   `json:"folder_id,omitempty"`
	Title           string    `json:"title"`
	IsArchived      bool      `json:"is_archived"`
	IsPinned        bool      `json:"is_pinned"`
	TotalMessages   int       `json:"total_messages"`
	TotalTokensUsed int       `json:"total_tokens_used"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ChatMessage represents one message in a conversation.
type ChatMessage struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	UserID         string        `json:"user_id"`
	MessageType    MessageType   `json:"message_type"`
	Content        string        `json:"content"`
	Status         MessageStatus `json:"status"`

	TokensUsed     *int   `json:"tokens_used,omitempty"`
	ModelUsed      string `json:"model_used,omitempty"`
	ResponseTimeMs *int64 `json:"response_time_ms,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`

	IsHelpful       *bool    `json:"is_helpful,omitempty"`
	FeedbackComment string   `json:"feedback_comment,omitempty"`
	Sources         []string `json:"sources"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFromUser reports whether the message was sent by the user.
func (m *ChatMessage) IsFromUser() bool {
	return m.MessageType == MessageTypeUser
}

// TemplateCategory classifies chat templates.
type TemplateCategory string

const (
	TemplateGeneral     TemplateCategory = "general"
	TemplateBusiness    TemplateCategory = "business"
	TemplateTechnical   TemplateCategory = "technical"
	TemplateCreative    TemplateCategory = "creative"
	TemplateEducational TemplateCategory = "educational"
)

// ChatTemplate is a predefined prompt prefix.
type ChatTemplate struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Category    TemplateCategory `json:"category"`
	Prompt      string           `json:"prompt"`
	IsPublic    bool             `json:"is_public"`
	CreatedBy   *string          `json:"created_by,omitempty"`
	UsageCount  int              `json:"usage_count"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ChatRequest is the request to send a chat message.
type ChatRequest struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id,omitempty"`
	TemplateID     *int64  `json:"template_id,omitempty"`
	FolderID       *string `json:"folder_id,omitempty"`
}

// ChatResponse is the non-streaming chat result.
type ChatResponse struct {
	Success          bool         `json:"success"`
	ConversationID   string       `json:"conversation_id"`
	UserMessage      *ChatMessage `json:"user_message"`
	AssistantMessage *ChatMessage `json:"assistant_message"`
	TokensUsed       int          `json:"tokens_used"`
	ResponseTimeMs   int64        `json:"response_time_ms"`
	Error            string       `json:"error,omitempty"`
}

// ListConversationsResponse is the conversation listing.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	HasMore       bool           `json:"has_more"`
}

// ConversationExport is the full JSON export of one conversation.
type ConversationExport struct {
	ConversationID  string            `json:"conversation_id"`
	Title           string            `json:"title"`
	CreatedAt       time.Time         `json:"created_at"`
	TotalMessages   int               `json:"total_messages"`
	TotalTokensUsed int               `json:"total_tokens_used"`
	Messages        []ExportedMessage `json:"messages"`
}

// ExportedMessage is one message in a conversation export.
type ExportedMessage struct {
	Timestamp      time.Time   `json:"timestamp"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content"`
	TokensUsed     *int        `json:"tokens_used"`
	ResponseTimeMs *int64      `json:"response_time_ms"`
}

// RAGHistoryEntry is one entry in the webhook-formatted history.
type RAGHistoryEntry struct {
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
}

// MessageFeedbackRequest records user feedback on an assistant message.
type MessageFeedbackRequest struct {
	IsHelpful bool   `json:"is_helpful"`
	Comment   string `json:"comment,omitempty"`
}

// ConversationStats summarizes a user's chat usage.
type ConversationStats struct {
	TotalConversations     int     `json:"total_conversations"`
	TotalMessages          int     `json:"total_messages"`
	TotalTokensUsed        int     `json:"total_tokens_used"`
	AvgMessagesPerConvo    float64 `json:"avg_messages_per_conversation"`
	AvgResponseTimeMs      float64 `json:"avg_response_time_ms"`
	ConversationsThisWeek  int     `json:"conversations_this_week"`
	ConversationsThisMonth int     `json:"conversations_this_month"`
}

// StreamChunk is one SSE frame of a streaming chat response.
type StreamChunk struct {
	Type               string   `json:"type"`
	Content            string   `json:"content,omitempty"`
	Response           string   `json:"response,omitempty"`
	Sources            []string `json:"sources,omitempty"`
	TokensUsed         int      `json:"tokens_used,omitempty"`
	ResponseTimeMs     int64    `json:"response_time_ms,omitempty"`
	ModelUsed          string   `json:"model_used,omitempty"`
	Error              string   `json:"error,omitempty"`
	ConversationID     string   `json:"conversation_id,omitempty"`
	UserMessageID      string   `json:"user_message_id,omitempty"`
	AssistantMessageID string   `json:"assistant_message_id,omitempty"`
}
