package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omadligroup/ai-agent-api/internal/model"
	"github.com/omadligroup/ai-agent-api/internal/rag"
	"github.com/omadligroup/ai-agent-api/internal/store"
)

// chatFixture wires a chat service against a fake webhook.
type chatFixture struct {
	svc    *ChatService
	db     *store.Database
	userID string
}

func newChatFixture(t *testing.T, webhook http.HandlerFunc) *chatFixture {
	t.Helper()
	srv := httptest.NewServer(webhook)
	t.Cleanup(srv.Close)

	db := testStore(t)
	log := testLogger(t)
	ragClient := rag.NewClient(srv.URL, srv.URL+"/feedback", srv.URL+"/analytics", 5*time.Second, log)

	user := &model.User{
		Username:           "alice",
		Email:              "alice@example.com",
		PasswordHash:       "x",
		Role:               model.RoleUser,
		SubscriptionType:   model.SubscriptionFree,
		SubscriptionStatus: model.SubscriptionActive,
	}
	require.NoError(t, db.CreateUser(user))

	return &chatFixture{
		svc:    NewChatService(db, ragClient, nil, log),
		db:     db,
		userID: user.ID,
	}
}

func answerWebhook(answer string, sources ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := `[{"content": ` + jsonString(answer) + `, "Document Names": [`
		for i, s := range sources {
			if i > 0 {
				body += ","
			}
			body += jsonString(s)
		}
		body += `]}]`
		w.Write([]byte(body))
	}
}

func jsonString(s string) string {
	return `"` + s + `"`
}

func TestProcessMessage(t *testing.T) {
	f := newChatFixture(t, answerWebhook("The refund window is 30 days.", "policy.docx"))

	resp, err := f.svc.ProcessMessage(context.Background(), f.userID, &model.ChatRequest{
		Message: "What is the refund policy?",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, model.MessageTypeUser, resp.UserMessage.MessageType)
	assert.Equal(t, model.MessageTypeAssistant, resp.AssistantMessage.MessageType)
	assert.Contains(t, resp.AssistantMessage.Content, "30 days")
	assert.Equal(t, []string{"policy.docx"}, resp.AssistantMessage.Sources)
	assert.Equal(t, rag.ModelName, resp.AssistantMessage.ModelUsed)
	assert.Greater(t, resp.TokensUsed, 0)

	// A conversation was created and titled from the first message.
	conv, err := f.db.GetConversation(resp.ConversationID, f.userID)
	require.NoError(t, err)
	assert.Equal(t, "What is the refund policy?", conv.Title)
	assert.Equal(t, 2, conv.TotalMessages)
}

func TestProcessMessageExistingConversation(t *testing.T) {
	f := newChatFixture(t, answerWebhook("ok"))

	first, err := f.svc.ProcessMessage(context.Background(), f.userID, &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)

	second, err := f.svc.ProcessMessage(context.Background(), f.userID, &model.ChatRequest{
		Message:        "again",
		ConversationID: &first.ConversationID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	msgs, err := f.db.ListMessages(first.ConversationID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestProcessMessageUnknownConversation(t *testing.T) {
	f := newChatFixture(t, answerWebhook("ok"))

	missing := "00000000-0000-7000-8000-000000000000"
	_, err := f.svc.ProcessMessage(context.Background(), f.userID, &model.ChatRequest{
		Message:        "hello",
		ConversationID: &missing,
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestProcessMessageAppliesTemplate(t *testing.T) {
	var gotMessage string
	f := newChatFixture(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
		}
		decodeBody(t, r, &req)
		gotMessage = req.Message
		answerWebhook("done")(w, r)
	})

	tmpl := &model.ChatTemplate{
		Name:     "summarize",
		Prompt:   "Summarize the following:",
		Category: model.TemplateGeneral,
		IsPublic: true,
	}
	require.NoError(t, f.db.CreateTemplate(tmpl))

	_, err := f.svc.ProcessMessage(context.Background(), f.userID, &model.ChatRequest{
		Message:    "quarterly numbers",
		TemplateID: &tmpl.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Summarize the following:\n\nquarterly numbers", gotMessage)

	got, err := f.db.GetTemplate(tmpl.ID, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount)
}

func TestProcessMessageWebhookFailure(t *testing.T) {
	f := newChatFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	resp, err := f.svc.ProcessMessage(context.Background(), f.userID, &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, model.MessageStatusFailed, resp.AssistantMessage.Status)
	assert.Equal(t, rag.FallbackOutOfScope, resp.AssistantMessage.Content)
	assert.NotEmpty(t, resp.AssistantMessage.ErrorMessage)
	assert.Zero(t, resp.TokensUsed)
}

func TestStreamMessage(t *testing.T) {
	f := newChatFixture(t, answerWebhook("one two three", "doc.pdf"))

	out, err := f.svc.StreamMessage(context.Background(), f.userID, &model.ChatRequest{Message: "count"})
	require.NoError(t, err)

	var chunks []model.StreamChunk
	for c := range out {
		chunks = append(chunks, c)
	}
	require.NotEmpty(t, chunks)

	var deltas string
	var sawSources, sawComplete bool
	for _, c := range chunks {
		switch c.Type {
		case "delta":
			deltas += c.Content
		case "sources":
			sawSources = true
			assert.Equal(t, []string{"doc.pdf"}, c.Sources)
		case "complete":
			sawComplete = true
			assert.Equal(t, "one two three", c.Response)
			assert.Greater(t, c.TokensUsed, 0)
		}
		assert.NotEmpty(t, c.ConversationID)
	}
	assert.Equal(t, "one two three ", deltas)
	assert.True(t, sawSources)
	assert.True(t, sawComplete)

	final := chunks[len(chunks)-1]
	msg, err := f.db.GetMessage(final.AssistantMessageID, f.userID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusCompleted, msg.Status)
	assert.Equal(t, "one two three", msg.Content)
}

func TestStreamMessageWebhookFailure(t *testing.T) {
	f := newChatFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	out, err := f.svc.StreamMessage(context.Background(), f.userID, &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)

	var chunks []model.StreamChunk
	for c := range out {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 1)
	assert.Equal(t, "error", chunks[0].Type)
	assert.NotEmpty(t, chunks[0].Error)

	msg, err := f.db.GetMessage(chunks[0].AssistantMessageID, f.userID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusFailed, msg.Status)
}

func TestMessageFeedback(t *testing.T) {
	var feedback rag.Feedback
	f := newChatFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/feedback" {
			decodeBody(t, r, &feedback)
			w.WriteHeader(http.StatusOK)
			return
		}
		answerWebhook("the answer")(w, r)
	})

	resp, err := f.svc.ProcessMessage(context.Background(), f.userID, &model.ChatRequest{Message: "the question"})
	require.NoError(t, err)

	msg, err := f.svc.Feedback(context.Background(), f.userID, resp.AssistantMessage.ID, &model.MessageFeedbackRequest{
		IsHelpful: false,
		Comment:   "missed the point",
	})
	require.NoError(t, err)
	require.NotNil(t, msg.IsHelpful)
	assert.False(t, *msg.IsHelpful)
	assert.Equal(t, "missed the point", msg.FeedbackComment)

	assert.Equal(t, rag.ThumbsDown, feedback.FeedbackType)
	assert.Equal(t, "the question", feedback.Question)

	// Feedback on the user's own message is rejected.
	_, err = f.svc.Feedback(context.Background(), f.userID, resp.UserMessage.ID, &model.MessageFeedbackRequest{IsHelpful: true})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestExportConversation(t *testing.T) {
	f := newChatFixture(t, answerWebhook("exported answer"))

	resp, err := f.svc.ProcessMessage(context.Background(), f.userID, &model.ChatRequest{Message: "export me"})
	require.NoError(t, err)

	export, err := f.svc.Export(context.Background(), f.userID, resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, resp.ConversationID, export.ConversationID)
	assert.Equal(t, 2, export.TotalMessages)
	assert.Len(t, export.Messages, 2)
}

func decodeBody(t *testing.T, r *http.Request, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(r.Body).Decode(v))
}

func TestConversationOrganization(t *testing.T) {
	f := newChatFixture(t, answerWebhook("ok"))
	ctx := context.Background()

	resp, err := f.svc.ProcessMessage(ctx, f.userID, &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)
	convID := resp.ConversationID

	folder := &model.Folder{UserID: f.userID, Name: "Work"}
	require.NoError(t, f.db.CreateFolder(folder))

	moved, err := f.svc.Move(ctx, f.userID, convID, &folder.ID)
	require.NoError(t, err)
	require.NotNil(t, moved.FolderID)
	require.Equal(t, folder.ID, *moved.FolderID)

	_, err = f.svc.Move(ctx, f.userID, convID, ptr("no-such-folder"))
	require.ErrorIs(t, err, ErrInvalidInput)

	archived, err := f.svc.Archive(ctx, f.userID, convID)
	require.NoError(t, err)
	require.True(t, archived.IsArchived)

	pinned, err := f.svc.TogglePin(ctx, f.userID, convID)
	require.NoError(t, err)
	require.True(t, pinned.IsPinned)
	unpinned, err := f.svc.TogglePin(ctx, f.userID, convID)
	require.NoError(t, err)
	require.False(t, unpinned.IsPinned)

	deleted, err := f.svc.ClearAll(ctx, f.userID)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
	_, err = f.svc.History(ctx, f.userID, convID, 10, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRAGHistoryCurrentFirst(t *testing.T) {
	f := newChatFixture(t, answerWebhook("the answer"))
	ctx := context.Background()

	resp, err := f.svc.ProcessMessage(ctx, f.userID, &model.ChatRequest{Message: "the question"})
	require.NoError(t, err)

	entries, err := f.svc.RAGHistory(ctx, f.userID, resp.ConversationID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "assistant", entries[0].MessageType)
	require.Equal(t, "user", entries[1].MessageType)
	require.Equal(t, "the question", entries[1].Content)
}

func TestTemplatePermissions(t *testing.T) {
	f := newChatFixture(t, answerWebhook("ok"))
	ctx := context.Background()

	tmpl := &model.ChatTemplate{Name: "Summary", Prompt: "Summarize:", IsPublic: true, CreatedBy: &f.userID}
	require.NoError(t, f.db.CreateTemplate(tmpl))

	other := &model.User{
		Username:           "mallory",
		Email:              "mallory@example.com",
		PasswordHash:       "x",
		Role:               model.RoleUser,
		SubscriptionType:   model.SubscriptionFree,
		SubscriptionStatus: model.SubscriptionActive,
	}
	require.NoError(t, f.db.CreateUser(other))

	tmpl.Name = "Hijacked"
	_, err := f.svc.UpdateTemplate(ctx, other.ID, false, tmpl)
	require.ErrorIs(t, err, ErrForbidden)
	require.ErrorIs(t, f.svc.DeleteTemplate(ctx, other.ID, false, tmpl.ID), ErrForbidden)

	tmpl.Name = "Summary v2"
	updated, err := f.svc.UpdateTemplate(ctx, other.ID, true, tmpl)
	require.NoError(t, err)
	require.Equal(t, "Summary v2", updated.Name)

	require.NoError(t, f.svc.DeleteTemplate(ctx, f.userID, false, tmpl.ID))
	_, err = f.svc.Template(ctx, f.userID, tmpl.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFolderLifecycle(t *testing.T) {
	f := newChatFixture(t, answerWebhook("ok"))
	ctx := context.Background()

	created, err := f.svc.CreateFolder(ctx, &model.Folder{UserID: f.userID, Name: "Invoices"})
	require.NoError(t, err)

	got, err := f.svc.Folder(ctx, f.userID, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Invoices", got.Name)

	require.NoError(t, f.svc.DeleteFolder(ctx, f.userID, created.ID))
	_, err = f.svc.Folder(ctx, f.userID, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestProcessMessageTemplateRejections(t *testing.T) {
	f := newChatFixture(t, answerWebhook("ok"))
	ctx := context.Background()

	missing := int64(999999)
	_, err := f.svc.ProcessMessage(ctx, f.userID, &model.ChatRequest{
		Message:    "hello",
		TemplateID: &missing,
	})
	require.ErrorIs(t, err, ErrNotFound)

	private := &model.ChatTemplate{Name: "Internal", Prompt: "Secret:", CreatedBy: &f.userID}
	require.NoError(t, f.db.CreateTemplate(private))
	_, err = f.svc.ProcessMessage(ctx, f.userID, &model.ChatRequest{
		Message:    "hello",
		TemplateID: &private.ID,
	})
	require.ErrorIs(t, err, ErrNotFound)

	other := &model.User{
		Username:           "mallory",
		Email:              "mallory@example.com",
		PasswordHash:       "x",
		Role:               model.RoleUser,
		SubscriptionType:   model.SubscriptionFree,
		SubscriptionStatus: model.SubscriptionActive,
	}
	require.NoError(t, f.db.CreateUser(other))
	foreign := &model.ChatTemplate{Name: "Private", Prompt: "Theirs:", CreatedBy: &other.ID}
	require.NoError(t, f.db.CreateTemplate(foreign))
	_, err = f.svc.ProcessMessage(ctx, f.userID, &model.ChatRequest{
		Message:    "hello",
		TemplateID: &foreign.ID,
	})
	require.ErrorIs(t, err, ErrNotFound)

	// No conversation or message may survive a rejected template.
	convs, total, err := f.db.ListConversations(f.userID, store.ConversationFilter{})
	require.NoError(t, err)
	require.Empty(t, convs)
	require.Zero(t, total)
}

func TestTitleTruncationKeepsValidUTF8(t *testing.T) {
	f := newChatFixture(t, answerWebhook("ok"))

	resp, err := f.svc.ProcessMessage(context.Background(), f.userID, &model.ChatRequest{
		Message: strings.Repeat("é", 60),
	})
	require.NoError(t, err)

	conv, err := f.db.GetConversation(resp.ConversationID, f.userID)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(conv.Title))
	assert.True(t, strings.HasSuffix(conv.Title, "..."))
	assert.Equal(t, 53, utf8.RuneCountInString(conv.Title))
}

func ptr(s string) *string { return &s }
