package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omadligroup/ai-agent-api/internal/model"
)

func TestFolderCRUD(t *testing.T) {
	db := testDB(t)
	u := seedUser(t, db, "alice")

	f := &model.Folder{UserID: u.ID, Name: "work", Color: "#ff0000"}
	require.NoError(t, db.CreateFolder(f))
	require.NotEmpty(t, f.ID)

	dup := &model.Folder{UserID: u.ID, Name: "work"}
	require.ErrorIs(t, db.CreateFolder(dup), ErrDuplicate)

	f.Name = "projects"
	require.NoError(t, db.UpdateFolder(f))

	folders, err := db.ListFolders(u.ID)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, "projects", folders[0].Name)

	require.NoError(t, db.DeleteFolder(f.ID, u.ID))
	require.ErrorIs(t, db.DeleteFolder(f.ID, u.ID), ErrNotFound)
}

func TestFolderConversationCount(t *testing.T) {
	db := testDB(t)
	u := seedUser(t, db, "alice")

	f := &model.Folder{UserID: u.ID, Name: "work"}
	require.NoError(t, db.CreateFolder(f))

	c := &model.Conversation{UserID: u.ID, FolderID: &f.ID, Title: "planning"}
	require.NoError(t, db.CreateConversation(c))

	got, err := db.GetFolder(f.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ConversationCount)
}

func TestListConversationsOrdering(t *testing.T) {
	db := testDB(t)
	u := seedUser(t, db, "alice")

	first := seedConversation(t, db, u.ID)
	second := seedConversation(t, db, u.ID)

	first.IsPinned = true
	require.NoError(t, db.UpdateConversation(first))

	convs, total, err := db.ListConversations(u.ID, ConversationFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, convs, 2)
	// Pinned conversations sort ahead of more recently updated ones.
	assert.Equal(t, first.ID, convs[0].ID)
	assert.Equal(t, second.ID, convs[1].ID)
}

func TestListConversationsArchivedFilter(t *testing.T) {
	db := testDB(t)
	u := seedUser(t, db, "alice")

	live := seedConversation(t, db, u.ID)
	archived := seedConversation(t, db, u.ID)
	archived.IsArchived = true
	require.NoError(t, db.UpdateConversation(archived))

	no := false
	convs, _, err := db.ListConversations(u.ID, ConversationFilter{Archived: &no, Limit: 10})
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, live.ID, convs[0].ID)
}

func TestCreateMessageBumpsConversation(t *testing.T) {
	db := testDB(t)
	u := seedUser(t, db, "alice")
	c := seedConversation(t, db, u.ID)

	tokens := 10
	m := &model.ChatMessage{
		ConversationID: c.ID,
		UserID:         u.ID,
		MessageType:    model.MessageTypeUser,
		Content:        "hello",
		Status:         model.MessageStatusCompleted,
		TokensUsed:     &tokens,
	}
	require.NoError(t, db.CreateMessage(m))

	got, err := db.GetConversation(c.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalMessages)
	assert.Equal(t, 10, got.TotalTokensUsed)
}

func TestRecentHistory(t *testing.T) {
	db := testDB(t)
	u := seedUser(t, db, "alice")
	c := seedConversation(t, db, u.ID)

	for _, pair := range []struct {
		mt      model.MessageType
		content string
	}{
		{model.MessageTypeUser, "question one"},
		{model.MessageTypeAssistant, "answer one"},
		{model.MessageTypeUser, "question two"},
		{model.MessageTypeAssistant, "answer two"},
	} {
		m := &model.ChatMessage{
			ConversationID: c.ID,
			UserID:         u.ID,
			MessageType:    pair.mt,
			Content:        pair.content,
			Status:         model.MessageStatusCompleted,
		}
		require.NoError(t, db.CreateMessage(m))
		time.Sleep(time.Millisecond)
	}

	history, err := db.RecentHistory(c.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "question two", history[0].Content)
	assert.Equal(t, "answer two", history[1].Content)
}

func TestMessageFeedback(t *testing.T) {
	db := testDB(t)
	u := seedUser(t, db, "alice")
	c := seedConversation(t, db, u.ID)

	m := &model.ChatMessage{
		ConversationID: c.ID,
		UserID:         u.ID,
		MessageType:    model.MessageTypeAssistant,
		Content:        "answer",
		Status:         model.MessageStatusCompleted,
		Sources:        []string{"handbook.pdf"},
	}
	require.NoError(t, db.CreateMessage(m))

	helpful := true
	m.IsHelpful = &helpful
	m.FeedbackComment = "spot on"
	require.NoError(t, db.UpdateMessage(m))

	got, err := db.GetMessage(m.ID, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.IsHelpful)
	assert.True(t, *got.IsHelpful)
	assert.Equal(t, "spot on", got.FeedbackComment)
	assert.Equal(t, []string{"handbook.pdf"}, got.Sources)
}

func TestTemplates(t *testing.T) {
	db := testDB(t)
	u := seedUser(t, db, "alice")
	other := seedUser(t, db, "bob")

	public := &model.ChatTemplate{Name: "summary", Category: model.TemplateGeneral, Prompt: "Summarize:", IsPublic: true}
	require.NoError(t, db.CreateTemplate(public))
	require.NotZero(t, public.ID)

	private := &model.ChatTemplate{Name: "secret", Category: model.TemplateBusiness, Prompt: "Internal:", CreatedBy: &other.ID}
	require.NoError(t, db.CreateTemplate(private))

	visible, err := db.ListTemplates(u.ID, "")
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "summary", visible[0].Name)

	visible, err = db.ListTemplates(other.ID, "")
	require.NoError(t, err)
	assert.Len(t, visible, 2)

	require.NoError(t, db.IncrementTemplateUsage(public.ID))
	got, err := db.GetTemplate(public.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount)

	_, err = db.GetTemplate(private.ID, u.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConversationStats(t *testing.T) {
	db := testDB(t)
	u := seedUser(t, db, "alice")
	c := seedConversation(t, db, u.ID)

	tokens := 8
	rt := int64(120)
	for _, mt := range []model.MessageType{model.MessageTypeUser, model.MessageTypeAssistant} {
		m := &model.ChatMessage{
			ConversationID: c.ID,
			UserID:         u.ID,
			MessageType:    mt,
			Content:        "x",
			Status:         model.MessageStatusCompleted,
			TokensUsed:     &tokens,
			ResponseTimeMs: &rt,
		}
		require.NoError(t, db.CreateMessage(m))
	}

	stats, err := db.ConversationStats(u.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalConversations)
	assert.Equal(t, 2, stats.TotalMessages)
	assert.Equal(t, 16, stats.TotalTokensUsed)
	assert.Equal(t, 1, stats.ConversationsThisWeek)
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	db := testDB(t)
	u := seedUser(t, db, "alice")
	c := seedConversation(t, db, u.ID)

	m := &model.ChatMessage{
		ConversationID: c.ID,
		UserID:         u.ID,
		MessageType:    model.MessageTypeUser,
		Content:        "hello",
		Status:         model.MessageStatusCompleted,
	}
	require.NoError(t, db.CreateMessage(m))

	require.NoError(t, db.DeleteConversation(c.ID, u.ID))
	_, err := db.GetMessage(m.ID, u.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
