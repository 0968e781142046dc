package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omadligroup/ai-agent-api/internal/model"
)

// CreateFolder inserts a conversation folder.
func (d *Database) CreateFolder(f *model.Folder) error {
	if f.ID == "" {
		f.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	if f.Color == "" {
		f.Color = "#6B7280"
	}
	_, err := d.db.Exec(`
		INSERT INTO folders (id, user_id, name, description, color, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.Name, f.Description, f.Color, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create folder: %w", err)
	}
	return nil
}

// GetFolder fetches a folder owned by the user.
func (d *Database) GetFolder(id, userID string) (*model.Folder, error) {
	var f model.Folder
	err := d.db.QueryRow(`
		SELECT f.id, f.user_id, f.name, f.description, f.color,
			(SELECT COUNT(*) FROM conversations c WHERE c.folder_id = f.id),
			f.created_at, f.updated_at
		FROM folders f WHERE f.id = ? AND f.user_id = ?`, id, userID).Scan(
		&f.ID, &f.UserID, &f.Name, &f.Description, &f.Color,
		&f.ConversationCount, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return &f, nil
}

// ListFolders returns all folders for a user with conversation counts.
func (d *Database) ListFolders(userID string) ([]model.Folder, error) {
	rows, err := d.db.Query(`
		SELECT f.id, f.user_id, f.name, f.description, f.color,
			(SELECT COUNT(*) FROM conversations c WHERE c.folder_id = f.id),
			f.created_at, f.updated_at
		FROM folders f WHERE f.user_id = ? ORDER BY f.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var folders []model.Folder
	for rows.Next() {
		var f model.Folder
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.Description, &f.Color,
			&f.ConversationCount, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// UpdateFolder persists folder name, description and color.
func (d *Database) UpdateFolder(f *model.Folder) error {
	f.UpdatedAt = time.Now().UTC()
	res, err := d.db.Exec(`
		UPDATE folders SET name = ?, description = ?, color = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		f.Name, f.Description, f.Color, f.UpdatedAt, f.ID, f.UserID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update folder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFolder removes a folder. Conversations inside are kept with
// folder_id cleared by the foreign key.
func (d *Database) DeleteFolder(id, userID string) error {
	res, err := d.db.Exec(`DELETE FROM folders WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const conversationColumns = `id, user_id, folder_id, title, is_archived, is_pinned,
	total_messages, total_tokens_used, created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (*model.Conversation, error) {
	var c model.Conversation
	var archived, pinned int
	err := row.Scan(&c.ID, &c.UserID, &c.FolderID, &c.Title, &archived, &pinned,
		&c.TotalMessages, &c.TotalTokensUsed, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.IsArchived = archived != 0
	c.IsPinned = pinned != 0
	return &c, nil
}

// CreateConversation inserts a new conversation.
func (d *Database) CreateConversation(c *model.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := d.db.Exec(`
		INSERT INTO conversations (id, user_id, folder_id, title, is_archived,
			is_pinned, total_messages, total_tokens_used, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		c.ID, c.UserID, c.FolderID, c.Title, boolToInt(c.IsArchived),
		boolToInt(c.IsPinned), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation fetches a conversation owned by the user.
func (d *Database) GetConversation(id, userID string) (*model.Conversation, error) {
	row := d.db.QueryRow(`SELECT `+conversationColumns+
		` FROM conversations WHERE id = ? AND user_id = ?`, id, userID)
	return scanConversation(row)
}

// ConversationFilter narrows conversation listings.
type ConversationFilter struct {
	FolderID *string
	Archived *bool
	Pinned   *bool
	Search   string
	Limit    int
	Offset   int
}

// ListConversations returns the user's conversations, pinned first then
// most recently updated.
func (d *Database) ListConversations(userID string, f ConversationFilter) ([]model.Conversation, int, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}

	if f.FolderID != nil {
		where = append(where, "folder_id = ?")
		args = append(args, *f.FolderID)
	}
	if f.Archived != nil {
		where = append(where, "is_archived = ?")
		args = append(args, boolToInt(*f.Archived))
	}
	if f.Pinned != nil {
		where = append(where, "is_pinned = ?")
		args = append(args, boolToInt(*f.Pinned))
	}
	if f.Search != "" {
		where = append(where, "title LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}

	clause := strings.Join(where, " AND ")

	var total int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE `+clause, args...).
		Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, f.Offset)

	rows, err := d.db.Query(`SELECT `+conversationColumns+` FROM conversations
		WHERE `+clause+` ORDER BY is_pinned DESC, updated_at DESC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		convs = append(convs, *c)
	}
	return convs, total, rows.Err()
}

// UpdateConversation persists title, folder, archive and pin state.
func (d *Database) UpdateConversation(c *model.Conversation) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := d.db.Exec(`
		UPDATE conversations SET title = ?, folder_id = ?, is_archived = ?,
			is_pinned = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		c.Title, c.FolderID, boolToInt(c.IsArchived), boolToInt(c.IsPinned),
		c.UpdatedAt, c.ID, c.UserID)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (d *Database) DeleteConversation(id, userID string) error {
	res, err := d.db.Exec(`DELETE FROM conversations WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const messageColumns = `id, conversation_id, user_id, message_type, content, status,
	tokens_used, model_used, response_time_ms, error_message, is_helpful,
	feedback_comment, sources, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*model.ChatMessage, error) {
	var m model.ChatMessage
	var helpful sql.NullInt64
	var sources string
	err := row.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.MessageType, &m.Content,
		&m.Status, &m.TokensUsed, &m.ModelUsed, &m.ResponseTimeMs, &m.ErrorMessage,
		&helpful, &m.FeedbackComment, &sources, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if helpful.Valid {
		v := helpful.Int64 != 0
		m.IsHelpful = &v
	}
	m.Sources = unmarshalStrings(sources)
	return &m, nil
}

// CreateMessage inserts a chat message and bumps the parent
// conversation's counters.
func (d *Database) CreateMessage(m *model.ChatMessage) error {
	if m.ID == "" {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	var helpful any
	if m.IsHelpful != nil {
		helpful = boolToInt(*m.IsHelpful)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO chat_messages (id, conversation_id, user_id, message_type,
			content, status, tokens_used, model_used, response_time_ms,
			error_message, is_helpful, feedback_comment, sources, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.UserID, m.MessageType, m.Content, m.Status,
		m.TokensUsed, m.ModelUsed, m.ResponseTimeMs, m.ErrorMessage, helpful,
		m.FeedbackComment, marshalJSON(m.Sources, "[]"), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	tokens := 0
	if m.TokensUsed != nil {
		tokens = *m.TokensUsed
	}
	_, err = tx.Exec(`
		UPDATE conversations SET total_messages = total_messages + 1,
			total_tokens_used = total_tokens_used + ?, updated_at = ?
		WHERE id = ?`, tokens, now, m.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to update conversation counters: %w", err)
	}
	return tx.Commit()
}

// GetMessage fetches a message owned by the user.
func (d *Database) GetMessage(id, userID string) (*model.ChatMessage, error) {
	row := d.db.QueryRow(`SELECT `+messageColumns+
		` FROM chat_messages WHERE id = ? AND user_id = ?`, id, userID)
	return scanMessage(row)
}

// UpdateMessage persists content, status and generation metadata.
func (d *Database) UpdateMessage(m *model.ChatMessage) error {
	m.UpdatedAt = time.Now().UTC()

	var helpful any
	if m.IsHelpful != nil {
		helpful = boolToInt(*m.IsHelpful)
	}
	res, err := d.db.Exec(`
		UPDATE chat_messages SET content = ?, status = ?, tokens_used = ?,
			model_used = ?, response_time_ms = ?, error_message = ?,
			is_helpful = ?, feedback_comment = ?, sources = ?, updated_at = ?
		WHERE id = ?`,
		m.Content, m.Status, m.TokensUsed, m.ModelUsed, m.ResponseTimeMs,
		m.ErrorMessage, helpful, m.FeedbackComment, marshalJSON(m.Sources, "[]"),
		m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMessageTokens folds completed generation tokens into the
// conversation counters after a streamed response finishes.
func (d *Database) AddMessageTokens(conversationID string, tokens int) error {
	_, err := d.db.Exec(`
		UPDATE conversations SET total_tokens_used = total_tokens_used + ?, updated_at = ?
		WHERE id = ?`, tokens, time.Now().UTC(), conversationID)
	return err
}

// ListMessages returns a conversation's messages in chronological order.
func (d *Database) ListMessages(conversationID string, limit, offset int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(`SELECT `+messageColumns+` FROM chat_messages
		WHERE conversation_id = ? ORDER BY created_at LIMIT ? OFFSET ?`,
		conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// RecentHistory returns the last n messages of a conversation in
// chronological order, formatted for the assistant webhook.
func (d *Database) RecentHistory(conversationID string, n int) ([]model.RAGHistoryEntry, error) {
	rows, err := d.db.Query(`
		SELECT message_type, content FROM (
			SELECT message_type, content, created_at FROM chat_messages
			WHERE conversation_id = ? AND status = 'completed'
			ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var history []model.RAGHistoryEntry
	for rows.Next() {
		var e model.RAGHistoryEntry
		if err := rows.Scan(&e.MessageType, &e.Content); err != nil {
			return nil, err
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

// CreateTemplate inserts a chat template.
func (d *Database) CreateTemplate(t *model.ChatTemplate) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Category == "" {
		t.Category = model.TemplateGeneral
	}
	res, err := d.db.Exec(`
		INSERT INTO chat_templates (name, description, category, prompt, is_public,
			created_by, usage_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		t.Name, t.Description, t.Category, t.Prompt, boolToInt(t.IsPublic),
		t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	t.ID, _ = res.LastInsertId()
	return nil
}

// GetTemplate fetches a template visible to the user.
func (d *Database) GetTemplate(id int64, userID string) (*model.ChatTemplate, error) {
	var t model.ChatTemplate
	var public int
	err := d.db.QueryRow(`
		SELECT id, name, description, category, prompt, is_public, created_by,
			usage_count, created_at, updated_at
		FROM chat_templates
		WHERE id = ? AND (is_public = 1 OR created_by = ?)`, id, userID).Scan(
		&t.ID, &t.Name, &t.Description, &t.Category, &t.Prompt, &public,
		&t.CreatedBy, &t.UsageCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	t.IsPublic = public != 0
	return &t, nil
}

// ListTemplates returns public templates plus the user's own, optionally
// filtered by category.
func (d *Database) ListTemplates(userID string, category model.TemplateCategory) ([]model.ChatTemplate, error) {
	query := `
		SELECT id, name, description, category, prompt, is_public, created_by,
			usage_count, created_at, updated_at
		FROM chat_templates WHERE (is_public = 1 OR created_by = ?)`
	args := []any{userID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY usage_count DESC, name`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []model.ChatTemplate
	for rows.Next() {
		var t model.ChatTemplate
		var public int
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Category, &t.Prompt,
			&public, &t.CreatedBy, &t.UsageCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.IsPublic = public != 0
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// IncrementTemplateUsage bumps a template's usage counter.
func (d *Database) IncrementTemplateUsage(id int64) error {
	_, err := d.db.Exec(`
		UPDATE chat_templates SET usage_count = usage_count + 1, updated_at = ?
		WHERE id = ?`, time.Now().UTC(), id)
	return err
}

// ConversationStats aggregates the user's chat usage.
func (d *Database) ConversationStats(userID string, now time.Time) (*model.ConversationStats, error) {
	var s model.ConversationStats

	if err := d.db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE user_id = ?`, userID).
		Scan(&s.TotalConversations); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(tokens_used), 0) FROM chat_messages
		WHERE user_id = ?`, userID).Scan(&s.TotalMessages, &s.TotalTokensUsed); err != nil {
		return nil, err
	}
	if s.TotalConversations > 0 {
		s.AvgMessagesPerConvo = float64(s.TotalMessages) / float64(s.TotalConversations)
	}
	if err := d.db.QueryRow(`
		SELECT COALESCE(AVG(response_time_ms), 0) FROM chat_messages
		WHERE user_id = ? AND message_type = 'assistant' AND response_time_ms IS NOT NULL`,
		userID).Scan(&s.AvgResponseTimeMs); err != nil {
		return nil, err
	}

	weekAgo := now.AddDate(0, 0, -7).UTC()
	monthAgo := now.AddDate(0, -1, 0).UTC()
	if err := d.db.QueryRow(`
		SELECT COUNT(*) FROM conversations WHERE user_id = ? AND created_at >= ?`,
		userID, weekAgo).Scan(&s.ConversationsThisWeek); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`
		SELECT COUNT(*) FROM conversations WHERE user_id = ? AND created_at >= ?`,
		userID, monthAgo).Scan(&s.ConversationsThisMonth); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateTemplate persists template edits.
func (d *Database) UpdateTemplate(t *model.ChatTemplate) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := d.db.Exec(`
		UPDATE chat_templates SET name = ?, description = ?, category = ?,
			prompt = ?, is_public = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Description, t.Category, t.Prompt, boolToInt(t.IsPublic),
		t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTemplate removes a template.
func (d *Database) DeleteTemplate(id int64) error {
	res, err := d.db.Exec(`DELETE FROM chat_templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearConversations removes every conversation of the user. Messages
// go with them through the FK cascade.
func (d *Database) ClearConversations(userID string) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM conversations WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear conversations: %w", err)
	}
	return res.RowsAffected()
}

// AdminChatStats is the platform-wide chat summary.
type AdminChatStats struct {
	TotalConversations int     `json:"total_conversations"`
	TotalMessages      int     `json:"total_messages"`
	MessagesToday      int     `json:"messages_today"`
	FailedMessages     int     `json:"failed_messages"`
	TotalTokensUsed    int     `json:"total_tokens_used"`
	AvgResponseTimeMs  float64 `json:"avg_response_time_ms"`
	ActiveUsersToday   int     `json:"active_users_today"`
}

// AdminChatSummary aggregates chat usage across all users.
func (d *Database) AdminChatSummary(now time.Time) (*AdminChatStats, error) {
	var s AdminChatStats
	today := now.UTC().Format("2006-01-02")

	if err := d.db.QueryRow(`SELECT COUNT(*) FROM conversations`).
		Scan(&s.TotalConversations); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(tokens_used), 0),
			COALESCE(AVG(response_time_ms), 0)
		FROM chat_messages`).
		Scan(&s.TotalMessages, &s.TotalTokensUsed, &s.AvgResponseTimeMs); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT user_id)
		FROM chat_messages WHERE date(created_at) = ?`, today).
		Scan(&s.MessagesToday, &s.ActiveUsersToday); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`
		SELECT COUNT(*) FROM chat_messages WHERE status = 'failed'`).
		Scan(&s.FailedMessages); err != nil {
		return nil, err
	}
	return &s, nil
}
