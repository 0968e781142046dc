package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/omadligroup/ai-agent-api/internal/model"
)

const userColumns = `id, username, email, password_hash, first_name, last_name, role,
	subscription_type, subscription_status, subscription_start, subscription_end,
	phone_number, email_notifications, last_activity, total_time_spent_secs,
	created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var notifications int
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.SubscriptionType, &u.SubscriptionStatus,
		&u.SubscriptionStart, &u.SubscriptionEnd,
		&u.PhoneNumber, &notifications, &u.LastActivity, &u.TotalTimeSpentSecs,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.EmailNotifications = notifications != 0
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// CreateUser inserts a new user.
func (d *Database) CreateUser(u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	u.LastActivity = now

	_, err := d.db.Exec(`
		INSERT INTO users (id, username, email, password_hash, first_name, last_name,
			role, subscription_type, subscription_status, subscription_start,
			subscription_end, phone_number, email_notifications, last_activity,
			total_time_spent_secs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.Role, u.SubscriptionType, u.SubscriptionStatus, u.SubscriptionStart,
		u.SubscriptionEnd, u.PhoneNumber, boolToInt(u.EmailNotifications),
		u.LastActivity, u.TotalTimeSpentSecs, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (d *Database) GetUser(id string) (*model.User, error) {
	row := d.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByUsername retrieves a user by username.
func (d *Database) GetUserByUsername(username string) (*model.User, error) {
	row := d.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email.
func (d *Database) GetUserByEmail(email string) (*model.User, error) {
	row := d.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// UpdateUser persists mutable user fields.
func (d *Database) UpdateUser(u *model.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := d.db.Exec(`
		UPDATE users SET email = ?, password_hash = ?, first_name = ?, last_name = ?,
			role = ?, subscription_type = ?, subscription_status = ?,
			subscription_start = ?, subscription_end = ?, phone_number = ?,
			email_notifications = ?, last_activity = ?, total_time_spent_secs = ?,
			updated_at = ?
		WHERE id = ?`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role,
		u.SubscriptionType, u.SubscriptionStatus, u.SubscriptionStart,
		u.SubscriptionEnd, u.PhoneNumber, boolToInt(u.EmailNotifications),
		u.LastActivity, u.TotalTimeSpentSecs, u.UpdatedAt, u.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchUserActivity updates the last activity timestamp.
func (d *Database) TouchUserActivity(userID string) error {
	_, err := d.db.Exec(`UPDATE users SET last_activity = ? WHERE id = ?`,
		time.Now().UTC(), userID)
	return err
}

// DeleteUser removes a user and all owned records.
func (d *Database) DeleteUser(id string) error {
	res, err := d.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UserFilter narrows admin user listings.
type UserFilter struct {
	Search           string
	Role             model.Role
	SubscriptionType model.SubscriptionType
	Limit            int
	Offset           int
}

// ListUsers returns users matching the filter, newest first.
func (d *Database) ListUsers(f UserFilter) ([]model.User, int, error) {
	where := []string{"1=1"}
	var args []any

	if f.Search != "" {
		where = append(where, "(username LIKE ? OR email LIKE ? OR first_name LIKE ? OR last_name LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	if f.SubscriptionType != "" {
		where = append(where, "subscription_type = ?")
		args = append(args, f.SubscriptionType)
	}

	clause := strings.Join(where, " AND ")

	var total int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM users WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, f.Offset)

	rows, err := d.db.Query(`SELECT `+userColumns+` FROM users WHERE `+clause+
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

// ExpireSubscriptions marks active subscriptions past their end date as
// expired and returns the number of affected users.
func (d *Database) ExpireSubscriptions(now time.Time) (int64, error) {
	res, err := d.db.Exec(`
		UPDATE users SET subscription_status = 'expired', updated_at = ?
		WHERE subscription_status = 'active'
		  AND subscription_type != 'lifetime'
		  AND subscription_end IS NOT NULL
		  AND subscription_end < ?`,
		now.UTC(), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	return res.RowsAffected()
}

// CreateSession opens a user session.
func (d *Database) CreateSession(s *model.UserSession) error {
	if s.ID == "" {
		s.ID = uuid.Must(uuid.NewV7()).String()
	}
	s.SessionStart = time.Now().UTC()
	_, err := d.db.Exec(`
		INSERT INTO user_sessions (id, user_id, session_start, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.SessionStart, s.IPAddress, s.UserAgent)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// EndOpenSessions closes open sessions for a user and folds their
// duration into total_time_spent_secs.
func (d *Database) EndOpenSessions(userID string, now time.Time) error {
	rows, err := d.db.Query(`
		SELECT id, session_start FROM user_sessions
		WHERE user_id = ? AND session_end IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("failed to find open sessions: %w", err)
	}
	defer rows.Close()

	type open struct {
		id    string
		start time.Time
	}
	var opens []open
	for rows.Next() {
		var o open
		if err := rows.Scan(&o.id, &o.start); err != nil {
			return err
		}
		opens = append(opens, o)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, o := range opens {
		if _, err := d.db.Exec(`UPDATE user_sessions SET session_end = ? WHERE id = ?`,
			now.UTC(), o.id); err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}
		secs := int64(now.Sub(o.start).Seconds())
		if secs < 0 {
			secs = 0
		}
		if _, err := d.db.Exec(`
			UPDATE users SET total_time_spent_secs = total_time_spent_secs + ? WHERE id = ?`,
			secs, userID); err != nil {
			return fmt.Errorf("failed to update time spent: %w", err)
		}
	}
	return nil
}

// ListSessions returns a user's sessions, newest first.
func (d *Database) ListSessions(userID string, limit int) ([]model.UserSession, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(`
		SELECT id, user_id, session_start, session_end, ip_address, user_agent,
			pages_visited, chat_messages_sent, files_uploaded
		FROM user_sessions WHERE user_id = ?
		ORDER BY session_start DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.UserSession
	for rows.Next() {
		var s model.UserSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.SessionStart, &s.SessionEnd,
			&s.IPAddress, &s.UserAgent, &s.PagesVisited, &s.ChatMessagesSent,
			&s.FilesUploaded); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// BumpSessionCounter increments one activity counter on the user's open
// session, if any. Column must be one of the known counters.
func (d *Database) BumpSessionCounter(userID, column string) error {
	switch column {
	case "pages_visited", "chat_messages_sent", "files_uploaded":
	default:
		return fmt.Errorf("unknown session counter %q", column)
	}
	_, err := d.db.Exec(`
		UPDATE user_sessions SET `+column+` = `+column+` + 1
		WHERE user_id = ? AND session_end IS NULL`, userID)
	return err
}

// GetOrCreateClientInfo fetches the client info row for a user, creating
// an empty one if absent.
func (d *Database) GetOrCreateClientInfo(userID string) (*model.ClientInfo, error) {
	info, err := d.GetClientInfo(userID)
	if err == nil {
		return info, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	now := time.Now().UTC()
	info = &model.ClientInfo{
		ID:            uuid.Must(uuid.NewV7()).String(),
		UserID:        userID,
		MainServices:  []string{},
		SoftwareTools: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err = d.db.Exec(`
		INSERT INTO client_info (id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		info.ID, info.UserID, info.CreatedAt, info.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create client info: %w", err)
	}
	return info, nil
}

// GetClientInfo fetches the client info row for a user.
func (d *Database) GetClientInfo(userID string) (*model.ClientInfo, error) {
	var info model.ClientInfo
	var services, tools string
	var completed int
	err := d.db.QueryRow(`
		SELECT id, user_id, company_name, owner_name, state, city, year_started,
			trucks_count, monthly_revenue, gross_profit_margin, main_services,
			pricing_model, software_tools, current_challenges, is_completed,
			created_at, updated_at
		FROM client_info WHERE user_id = ?`, userID).Scan(
		&info.ID, &info.UserID, &info.CompanyName, &info.OwnerName, &info.State,
		&info.City, &info.YearStarted, &info.TrucksCount, &info.MonthlyRevenue,
		&info.GrossProfitMargin, &services, &info.PricingModel, &tools,
		&info.CurrentChallenges, &completed, &info.CreatedAt, &info.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get client info: %w", err)
	}
	info.MainServices = unmarshalStrings(services)
	info.SoftwareTools = unmarshalStrings(tools)
	info.IsCompleted = completed != 0
	return &info, nil
}

// UpdateClientInfo persists client info fields and marks it completed.
func (d *Database) UpdateClientInfo(info *model.ClientInfo) error {
	info.UpdatedAt = time.Now().UTC()
	info.IsCompleted = true
	res, err := d.db.Exec(`
		UPDATE client_info SET company_name = ?, owner_name = ?, state = ?, city = ?,
			year_started = ?, trucks_count = ?, monthly_revenue = ?,
			gross_profit_margin = ?, main_services = ?, pricing_model = ?,
			software_tools = ?, current_challenges = ?, is_completed = 1,
			updated_at = ?
		WHERE user_id = ?`,
		info.CompanyName, info.OwnerName, info.State, info.City, info.YearStarted,
		info.TrucksCount, info.MonthlyRevenue, info.GrossProfitMargin,
		marshalJSON(info.MainServices, "[]"), info.PricingModel,
		marshalJSON(info.SoftwareTools, "[]"), info.CurrentChallenges,
		info.UpdatedAt, info.UserID)
	if err != nil {
		return fmt.Errorf("failed to update client info: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UserStats aggregates a user's footprint for the stats endpoint.
func (d *Database) UserStats(userID string, now time.Time) (*model.UserStats, error) {
	u, err := d.GetUser(userID)
	if err != nil {
		return nil, err
	}

	stats := &model.UserStats{
		SubscriptionType:   u.SubscriptionType,
		SubscriptionActive: u.IsSubscriptionActive(now),
		DaysUntilExpiry:    u.DaysUntilExpiry(now),
		MemberSince:        u.CreatedAt,
	}

	if err := d.db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE user_id = ?`, userID).
		Scan(&stats.TotalConversations); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM chat_messages WHERE user_id = ?`, userID).
		Scan(&stats.TotalMessages); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM files WHERE user_id = ? AND deleted_at IS NULL`, userID).
		Scan(&stats.TotalFiles); err != nil {
		return nil, err
	}
	return stats, nil
}

// UserListStatsRow is one row of the admin users list with usage counts.
type UserListStatsRow struct {
	ID                 string                 `json:"id"`
	Username           string                 `json:"username"`
	Email              string                 `json:"email"`
	Role               model.Role             `json:"role"`
	SubscriptionType   model.SubscriptionType `json:"subscription_type"`
	SubscriptionStatus string                 `json:"subscription_status"`
	TotalConversations int                    `json:"total_conversations"`
	TotalMessages      int                    `json:"total_messages"`
	TotalFiles         int                    `json:"total_files"`
	LastActivity       time.Time              `json:"last_activity"`
	CreatedAt          time.Time              `json:"created_at"`
}

// UsersListStats returns every user with their content counts attached,
// most recently active first.
func (d *Database) UsersListStats(limit, offset int) ([]UserListStatsRow, int, error) {
	var total int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(`
		SELECT u.id, u.username, u.email, u.role, u.subscription_type,
			u.subscription_status, u.last_activity, u.created_at,
			(SELECT COUNT(*) FROM conversations c WHERE c.user_id = u.id),
			(SELECT COUNT(*) FROM chat_messages m WHERE m.user_id = u.id),
			(SELECT COUNT(*) FROM files f WHERE f.user_id = u.id AND f.deleted_at IS NULL)
		FROM users u
		ORDER BY u.last_activity DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list user stats: %w", err)
	}
	defer rows.Close()

	var out []UserListStatsRow
	for rows.Next() {
		var row UserListStatsRow
		if err := rows.Scan(&row.ID, &row.Username, &row.Email, &row.Role,
			&row.SubscriptionType, &row.SubscriptionStatus, &row.LastActivity,
			&row.CreatedAt, &row.TotalConversations, &row.TotalMessages,
			&row.TotalFiles); err != nil {
			return nil, 0, fmt.Errorf("failed to scan user stats: %w", err)
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}
