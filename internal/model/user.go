// Package model defines data structures for the AI agent platform.
package model

import (
	"time"
)

// Role represents a user role.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// SubscriptionType represents the subscription plan.
type SubscriptionType string

const (
	SubscriptionFree     SubscriptionType = "free"
	SubscriptionBasic    SubscriptionType = "basic"
	SubscriptionPremium  SubscriptionType = "premium"
	SubscriptionLifetime SubscriptionType = "lifetime"
)

// ValidSubscriptionType reports whether t is a known plan.
func ValidSubscriptionType(t SubscriptionType) bool {
	switch t {
	case SubscriptionFree, SubscriptionBasic, SubscriptionPremium, SubscriptionLifetime:
		return true
	}
	return false
}

// SubscriptionStatus represents the subscription lifecycle state.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPending   SubscriptionStatus = "pending"
)

// User represents a platform account.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`

	Role Role `json:"role"`

	SubscriptionType   SubscriptionType   `json:"subscription_type"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	SubscriptionStart  *time.Time         `json:"subscription_start_date,omitempty"`
	SubscriptionEnd    *time.Time         `json:"subscription_end_date,omitempty"`

	PhoneNumber        string `json:"phone_number,omitempty"`
	EmailNotifications bool   `json:"email_notifications"`

	LastActivity       time.Time `json:"last_activity"`
	TotalTimeSpentSecs int64     `json:"total_time_spent_secs"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName returns first and last name joined with a space.
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsSubscriptionActive reports whether the subscription is currently usable.
func (u *User) IsSubscriptionActive(now time.Time) bool {
	if u.SubscriptionStatus != SubscriptionActive {
		return false
	}
	if u.SubscriptionType == SubscriptionLifetime {
		return true
	}
	if u.SubscriptionEnd != nil {
		return !now.After(*u.SubscriptionEnd)
	}
	// No end date set, consider it active.
	return true
}

// DaysUntilExpiry returns the whole days until the subscription expires,
// or nil for lifetime plans and plans without an end date.
func (u *User) DaysUntilExpiry(now time.Time) *int {
	if u.SubscriptionType == SubscriptionLifetime || u.SubscriptionEnd == nil {
		return nil
	}
	days := int(u.SubscriptionEnd.Sub(now).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return &days
}

// RegisterRequest is the request to create an account.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
}

// LoginRequest is the request to authenticate.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenPair carries the issued JWTs.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// AuthResponse is returned from register and login.
type AuthResponse struct {
	Message   string     `json:"message"`
	User      *User      `json:"user"`
	Tokens    *TokenPair `json:"tokens"`
	SessionID string     `json:"session_id,omitempty"`
}

// RefreshRequest is the request to exchange a refresh token.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// UpdateProfileRequest is the request to update the own profile.
type UpdateProfileRequest struct {
	FirstName          *string `json:"first_name,omitempty"`
	LastName           *string `json:"last_name,omitempty"`
	PhoneNumber        *string `json:"phone_number,omitempty"`
	EmailNotifications *bool   `json:"email_notifications,omitempty"`
}

// ChangePasswordRequest is the request to change the password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// UpgradeSubscriptionRequest is the admin request to change a user's plan.
type UpgradeSubscriptionRequest struct {
	SubscriptionType SubscriptionType `json:"subscription_type"`
	DurationDays     int              `json:"duration_days,omitempty"`
}

// UserSession tracks one authenticated session.
type UserSession struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	SessionStart     time.Time  `json:"session_start"`
	SessionEnd       *time.Time `json:"session_end,omitempty"`
	IPAddress        string     `json:"ip_address,omitempty"`
	UserAgent        string     `json:"user_agent,omitempty"`
	PagesVisited     int        `json:"pages_visited"`
	ChatMessagesSent int        `json:"chat_messages_sent"`
	FilesUploaded    int        `json:"files_uploaded"`
}

// ClientInfo holds business onboarding data for a user.
type ClientInfo struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	CompanyName       string    `json:"company_name,omitempty"`
	OwnerName         string    `json:"owner_name,omitempty"`
	State             string    `json:"state,omitempty"`
	City              string    `json:"city,omitempty"`
	YearStarted       *int      `json:"year_started,omitempty"`
	TrucksCount       *int      `json:"trucks_count,omitempty"`
	MonthlyRevenue    string    `json:"monthly_revenue,omitempty"`
	GrossProfitMargin *float64  `json:"gross_profit_margin,omitempty"`
	MainServices      []string  `json:"main_services"`
	PricingModel      string    `json:"pricing_model,omitempty"`
	SoftwareTools     []string  `json:"software_tools"`
	CurrentChallenges string    `json:"current_challenges,omitempty"`
	IsCompleted       bool      `json:"is_completed"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ClientInfoStatus reports onboarding progress.
type ClientInfoStatus struct {
	HasClientInfo bool `json:"has_client_info"`
	IsCompleted   bool `json:"is_completed"`
}

// UserStats summarizes a user's footprint on the platform.
type UserStats struct {
	TotalConversations int              `json:"total_conversations"`
	TotalMessages      int              `json:"total_messages"`
	TotalFiles         int              `json:"total_files"`
	SubscriptionType   SubscriptionType `json:"subscription_type"`
	SubscriptionActive bool             `json:"subscription_active"`
	DaysUntilExpiry    *int             `json:"days_until_expiry"`
	MemberSince        time.Time        `json:"member_since"`
}

// ListUsersResponse is the admin user listing.
type ListUsersResponse struct {
	Users   []User `json:"users"`
	Total   int    `json:"total"`
	HasMore bool   `json:"has_more"`
}
