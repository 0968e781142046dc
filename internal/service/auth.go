// Package service provides business logic for the platform API.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/omadligroup/ai-agent-api/internal/middleware"
	"github.com/omadligroup/ai-agent-api/internal/model"
	"github.com/omadligroup/ai-agent-api/internal/store"
	"github.com/omadligroup/ai-agent-api/pkg/logger"
)

// Common service errors mapped to HTTP statuses by the handlers.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("invalid credentials")
	ErrForbidden    = errors.New("forbidden")
)

// EventPublisher publishes analytics events to the pipeline.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.AnalyticsEvent) (uint64, error)
}

// AuthService handles accounts, sessions and subscriptions.
type AuthService struct {
	db         *store.Database
	events     EventPublisher
	logger     *logger.Logger
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthService creates a new auth service.
func NewAuthService(db *store.Database, events EventPublisher, log *logger.Logger, jwtSecret string, accessTTL, refreshTTL time.Duration) *AuthService {
	return &AuthService{
		db:         db,
		events:     events,
		logger:     log,
		jwtSecret:  jwtSecret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Register creates an account and opens the first session.
func (s *AuthService) Register(ctx context.Context, req *model.RegisterRequest, ipAddress, userAgent string) (*model.AuthResponse, error) {
	if err := middleware.ValidateUsername(req.Username); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if err := middleware.ValidateEmail(req.Email); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if err := middleware.ValidatePassword(req.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if req.Password != req.PasswordConfirm {
		return nil, fmt.Errorf("%w: passwords do not match", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username:           req.Username,
		Email:              req.Email,
		PasswordHash:       string(hash),
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Role:               model.RoleUser,
		SubscriptionType:   model.SubscriptionFree,
		SubscriptionStatus: model.SubscriptionActive,
		EmailNotifications: true,
	}
	if err := s.db.CreateUser(user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: username or email taken", ErrConflict)
		}
		return nil, err
	}

	session := &model.UserSession{UserID: user.ID, IPAddress: ipAddress, UserAgent: userAgent}
	if err := s.db.CreateSession(session); err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(user, session.ID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventUserRegister, "user_registered", user.ID, session.ID, ipAddress, userAgent, nil)
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))

	return &model.AuthResponse{
		Message:   "registration successful",
		User:      user,
		Tokens:    tokens,
		SessionID: session.ID,
	}, nil
}

// Login authenticates a user and opens a session.
func (s *AuthService) Login(ctx context.Context, req *model.LoginRequest, ipAddress, userAgent string) (*model.AuthResponse, error) {
	user, err := s.db.GetUserByUsername(req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Also accept the email address in the username field.
			user, err = s.db.GetUserByEmail(req.Username)
		}
		if err != nil {
			return nil, ErrUnauthorized
		}
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrUnauthorized
	}

	session := &model.UserSession{UserID: user.ID, IPAddress: ipAddress, UserAgent: userAgent}
	if err := s.db.CreateSession(session); err != nil {
		return nil, err
	}
	if err := s.db.TouchUserActivity(user.ID); err != nil {
		s.logger.Warn("failed to touch user activity", zap.Error(err))
	}

	tokens, err := s.issueTokens(user, session.ID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventUserLogin, "user_logged_in", user.ID, session.ID, ipAddress, userAgent, nil)

	return &model.AuthResponse{
		Message:   "login successful",
		User:      user,
		Tokens:    tokens,
		SessionID: session.ID,
	}, nil
}

// Refresh exchanges a refresh token for a fresh token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	claims, err := middleware.ParseToken(s.jwtSecret, refreshToken)
	if err != nil || claims.TokenType != middleware.TokenRefresh {
		return nil, ErrUnauthorized
	}

	user, err := s.db.GetUser(claims.Subject)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return s.issueTokens(user, claims.SessionID)
}

// Logout closes the user's open sessions.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string) error {
	if err := s.db.EndOpenSessions(userID, time.Now()); err != nil {
		return err
	}
	s.publish(ctx, model.EventUserLogout, "user_logged_out", userID, sessionID, "", "", nil)
	return nil
}

func (s *AuthService) issueTokens(user *model.User, sessionID string) (*model.TokenPair, error) {
	access, err := middleware.IssueToken(s.jwtSecret, user, middleware.TokenAccess, sessionID, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := middleware.IssueToken(s.jwtSecret, user, middleware.TokenRefresh, sessionID, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return &model.TokenPair{Access: access, Refresh: refresh}, nil
}

// Profile returns the user's account.
func (s *AuthService) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.db.GetUser(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile applies partial profile changes.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req *model.UpdateProfileRequest) (*model.User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = *req.PhoneNumber
	}
	if req.EmailNotifications != nil {
		user.EmailNotifications = *req.EmailNotifications
	}

	if err := s.db.UpdateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword verifies the old password and sets a new one.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req *model.ChangePasswordRequest) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)) != nil {
		return fmt.Errorf("%w: old password is incorrect", ErrUnauthorized)
	}
	if err := middleware.ValidatePassword(req.NewPassword); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	return s.db.UpdateUser(user)
}

// planPrices is the bookkeeping amount recorded per paid plan. There
// is no payment gateway; records exist for revenue reporting only.
var planPrices = map[model.SubscriptionType]float64{
	model.SubscriptionBasic:    9.99,
	model.SubscriptionPremium:  19.99,
	model.SubscriptionLifetime: 199.99,
}

// UpgradeSubscription changes a user's plan. Lifetime plans clear the
// end date; other plans extend by the requested duration.
func (s *AuthService) UpgradeSubscription(ctx context.Context, userID string, req *model.UpgradeSubscriptionRequest) (*model.User, error) {
	if !model.ValidSubscriptionType(req.SubscriptionType) {
		return nil, fmt.Errorf("%w: unknown subscription type", ErrInvalidInput)
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user.SubscriptionType = req.SubscriptionType
	user.SubscriptionStatus = model.SubscriptionActive
	user.SubscriptionStart = &now

	if req.SubscriptionType == model.SubscriptionLifetime {
		user.SubscriptionEnd = nil
	} else {
		days := req.DurationDays
		if days <= 0 {
			days = 30
		}
		end := now.AddDate(0, 0, days)
		user.SubscriptionEnd = &end
	}

	if err := s.db.UpdateUser(user); err != nil {
		return nil, err
	}

	if price, ok := planPrices[req.SubscriptionType]; ok {
		paymentType := model.PaymentUpgrade
		if req.SubscriptionType == model.SubscriptionLifetime {
			paymentType = model.PaymentLifetime
		}
		payment := &model.PaymentRecord{
			UserID:           userID,
			Amount:           price,
			PaymentType:      paymentType,
			Status:           model.PaymentCompleted,
			SubscriptionType: string(req.SubscriptionType),
			TransactionID:    uuid.Must(uuid.NewV7()).String(),
		}
		if user.SubscriptionEnd != nil {
			days := req.DurationDays
			if days <= 0 {
				days = 30
			}
			payment.SubscriptionDurationDays = &days
		}
		if err := s.db.CreatePayment(payment); err != nil {
			s.logger.Warn("failed to record payment", zap.Error(err))
		}
	}

	s.publish(ctx, model.EventSubscriptionUpgrade, "subscription_upgraded", userID, "", "", "",
		map[string]any{"subscription_type": string(req.SubscriptionType)})
	s.logger.Info("subscription upgraded",
		zap.String("user_id", userID),
		zap.String("subscription_type", string(req.SubscriptionType)))
	return user, nil
}

// CancelSubscription marks the subscription cancelled. Access persists
// until the paid period ends.
func (s *AuthService) CancelSubscription(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.SubscriptionStatus = model.SubscriptionCancelled
	if err := s.db.UpdateUser(user); err != nil {
		return nil, err
	}
	s.publish(ctx, model.EventSubscriptionCancel, "subscription_cancelled", userID, "", "", "", nil)
	return user, nil
}

// ClientInfo returns the user's business profile, creating it on first
// access.
func (s *AuthService) ClientInfo(ctx context.Context, userID string) (*model.ClientInfo, error) {
	return s.db.GetOrCreateClientInfo(userID)
}

// ClientInfoStatus reports onboarding progress without creating a
// profile as a side effect.
func (s *AuthService) ClientInfoStatus(ctx context.Context, userID string) (*model.ClientInfoStatus, error) {
	info, err := s.db.GetClientInfo(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &model.ClientInfoStatus{}, nil
		}
		return nil, err
	}
	return &model.ClientInfoStatus{
		HasClientInfo: true,
		IsCompleted:   info.IsCompleted,
	}, nil
}

// Payments lists the user's payment history.
func (s *AuthService) Payments(ctx context.Context, userID string, limit int) ([]model.PaymentRecord, error) {
	payments, err := s.db.ListPayments(userID, limit)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []model.PaymentRecord{}
	}
	return payments, nil
}

// UpdateClientInfo saves the business profile and marks onboarding done.
func (s *AuthService) UpdateClientInfo(ctx context.Context, info *model.ClientInfo) (*model.ClientInfo, error) {
	if _, err := s.db.GetOrCreateClientInfo(info.UserID); err != nil {
		return nil, err
	}
	if err := s.db.UpdateClientInfo(info); err != nil {
		return nil, err
	}
	return s.db.GetClientInfo(info.UserID)
}

// Stats returns the user's usage summary.
func (s *AuthService) Stats(ctx context.Context, userID string) (*model.UserStats, error) {
	stats, err := s.db.UserStats(userID, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return stats, nil
}

// Sessions lists the user's recent sessions.
func (s *AuthService) Sessions(ctx context.Context, userID string, limit int) ([]model.UserSession, error) {
	return s.db.ListSessions(userID, limit)
}

// ListUsers is the admin user listing.
func (s *AuthService) ListUsers(ctx context.Context, f store.UserFilter) (*model.ListUsersResponse, error) {
	users, total, err := s.db.ListUsers(f)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []model.User{}
	}
	return &model.ListUsersResponse{
		Users:   users,
		Total:   total,
		HasMore: f.Offset+len(users) < total,
	}, nil
}

// DeleteUser removes an account and all owned data.
func (s *AuthService) DeleteUser(ctx context.Context, userID string) error {
	if err := s.db.DeleteUser(userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// publish emits an analytics event, degrading to a warning when the
// pipeline is unavailable.
func (s *AuthService) publish(ctx context.Context, eventType model.EventType, name, userID, sessionID, ipAddress, userAgent string, props map[string]any) {
	if s.events == nil {
		return
	}
	event := &model.AnalyticsEvent{
		EventType:  eventType,
		EventName:  name,
		SessionID:  sessionID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Properties: props,
		CreatedAt:  time.Now().UTC(),
	}
	if userID != "" {
		event.UserID = &userID
	}
	if _, err := s.events.PublishEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish analytics event",
			zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
