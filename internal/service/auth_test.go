package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omadligroup/ai-agent-api/internal/middleware"
	"github.com/omadligroup/ai-agent-api/internal/model"
	"github.com/omadligroup/ai-agent-api/internal/store"
	"github.com/omadligroup/ai-agent-api/pkg/logger"
)

const testSecret = "test-secret"

// capturePublisher records published events in memory.
type capturePublisher struct {
	mu     sync.Mutex
	events []*model.AnalyticsEvent
}

func (p *capturePublisher) PublishEvent(_ context.Context, e *model.AnalyticsEvent) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return uint64(len(p.events)), nil
}

func (p *capturePublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.EventType
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

func testStore(t *testing.T) *store.Database {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	return log
}

func newAuthService(t *testing.T) (*AuthService, *capturePublisher) {
	t.Helper()
	pub := &capturePublisher{}
	svc := NewAuthService(testStore(t), pub, testLogger(t), testSecret, time.Hour, 24*time.Hour)
	return svc, pub
}

func registerReq(username string) *model.RegisterRequest {
	return &model.RegisterRequest{
		Username:        username,
		Email:           username + "@example.com",
		Password:        "hunter22!",
		PasswordConfirm: "hunter22!",
		FirstName:       "Test",
	}
}

func TestRegister(t *testing.T) {
	svc, pub := newAuthService(t)

	resp, err := svc.Register(context.Background(), registerReq("alice"), "127.0.0.1", "go-test")
	require.NoError(t, err)
	require.NotNil(t, resp.User)
	require.NotNil(t, resp.Tokens)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, model.RoleUser, resp.User.Role)
	assert.Equal(t, model.SubscriptionFree, resp.User.SubscriptionType)

	claims, err := middleware.ParseToken(testSecret, resp.Tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.Subject)
	assert.Equal(t, middleware.TokenAccess, claims.TokenType)

	assert.Contains(t, pub.types(), model.EventUserRegister)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuthService(t)

	bad := registerReq("alice")
	bad.PasswordConfirm = "different1"
	_, err := svc.Register(context.Background(), bad, "", "")
	require.ErrorIs(t, err, ErrInvalidInput)

	bad = registerReq("a")
	_, err = svc.Register(context.Background(), bad, "", "")
	require.ErrorIs(t, err, ErrInvalidInput)

	bad = registerReq("alice")
	bad.Email = "nope"
	_, err = svc.Register(context.Background(), bad, "", "")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegisterDuplicate(t *testing.T) {
	svc, _ := newAuthService(t)

	_, err := svc.Register(context.Background(), registerReq("alice"), "", "")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), registerReq("alice"), "", "")
	require.ErrorIs(t, err, ErrConflict)
}

func TestLogin(t *testing.T) {
	svc, pub := newAuthService(t)
	_, err := svc.Register(context.Background(), registerReq("alice"), "", "")
	require.NoError(t, err)

	resp, err := svc.Login(context.Background(), &model.LoginRequest{Username: "alice", Password: "hunter22!"}, "", "")
	require.NoError(t, err)
	assert.NotNil(t, resp.Tokens)
	assert.Contains(t, pub.types(), model.EventUserLogin)

	// Email works in place of the username.
	resp, err = svc.Login(context.Background(), &model.LoginRequest{Username: "alice@example.com", Password: "hunter22!"}, "", "")
	require.NoError(t, err)
	assert.NotNil(t, resp.Tokens)
}

func TestLoginRejections(t *testing.T) {
	svc, _ := newAuthService(t)
	_, err := svc.Register(context.Background(), registerReq("alice"), "", "")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), &model.LoginRequest{Username: "alice", Password: "wrongpass1"}, "", "")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Login(context.Background(), &model.LoginRequest{Username: "nobody", Password: "hunter22!"}, "", "")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefresh(t *testing.T) {
	svc, _ := newAuthService(t)
	reg, err := svc.Register(context.Background(), registerReq("alice"), "", "")
	require.NoError(t, err)

	tokens, err := svc.Refresh(context.Background(), reg.Tokens.Refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.Access)

	// Access tokens are not accepted at the refresh endpoint.
	_, err = svc.Refresh(context.Background(), reg.Tokens.Access)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestChangePassword(t *testing.T) {
	svc, _ := newAuthService(t)
	reg, err := svc.Register(context.Background(), registerReq("alice"), "", "")
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), reg.User.ID, &model.ChangePasswordRequest{
		OldPassword: "hunter22!",
		NewPassword: "newsecret99",
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), &model.LoginRequest{Username: "alice", Password: "hunter22!"}, "", "")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Login(context.Background(), &model.LoginRequest{Username: "alice", Password: "newsecret99"}, "", "")
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), reg.User.ID, &model.ChangePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "whatever99",
	})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newAuthService(t)
	reg, err := svc.Register(context.Background(), registerReq("alice"), "", "")
	require.NoError(t, err)

	first := "Alicia"
	notify := false
	user, err := svc.UpdateProfile(context.Background(), reg.User.ID, &model.UpdateProfileRequest{
		FirstName:          &first,
		EmailNotifications: &notify,
	})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", user.FirstName)
	assert.False(t, user.EmailNotifications)
	// Untouched fields survive.
	assert.Equal(t, reg.User.LastName, user.LastName)
}

func TestUpgradeAndCancelSubscription(t *testing.T) {
	svc, pub := newAuthService(t)
	reg, err := svc.Register(context.Background(), registerReq("alice"), "", "")
	require.NoError(t, err)

	user, err := svc.UpgradeSubscription(context.Background(), reg.User.ID, &model.UpgradeSubscriptionRequest{
		SubscriptionType: model.SubscriptionPremium,
		DurationDays:     30,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionPremium, user.SubscriptionType)
	assert.Equal(t, model.SubscriptionActive, user.SubscriptionStatus)
	require.NotNil(t, user.SubscriptionEnd)
	assert.Contains(t, pub.types(), model.EventSubscriptionUpgrade)

	user, err = svc.UpgradeSubscription(context.Background(), reg.User.ID, &model.UpgradeSubscriptionRequest{
		SubscriptionType: model.SubscriptionLifetime,
	})
	require.NoError(t, err)
	assert.Nil(t, user.SubscriptionEnd)

	user, err = svc.CancelSubscription(context.Background(), reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionCancelled, user.SubscriptionStatus)

	_, err = svc.UpgradeSubscription(context.Background(), reg.User.ID, &model.UpgradeSubscriptionRequest{
		SubscriptionType: "gold",
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestLogoutClosesSessions(t *testing.T) {
	svc, _ := newAuthService(t)
	reg, err := svc.Register(context.Background(), registerReq("alice"), "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), reg.User.ID, reg.SessionID))

	sessions, err := svc.Sessions(context.Background(), reg.User.ID, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.NotNil(t, sessions[0].SessionEnd)
}

func TestClientInfoStatus(t *testing.T) {
	svc, _ := newAuthService(t)
	reg, err := svc.Register(context.Background(), registerReq("alice"), "", "")
	require.NoError(t, err)

	status, err := svc.ClientInfoStatus(context.Background(), reg.User.ID)
	require.NoError(t, err)
	assert.False(t, status.HasClientInfo)
	assert.False(t, status.IsCompleted)

	_, err = svc.UpdateClientInfo(context.Background(), &model.ClientInfo{
		UserID:      reg.User.ID,
		CompanyName: "Omadli Logistics",
		OwnerName:   "Alice",
	})
	require.NoError(t, err)

	status, err = svc.ClientInfoStatus(context.Background(), reg.User.ID)
	require.NoError(t, err)
	assert.True(t, status.HasClientInfo)
	assert.True(t, status.IsCompleted)
}

func TestUpgradeRecordsPayment(t *testing.T) {
	svc, _ := newAuthService(t)
	reg, err := svc.Register(context.Background(), registerReq("alice"), "", "")
	require.NoError(t, err)

	_, err = svc.UpgradeSubscription(context.Background(), reg.User.ID, &model.UpgradeSubscriptionRequest{
		SubscriptionType: model.SubscriptionPremium,
		DurationDays:     30,
	})
	require.NoError(t, err)

	payments, err := svc.Payments(context.Background(), reg.User.ID, 10)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, model.PaymentUpgrade, payments[0].PaymentType)
	assert.Equal(t, model.PaymentCompleted, payments[0].Status)
	assert.InDelta(t, 19.99, payments[0].Amount, 1e-9)
	assert.NotEmpty(t, payments[0].TransactionID)
}
