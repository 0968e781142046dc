package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omadligroup/ai-agent-api/internal/model"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *Database, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username:           username,
		Email:              username + "@example.com",
		PasswordHash:       "x",
		Role:               model.RoleUser,
		SubscriptionType:   model.SubscriptionFree,
		SubscriptionStatus: model.SubscriptionActive,
	}
	require.NoError(t, db.CreateUser(u))
	return u
}

func seedConversation(t *testing.T, db *Database, userID string) *model.Conversation {
	t.Helper()
	c := &model.Conversation{UserID: userID, Title: "test conversation"}
	require.NoError(t, db.CreateConversation(c))
	return c
}

func seedFile(t *testing.T, db *Database, userID, name string) *model.File {
	t.Helper()
	f := &model.File{
		UserID:        userID,
		OriginalName:  name,
		FileName:      name,
		FileSize:      42,
		FileType:      "text/plain",
		FileExtension: ".txt",
		Category:      model.CategoryDocument,
		ObjectKey:     userID + "/" + name,
		Status:        model.FileCompleted,
	}
	require.NoError(t, db.CreateFile(f))
	return f
}

func TestNewCreatesSchema(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Ping())

	// A fresh database accepts writes to every table touched by the API.
	u := seedUser(t, db, "alice")
	require.NotEmpty(t, u.ID)
	require.False(t, u.CreatedAt.IsZero())
}

func TestExpireSubscriptionsSkipsLifetime(t *testing.T) {
	db := testDB(t)
	now := time.Now().UTC()
	past := now.Add(-24 * time.Hour)

	expired := seedUser(t, db, "expired")
	expired.SubscriptionType = model.SubscriptionBasic
	expired.SubscriptionEnd = &past
	require.NoError(t, db.UpdateUser(expired))

	lifetime := seedUser(t, db, "lifetime")
	lifetime.SubscriptionType = model.SubscriptionLifetime
	require.NoError(t, db.UpdateUser(lifetime))

	n, err := db.ExpireSubscriptions(now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := db.GetUser(expired.ID)
	require.NoError(t, err)
	require.Equal(t, model.SubscriptionExpired, got.SubscriptionStatus)

	got, err = db.GetUser(lifetime.ID)
	require.NoError(t, err)
	require.Equal(t, model.SubscriptionActive, got.SubscriptionStatus)
}
