package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsSubscriptionActive(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	cases := []struct {
		name string
		user User
		want bool
	}{
		{"active no end date", User{SubscriptionStatus: SubscriptionActive, SubscriptionType: SubscriptionBasic}, true},
		{"active future end", User{SubscriptionStatus: SubscriptionActive, SubscriptionType: SubscriptionBasic, SubscriptionEnd: &future}, true},
		{"active past end", User{SubscriptionStatus: SubscriptionActive, SubscriptionType: SubscriptionBasic, SubscriptionEnd: &past}, false},
		{"lifetime ignores end", User{SubscriptionStatus: SubscriptionActive, SubscriptionType: SubscriptionLifetime, SubscriptionEnd: &past}, true},
		{"expired status", User{SubscriptionStatus: SubscriptionExpired, SubscriptionType: SubscriptionBasic}, false},
		{"cancelled status", User{SubscriptionStatus: SubscriptionCancelled, SubscriptionType: SubscriptionPremium, SubscriptionEnd: &future}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.user.IsSubscriptionActive(now))
		})
	}
}

func TestDaysUntilExpiry(t *testing.T) {
	now := time.Now().UTC()

	lifetime := User{SubscriptionType: SubscriptionLifetime}
	assert.Nil(t, lifetime.DaysUntilExpiry(now))

	noEnd := User{SubscriptionType: SubscriptionBasic}
	assert.Nil(t, noEnd.DaysUntilExpiry(now))

	in10 := now.Add(10*24*time.Hour + time.Hour)
	u := User{SubscriptionType: SubscriptionBasic, SubscriptionEnd: &in10}
	days := u.DaysUntilExpiry(now)
	assert.NotNil(t, days)
	assert.Equal(t, 10, *days)

	past := now.Add(-48 * time.Hour)
	expired := User{SubscriptionType: SubscriptionBasic, SubscriptionEnd: &past}
	days = expired.DaysUntilExpiry(now)
	assert.NotNil(t, days)
	assert.Equal(t, 0, *days)
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "Alice Smith", (&User{FirstName: "Alice", LastName: "Smith"}).FullName())
	assert.Equal(t, "Smith", (&User{LastName: "Smith"}).FullName())
	assert.Equal(t, "Alice", (&User{FirstName: "Alice"}).FullName())
}

func TestCategoryFromMIME(t *testing.T) {
	cases := map[string]FileCategory{
		"image/png":       CategoryImage,
		"video/mp4":       CategoryVideo,
		"audio/mpeg":      CategoryAudio,
		"application/pdf": CategoryDocument,
		"text/csv":        CategoryDocument,
		"application/zip": CategoryArchive,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": CategoryDocument,
		"application/octet-stream": CategoryOther,
		"": CategoryOther,
	}
	for mime, want := range cases {
		assert.Equal(t, want, CategoryFromMIME(mime), mime)
	}
}

func TestSizeHuman(t *testing.T) {
	assert.Equal(t, "512.0 B", (&File{FileSize: 512}).SizeHuman())
	assert.Equal(t, "1.5 KB", (&File{FileSize: 1536}).SizeHuman())
	assert.Equal(t, "2.0 MB", (&File{FileSize: 2 * 1024 * 1024}).SizeHuman())
}

func TestShareIsExpired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&FileShare{}).IsExpired(now))
	assert.False(t, (&FileShare{ExpiresAt: &future}).IsExpired(now))
	assert.True(t, (&FileShare{ExpiresAt: &past}).IsExpired(now))
}

func TestValidEventType(t *testing.T) {
	assert.True(t, ValidEventType(EventChatMessage))
	assert.False(t, ValidEventType("made_up"))
}

func TestValidSubscriptionType(t *testing.T) {
	assert.True(t, ValidSubscriptionType(SubscriptionPremium))
	assert.False(t, ValidSubscriptionType("gold"))
}
