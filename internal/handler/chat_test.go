package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omadligroup/ai-agent-api/pkg/logger"
)

func testChatHandler(t *testing.T) *ChatHandler {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	// Rejected requests never reach the service.
	return NewChatHandler(nil, log)
}

func TestSendMessageRejectsBadContent(t *testing.T) {
	h := testChatHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty message", `{"message": ""}`},
		{"oversized message", `{"message": "` + strings.Repeat("a", 100001) + `"}`},
		{"malformed json", `{"message":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.SendMessage(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestStreamMessageRejectsBadContent(t *testing.T) {
	h := testChatHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(`{"message": ""}`))
	rec := httptest.NewRecorder()
	h.StreamMessage(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Header().Get("Content-Type"), "text/event-stream")
}
