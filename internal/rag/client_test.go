package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omadligroup/ai-agent-api/pkg/logger"
)

func testClient(t *testing.T, webhook, feedback, analytics string) *Client {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	return NewClient(webhook, feedback, analytics, 5*time.Second, log)
}

func TestAskArrayFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is our refund policy", req["message"])

		json.NewEncoder(w).Encode([]map[string]any{{
			"content":        "<h2>Refunds</h2><ul><li>30 days</li></ul>",
			"Document Names": []string{"policy.docx"},
		}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "", "")
	answer, err := c.Ask(context.Background(), "what is our refund policy")
	require.NoError(t, err)
	assert.Contains(t, answer.Response, "## Refunds")
	assert.Contains(t, answer.Response, "- 30 days")
	assert.Equal(t, []string{"policy.docx"}, answer.Sources)
}

func TestAskLegacyFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"final_answer":    "Plain answer",
			"source_document": "Sources: policy.docx, handbook.pdf",
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "", "")
	answer, err := c.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Plain answer", answer.Response)
	assert.Equal(t, []string{"policy.docx", "handbook.pdf"}, answer.Sources)
}

func TestAskEmptyAnswerFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"content": ""}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "", "")
	answer, err := c.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, FallbackEmptyAnswer, answer.Response)
	assert.Empty(t, answer.Sources)
}

func TestAskServerErrorFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "", "")
	answer, err := c.Ask(context.Background(), "hi")
	require.Error(t, err)
	require.NotNil(t, answer)
	assert.Equal(t, FallbackOutOfScope, answer.Response)
}

func TestAskConnectionFailureFallback(t *testing.T) {
	c := testClient(t, "http://127.0.0.1:1", "", "")
	answer, err := c.Ask(context.Background(), "hi")
	require.Error(t, err)
	require.NotNil(t, answer)
	assert.Equal(t, FallbackOutOfScope, answer.Response)
}

func TestExtractSources(t *testing.T) {
	assert.Equal(t, []string{"a.docx", "b.docx"}, ExtractSources("Sources: a.docx, b.docx"))
	assert.Equal(t, []string{"a.docx"}, ExtractSources("a.docx"))
	assert.Empty(t, ExtractSources(""))
	assert.Empty(t, ExtractSources("Sources: "))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens("", ""))
	assert.Equal(t, 1, EstimateTokens("ab", "c"))
	assert.Equal(t, 5, EstimateTokens("tenchars!!", "tenchars!!"))
}

func TestSubmitFeedbackThumbsUpComment(t *testing.T) {
	var got Feedback
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := testClient(t, "", srv.URL, "")
	err := c.SubmitFeedback(context.Background(), Feedback{
		Question:     "q",
		Answer:       "a",
		FeedbackType: ThumbsUp,
	})
	require.NoError(t, err)
	assert.Equal(t, "thumb up", got.Comment)
	assert.NotEmpty(t, got.Timestamp)
}

func TestSubmitFeedbackKeepsComment(t *testing.T) {
	var got Feedback
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := testClient(t, "", srv.URL, "")
	err := c.SubmitFeedback(context.Background(), Feedback{
		FeedbackType: ThumbsDown,
		Comment:      "answer was off topic",
	})
	require.NoError(t, err)
	assert.Equal(t, "answer was off topic", got.Comment)
}

func TestFeedbackAnalyticsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026-08-01", r.URL.Query().Get("date_from"))
		assert.Equal(t, "2026-08-28", r.URL.Query().Get("date_to"))
		json.NewEncoder(w).Encode(map[string]int{"thumbs_up": 10, "thumbs_down": 2})
	}))
	defer srv.Close()

	c := testClient(t, "", "", srv.URL)
	raw, err := c.FeedbackAnalytics(context.Background(), "2026-08-01", "2026-08-28")
	require.NoError(t, err)

	var parsed map[string]int
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, 10, parsed["thumbs_up"])
}
