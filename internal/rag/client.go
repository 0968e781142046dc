// Package rag is the client for the external retrieval augmented
// generation webhook that backs the chat assistant.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"go.uber.org/zap"

	"github.com/omadligroup/ai-agent-api/pkg/logger"
	"github.com/omadligroup/ai-agent-api/pkg/metrics"
)

// ModelName identifies the assistant backend in message metadata.
const ModelName = "rag-instant-ai"

// Fallback responses surfaced to the user when the webhook fails.
const (
	FallbackOutOfScope  = "## Apologies, but that question seems too general or outside my trained scope based on internal documents."
	FallbackEmptyAnswer = "I apologize, but I couldn't generate a proper response. Please try again."
	FallbackConnection  = "I apologize, but I'm having trouble connecting to the knowledge base. Please try again later."
	FallbackProcessing  = "I apologize, but something went wrong while processing your request. Please try again."
)

// Answer is a parsed webhook response.
type Answer struct {
	Response string
	Sources  []string
}

// Client calls the RAG webhook endpoints.
type Client struct {
	webhookURL   string
	feedbackURL  string
	analyticsURL string
	httpClient   *http.Client
	converter    *md.Converter
	log          *logger.Logger
}

// NewClient builds a webhook client with the given endpoints and timeout.
func NewClient(webhookURL, feedbackURL, analyticsURL string, timeout time.Duration, log *logger.Logger) *Client {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		BulletListMarker: "-",
	})
	return &Client{
		webhookURL:   webhookURL,
		feedbackURL:  feedbackURL,
		analyticsURL: analyticsURL,
		httpClient:   &http.Client{Timeout: timeout},
		converter:    converter,
		log:          log,
	}
}

// webhookItem is one element of the current array response format.
type webhookItem struct {
	Content       string   `json:"content"`
	DocumentNames []string `json:"Document Names"`
}

// legacyResponse is the old single object response format.
type legacyResponse struct {
	FinalAnswer    string `json:"final_answer"`
	SourceDocument string `json:"source_document"`
}

// Ask sends a user message to the webhook and returns the parsed
// answer with the HTML content converted to Markdown. On failure a
// fallback answer is returned along with the error so callers can
// still show something to the user.
func (c *Client) Ask(ctx context.Context, message string) (*Answer, error) {
	start := time.Now()

	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return &Answer{Response: FallbackProcessing}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return &Answer{Response: FallbackProcessing}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRAGRequest("ask", "error", time.Since(start).Seconds())
		c.log.Error("rag webhook request failed", zap.Error(err))
		return &Answer{Response: FallbackOutOfScope}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.RecordRAGRequest("ask", "error", time.Since(start).Seconds())
		err := fmt.Errorf("rag webhook returned status %d", resp.StatusCode)
		c.log.Error("rag webhook request failed", zap.Error(err))
		return &Answer{Response: FallbackOutOfScope}, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordRAGRequest("ask", "error", time.Since(start).Seconds())
		return &Answer{Response: FallbackOutOfScope}, err
	}
	metrics.RecordRAGRequest("ask", "ok", time.Since(start).Seconds())

	answer, err := c.parseAnswer(raw)
	if err != nil {
		c.log.Warn("rag webhook response unparseable", zap.Error(err))
		return &Answer{Response: FallbackOutOfScope}, err
	}
	return answer, nil
}

// parseAnswer handles both response formats: the current array of items
// with content and document names, and the legacy single object.
func (c *Client) parseAnswer(raw []byte) (*Answer, error) {
	var content string
	var sources []string

	var items []webhookItem
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		content = items[0].Content
		sources = items[0].DocumentNames
	} else {
		var legacy legacyResponse
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, fmt.Errorf("unrecognized webhook response: %w", err)
		}
		content = legacy.FinalAnswer
		sources = ExtractSources(legacy.SourceDocument)
	}

	if content == "" {
		return &Answer{Response: FallbackEmptyAnswer, Sources: []string{}}, nil
	}

	markdown, err := c.converter.ConvertString(content)
	if err != nil {
		// Content was probably already plain text.
		markdown = content
	}
	if sources == nil {
		sources = []string{}
	}
	return &Answer{Response: markdown, Sources: sources}, nil
}

// ExtractSources splits a legacy source_document string such as
// "Sources: a.docx, b.docx" into individual document names.
func ExtractSources(sourceDocument string) []string {
	if sourceDocument == "" {
		return []string{}
	}
	sourceDocument = strings.TrimPrefix(sourceDocument, "Sources: ")

	var docs []string
	for _, doc := range strings.Split(sourceDocument, ",") {
		if doc = strings.TrimSpace(doc); doc != "" {
			docs = append(docs, doc)
		}
	}
	if docs == nil {
		return []string{}
	}
	return docs
}

// EstimateTokens approximates token usage as one token per four
// characters of combined input and output, with a floor of one.
func EstimateTokens(input, output string) int {
	tokens := (len(input) + len(output)) / 4
	if tokens < 1 {
		return 1
	}
	return tokens
}

// Feedback is a thumbs rating on an assistant answer.
type Feedback struct {
	Question     string `json:"question"`
	Answer       string `json:"answer"`
	FeedbackType string `json:"feedback_type"`
	Comment      string `json:"comment,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// Feedback types accepted by the webhook.
const (
	ThumbsUp   = "thumbs_up"
	ThumbsDown = "thumbs_down"
)

// SubmitFeedback forwards a thumbs rating to the feedback webhook.
func (c *Client) SubmitFeedback(ctx context.Context, fb Feedback) error {
	start := time.Now()

	if fb.Timestamp == "" {
		fb.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if fb.FeedbackType == ThumbsUp && fb.Comment == "" {
		fb.Comment = "thumb up"
	}

	body, err := json.Marshal(fb)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.feedbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRAGRequest("feedback", "error", time.Since(start).Seconds())
		return fmt.Errorf("feedback webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.RecordRAGRequest("feedback", "error", time.Since(start).Seconds())
		return fmt.Errorf("feedback webhook returned status %d", resp.StatusCode)
	}
	metrics.RecordRAGRequest("feedback", "ok", time.Since(start).Seconds())
	return nil
}

// FeedbackAnalytics proxies the feedback analytics webhook, optionally
// bounded by ISO dates.
func (c *Client) FeedbackAnalytics(ctx context.Context, dateFrom, dateTo string) (json.RawMessage, error) {
	start := time.Now()

	u, err := url.Parse(c.analyticsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if dateFrom != "" {
		q.Set("date_from", dateFrom)
	}
	if dateTo != "" {
		q.Set("date_to", dateTo)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRAGRequest("analytics", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("analytics webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.RecordRAGRequest("analytics", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("analytics webhook returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	metrics.RecordRAGRequest("analytics", "ok", time.Since(start).Seconds())
	return json.RawMessage(raw), nil
}

// ListFeedbacks proxies the feedback listing webhook, optionally
// filtered by status and ISO dates.
func (c *Client) ListFeedbacks(ctx context.Context, status, dateFrom, dateTo string) (json.RawMessage, error) {
	start := time.Now()

	u, err := url.Parse(c.feedbackURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if status != "" {
		q.Set("status", status)
	}
	if dateFrom != "" {
		q.Set("date_from", dateFrom)
	}
	if dateTo != "" {
		q.Set("date_to", dateTo)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRAGRequest("feedback", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("feedback webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.RecordRAGRequest("feedback", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("feedback webhook returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	metrics.RecordRAGRequest("feedback", "ok", time.Since(start).Seconds())
	return json.RawMessage(raw), nil
}
