// Package delivery holds the outbound clients: transactional email for the
// resume itself and SMS for notifying the owner.
package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	emailBaseURL        = "https://api.resend.com"
	emailTimeout        = 30 * time.Second
	emailMaxRetries     = 3
	emailInitialBackoff = 500 * time.Millisecond
)

// EmailClient sends the resume as an email attachment through a Resend-style
// transactional email API.
type EmailClient struct {
	apiKey     string
	from       string
	subject    string
	baseURL    string
	httpClient *http.Client
}

// NewEmailClient creates an email client sending from the given address.
func NewEmailClient(apiKey, from, subject string) *EmailClient {
	return &EmailClient{
		apiKey:  apiKey,
		from:    from,
		subject: subject,
		baseURL: emailBaseURL,
		httpClient: &http.Client{
			Timeout: emailTimeout,
		},
	}
}

// NewEmailClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewEmailClientWithBaseURL(apiKey, from, subject, baseURL string) *EmailClient {
	c := NewEmailClient(apiKey, from, subject)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// emailAttachment is one base64-encoded attachment in the send request.
type emailAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// sendEmailRequest is the JSON body for POST /emails.
type sendEmailRequest struct {
	From        string            `json:"from"`
	To          []string          `json:"to"`
	Subject     string            `json:"subject"`
	Text        string            `json:"text"`
	Attachments []emailAttachment `json:"attachments,omitempty"`
}

// sendEmailResponse is the JSON returned by POST /emails.
type sendEmailResponse struct {
	ID string `json:"id"`
}

// Send delivers the resume at attachmentPath to the given address and returns
// the provider's delivery ID. HTTP 429 responses are retried with exponential
// backoff; any other failure is returned to the caller, who decides whether
// the turn counts as delivered.
func (c *EmailClient) Send(ctx context.Context, to, name, attachmentPath string) (string, error) {
	data, err := os.ReadFile(attachmentPath)
	if err != nil {
		return "", fmt.Errorf("reading attachment: %w", err)
	}

	req := sendEmailRequest{
		From:    c.from,
		To:      []string{to},
		Subject: c.subject,
		Text:    emailBody(name),
		Attachments: []emailAttachment{{
			Filename: filepath.Base(attachmentPath),
			Content:  base64.StdEncoding.EncodeToString(data),
		}},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range emailMaxRetries {
		id, err := c.doSend(ctx, body)
		if err == nil {
			return id, nil
		}

		if !isRateLimit(err) {
			return "", err
		}

		lastErr = err
		if attempt < emailMaxRetries-1 {
			backoff := time.Duration(float64(emailInitialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", fmt.Errorf("rate limited after %d retries: %w", emailMaxRetries, lastErr)
}

func (c *EmailClient) doSend(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result sendEmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return result.ID, nil
}

func emailBody(name string) string {
	greeting := "Hi,"
	if name != "" {
		greeting = "Hi " + name + ","
	}
	return greeting + "\n\nThanks for your interest. The resume you asked about is attached.\n"
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	_, ok := err.(*rateLimitError)
	return ok
}
