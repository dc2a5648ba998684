package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	smsBaseURL = "https://api.twilio.com/2010-04-01"
	smsTimeout = 15 * time.Second
)

// SMSClient notifies the owner through a Twilio-style messaging API. A lost
// notification is never worth failing a visitor's turn, so callers treat
// errors as log-and-continue.
type SMSClient struct {
	accountSID string
	authToken  string
	from       string
	to         string
	baseURL    string
	httpClient *http.Client
}

// NewSMSClient creates an SMS client sending from the given number to the
// owner's number.
func NewSMSClient(accountSID, authToken, from, to string) *SMSClient {
	return &SMSClient{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		to:         to,
		baseURL:    smsBaseURL,
		httpClient: &http.Client{
			Timeout: smsTimeout,
		},
	}
}

// NewSMSClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewSMSClientWithBaseURL(accountSID, authToken, from, to, baseURL string) *SMSClient {
	c := NewSMSClient(accountSID, authToken, from, to)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// smsResponse is the subset of the create-message response we care about.
type smsResponse struct {
	SID string `json:"sid"`
}

// Send posts a message to the owner's number.
func (c *SMSClient) Send(ctx context.Context, body string) error {
	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", c.to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
