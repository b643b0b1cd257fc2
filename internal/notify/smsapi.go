package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultSMSAPIURL = "https://api.smsapi.pl/sms.do"

// SMSSender sends one text message and returns the provider's message id.
type SMSSender interface {
	Send(ctx context.Context, token, sender, to, body string) (string, error)
}

// SMSAPIClient talks to the smsapi.pl REST endpoint.
type SMSAPIClient struct {
	url  string
	http *http.Client
}

func NewSMSAPIClient(apiURL string, httpClient *http.Client) *SMSAPIClient {
	if apiURL == "" {
		apiURL = DefaultSMSAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &SMSAPIClient{url: apiURL, http: httpClient}
}

type smsapiResponse struct {
	Count int `json:"count"`
	List  []struct {
		ID     string `json:"id"`
		Points any    `json:"points"`
		Status string `json:"status"`
	} `json:"list"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

func (c *SMSAPIClient) Send(ctx context.Context, token, sender, to, body string) (string, error) {
	if token == "" {
		return "", errors.New("smsapi: missing token")
	}
	form := url.Values{}
	form.Set("to", to)
	form.Set("message", body)
	form.Set("format", "json")
	if sender != "" {
		form.Set("from", sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("smsapi: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("smsapi: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("smsapi: read response: %w", err)
	}

	var out smsapiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("smsapi: status %d: decode response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.Count == 0 || len(out.List) == 0 {
		msg := out.Message
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("smsapi: status %d: %s", resp.StatusCode, msg)
	}
	return out.List[0].ID, nil
}
