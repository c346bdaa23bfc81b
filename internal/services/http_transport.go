package services

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

	"whatsapp-router/internal/models"
)

// HTTPTransport talks to a provider gateway exposing
// POST {base}/messages and GET {base}/messages/{id}/status.
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPTransport(baseURL, token string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

type httpSendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type httpSendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

type httpStatusResponse struct {
	Status string `json:"status"`
}

func (t *HTTPTransport) Send(ctx context.Context, to string, body string) SendResult {
	payload, err := json.Marshal(httpSendRequest{To: to, Body: body})
	if err != nil {
		return SendResult{Error: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return SendResult{Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return SendResult{Error: "timeout"}
		}
		return SendResult{Error: err.Error()}
	}
	defer resp.Body.Close()

	var out httpSendResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode < 300 {
			return SendResult{Error: fmt.Sprintf("invalid provider response: %v", err)}
		}
	}
	if resp.StatusCode >= 300 {
		if out.Error == "" {
			out.Error = fmt.Sprintf("provider returned status %d", resp.StatusCode)
		}
		return SendResult{Error: out.Error}
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "provider rejected message"
		}
		return SendResult{Error: out.Error}
	}
	return SendResult{Success: true, ProviderMessageID: out.MessageID}
}

func (t *HTTPTransport) Status(ctx context.Context, providerMessageID string) (models.DeliveryStatus, error) {
	endpoint := t.baseURL + "/messages/" + url.PathEscape(providerMessageID) + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error polling provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrStatusUnknown
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var out httpStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("error decoding provider status: %w", err)
	}
	status, ok := MapProviderStatus(out.Status)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrStatusUnknown, out.Status)
	}
	return status, nil
}

func (t *HTTPTransport) authorize(req *http.Request) {
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
}
