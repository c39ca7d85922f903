// AngelaMos | 2026
// client.go

package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/carterperez-dev/assignly/internal/config"
)

const (
	tokenPath           = "/v1/oauth2/token"
	subscriptionsPath   = "/v1/billing/subscriptions/"
	verifySignaturePath = "/v1/notifications/verify-webhook-signature"

	maxResponseBytes = 1 << 20
)

var (
	ErrSubscriptionNotFound = errors.New("paypal subscription not found")
	ErrInvalidSignature     = errors.New("paypal webhook signature invalid")
)

// APIError is a non-2xx answer from the REST API.
type APIError struct {
	StatusCode int    `json:"-"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	DebugID    string `json:"debug_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal: %d %s: %s (debug_id=%s)",
		e.StatusCode, e.Name, e.Message, e.DebugID)
}

// Client talks to the PayPal REST API with an app access token obtained
// through the OAuth2 client-credentials grant.
type Client struct {
	baseURL   string
	webhookID string
	http      *http.Client
}

func NewClient(cfg config.PayPalConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + tokenPath,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	transport := &http.Client{Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, transport)

	httpClient := creds.Client(ctx)
	httpClient.Timeout = cfg.Timeout

	return &Client{
		baseURL:   baseURL,
		webhookID: cfg.WebhookID,
		http:      httpClient,
	}
}

// GetSubscription loads a billing subscription by its provider id.
func (c *Client) GetSubscription(
	ctx context.Context,
	id string,
) (*Subscription, error) {
	if id == "" {
		return nil, fmt.Errorf("get subscription: empty id: %w",
			ErrSubscriptionNotFound)
	}

	var sub Subscription
	err := c.do(ctx, http.MethodGet,
		subscriptionsPath+url.PathEscape(id), nil, &sub)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("get subscription %s: %w",
				id, ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("get subscription %s: %w", id, err)
	}

	return &sub, nil
}

// VerifyWebhookSignature asks PayPal to validate a webhook delivery. body
// must be the raw request body exactly as received.
func (c *Client) VerifyWebhookSignature(
	ctx context.Context,
	header http.Header,
	body []byte,
) error {
	req := verifySignatureRequest{
		AuthAlgo:         header.Get("PAYPAL-AUTH-ALGO"),
		CertURL:          header.Get("PAYPAL-CERT-URL"),
		TransmissionID:   header.Get("PAYPAL-TRANSMISSION-ID"),
		TransmissionSig:  header.Get("PAYPAL-TRANSMISSION-SIG"),
		TransmissionTime: header.Get("PAYPAL-TRANSMISSION-TIME"),
		WebhookID:        c.webhookID,
		WebhookEvent:     json.RawMessage(body),
	}

	if req.AuthAlgo == "" || req.CertURL == "" || req.TransmissionID == "" ||
		req.TransmissionSig == "" || req.TransmissionTime == "" {
		return fmt.Errorf("verify webhook: missing transmission headers: %w",
			ErrInvalidSignature)
	}
	if !json.Valid(body) {
		return fmt.Errorf("verify webhook: body is not json: %w",
			ErrInvalidSignature)
	}

	var resp verifySignatureResponse
	if err := c.do(ctx, http.MethodPost, verifySignaturePath, req, &resp); err != nil {
		return fmt.Errorf("verify webhook: %w", err)
	}

	if resp.VerificationStatus != verificationSuccess {
		return fmt.Errorf("verify webhook: status %q: %w",
			resp.VerificationStatus, ErrInvalidSignature)
	}

	return nil
}

func (c *Client) do(
	ctx context.Context,
	method, path string,
	in, out any,
) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		//nolint:errcheck // error bodies are best-effort
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
