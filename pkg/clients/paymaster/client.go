// Package paymaster provides the Go client for the paymaster service: an
// HTTP client for the REST surface, a websocket listener for realtime
// events, and a timeline that reconciles optimistic sends against the
// server's records.
package paymaster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"paypadm/core/pkg/api/paymaster"
	"paypadm/core/pkg/clients"
	"paypadm/core/pkg/logging"
	"paypadm/core/pkg/models"
)

// ErrPaymentRequired is returned when the service answers 402: the access
// gate denied a send, or a charge failed on funds.
var ErrPaymentRequired = errors.New("payment required")

// Client represents a Paymaster API client
type Client struct {
	baseURL     string
	httpClient  *http.Client
	authToken   string
	logger      logging.Logger
	retryConfig clients.RetryConfig
}

// Config represents the configuration for the Paymaster client
type Config struct {
	BaseURL              string
	AuthToken            string
	Timeout              time.Duration
	Logger               logging.Logger
	RetryConfig          *clients.RetryConfig
	CircuitBreakerConfig *clients.CircuitBreakerConfig
}

// NewClient creates a new Paymaster API client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	retryConfig := clients.DefaultRetryConfig()
	if config.RetryConfig != nil {
		retryConfig = *config.RetryConfig
	}
	if config.CircuitBreakerConfig != nil {
		retryConfig.CircuitBreaker = clients.NewCircuitBreaker(*config.CircuitBreakerConfig)
	}

	return &Client{
		baseURL:     config.BaseURL,
		httpClient:  &http.Client{Timeout: config.Timeout},
		authToken:   config.AuthToken,
		logger:      config.Logger,
		retryConfig: retryConfig,
	}
}

// ResolveConversation returns the canonical conversation identity for a
// participant pair. Argument order does not matter.
func (c *Client) ResolveConversation(ctx context.Context, a, b string) (*paymaster.ResolveConversationResponse, error) {
	var resp paymaster.ResolveConversationResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/conversations/resolve",
		&paymaster.ResolveConversationRequest{A: a, B: b}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendMessage appends a message to a conversation and returns the persisted
// record. Returns ErrPaymentRequired when the access gate denies the send.
func (c *Client) SendMessage(ctx context.Context, conversationID string, req *paymaster.SendMessageRequest) (*models.Message, error) {
	var msg models.Message
	path := fmt.Sprintf("/v1/conversations/%s/messages", url.PathEscape(conversationID))
	if err := c.doJSON(ctx, http.MethodPost, path, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages fetches one page of history, oldest first. An empty before
// cursor fetches the newest page.
func (c *Client) ListMessages(ctx context.Context, conversationID, viewerID, before string, limit int) (*paymaster.ListMessagesResponse, error) {
	query := url.Values{}
	if viewerID != "" {
		query.Set("viewer_id", viewerID)
	}
	if before != "" {
		query.Set("before", before)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	path := fmt.Sprintf("/v1/conversations/%s/messages?%s", url.PathEscape(conversationID), query.Encode())
	var resp paymaster.ListMessagesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MarkRead marks the counterpart's messages in a conversation as read.
func (c *Client) MarkRead(ctx context.Context, conversationID, readerID string) error {
	path := fmt.Sprintf("/v1/conversations/%s/read", url.PathEscape(conversationID))
	return c.doJSON(ctx, http.MethodPost, path, &paymaster.MarkReadRequest{ReaderID: readerID}, nil)
}

// CheckAccess reports whether from may message to.
func (c *Client) CheckAccess(ctx context.Context, fromID, toID string) (*paymaster.CheckAccessResponse, error) {
	query := url.Values{}
	query.Set("from", fromID)
	query.Set("to", toID)

	var resp paymaster.CheckAccessResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/access?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Charge applies a priced action. Safe to retry: replays of the same
// reference tuple succeed without double-charging.
func (c *Client) Charge(ctx context.Context, req *paymaster.ChargeRequest) (*paymaster.ChargeResponse, error) {
	var resp paymaster.ChargeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/charge", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetBalance reports an account's wallet state.
func (c *Client) GetBalance(ctx context.Context, accountID string) (*paymaster.BalanceResponse, error) {
	path := fmt.Sprintf("/v1/accounts/%s/balance", url.PathEscape(accountID))
	var resp paymaster.BalanceResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Heartbeat reports the user as online.
func (c *Client) Heartbeat(ctx context.Context, userID string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/presence/heartbeat", &paymaster.HeartbeatRequest{UserID: userID}, nil)
}

// GetPresence reports online state for a set of users.
func (c *Client) GetPresence(ctx context.Context, userIDs []string) (*paymaster.PresenceResponse, error) {
	query := url.Values{}
	query.Set("user_ids", strings.Join(userIDs, ","))

	var resp paymaster.PresenceResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/presence?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := clients.DoWithRetry(ctx, c.httpClient, req, c.retryConfig)
	if err != nil {
		return fmt.Errorf("failed to call Paymaster: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		var denial paymaster.PaymentRequiredResponse
		if err := json.NewDecoder(resp.Body).Decode(&denial); err == nil && denial.Error != "" {
			return fmt.Errorf("%w: %s (fee %d cents)", ErrPaymentRequired, denial.Error, denial.RequiredFeeCents)
		}
		return ErrPaymentRequired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Paymaster error (%d): %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
