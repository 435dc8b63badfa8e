package tpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://securepay.tinkoff.ru/v2"
	responseBodyReadLimit int64 = 4096
)

// Gateway payment states the storefront reacts to.
const (
	StateNew       = "NEW"
	StateConfirmed = "CONFIRMED"
)

var errCredentialsRequired = errors.New("tpay terminal key and password are required")

// Client wraps the acquiring API used for card payments.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	terminalKey string
	password    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the acquiring client for the given terminal credentials.
func NewClient(terminalKey, password string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(terminalKey) == "" || strings.TrimSpace(password) == "" {
		return nil, errCredentialsRequired
	}

	client := &Client{
		terminalKey: strings.TrimSpace(terminalKey),
		password:    strings.TrimSpace(password),
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	return client, nil
}

// InitRequest describes a new payment. Amount is in kopecks.
type InitRequest struct {
	Amount      int64
	OrderID     string
	Description string
}

// InitResult is the subset of the Init response the storefront keeps.
type InitResult struct {
	PaymentID  string
	PaymentURL string
}

// StateResult reports the current state of a payment.
type StateResult struct {
	PaymentID string
	Status    string
}

// Init registers a payment with the gateway and returns its id and pay page.
func (c *Client) Init(ctx context.Context, req InitRequest) (*InitResult, error) {
	if req.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment order id is required")
	}

	payload := map[string]any{
		"TerminalKey": c.terminalKey,
		"Amount":      req.Amount,
		"OrderId":     req.OrderID,
		"Description": req.Description,
		"Token": SignToken(map[string]string{
			"TerminalKey": c.terminalKey,
			"Amount":      strconv.FormatInt(req.Amount, 10),
			"OrderId":     req.OrderID,
			"Description": req.Description,
		}, c.password),
	}

	var resp struct {
		Success    bool   `json:"Success"`
		ErrorCode  string `json:"ErrorCode"`
		Message    string `json:"Message"`
		PaymentID  string `json:"PaymentId"`
		PaymentURL string `json:"PaymentURL"`
	}
	if err := c.post(ctx, "Init", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("error %s: %s", resp.ErrorCode, resp.Message), "payment init rejected")
	}
	return &InitResult{PaymentID: resp.PaymentID, PaymentURL: resp.PaymentURL}, nil
}

// GetState returns the gateway status for a previously created payment.
func (c *Client) GetState(ctx context.Context, paymentID string) (*StateResult, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	payload := map[string]any{
		"TerminalKey": c.terminalKey,
		"PaymentId":   paymentID,
		"Token": SignToken(map[string]string{
			"TerminalKey": c.terminalKey,
			"PaymentId":   paymentID,
		}, c.password),
	}

	var resp struct {
		Success   bool   `json:"Success"`
		ErrorCode string `json:"ErrorCode"`
		Message   string `json:"Message"`
		Status    string `json:"Status"`
		PaymentID string `json:"PaymentId"`
	}
	if err := c.post(ctx, "GetState", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("error %s: %s", resp.ErrorCode, resp.Message), "payment state check rejected")
	}
	return &StateResult{PaymentID: resp.PaymentID, Status: resp.Status}, nil
}

func (c *Client) post(ctx context.Context, method string, payload any, result any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "tpay client not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("marshal %s request", method))
	}

	url := fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("build %s request", method))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("execute %s request", method))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			fmt.Sprintf("%s request failed", method))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyReadLimit)).Decode(result); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s response", method))
	}
	return nil
}
