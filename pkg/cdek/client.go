package cdek

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
	"sync"
	"time"

	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://api.cdek.ru/v2"
	responseBodyReadLimit int64 = 64 << 10
	tokenExpirySlack            = 30 * time.Second
)

var errCredentialsRequired = errors.New("cdek account and secure password are required")

// Client wraps the carrier's order API. Access tokens are fetched with the
// client-credentials grant and cached until shortly before expiry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	account    string
	secure     string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
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

// NewClient builds the carrier client for the given integration account.
func NewClient(account, securePassword string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(account) == "" || strings.TrimSpace(securePassword) == "" {
		return nil, errCredentialsRequired
	}

	client := &Client{
		account:    strings.TrimSpace(account),
		secure:     strings.TrimSpace(securePassword),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	return client, nil
}

// CreateOrder registers a delivery order and returns its uuid handle.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*OrderRef, error) {
	var resp struct {
		Entity   OrderRef `json:"entity"`
		Requests []struct {
			State  string     `json:"state"`
			Errors []APIError `json:"errors"`
		} `json:"requests"`
	}
	if err := c.call(ctx, http.MethodPost, "orders", req, &resp); err != nil {
		return nil, err
	}
	for _, r := range resp.Requests {
		if len(r.Errors) > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, formatAPIErrors(r.Errors))
		}
	}
	if resp.Entity.UUID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order registration returned no uuid")
	}
	return &resp.Entity, nil
}

// GetOrderByNumber looks up an order by the storefront's own order number.
func (c *Client) GetOrderByNumber(ctx context.Context, imNumber string) (*OrderInfo, error) {
	path := "orders?im_number=" + url.QueryEscape(imNumber)
	var resp struct {
		Entity struct {
			UUID       string `json:"uuid"`
			CdekNumber string `json:"cdek_number"`
		} `json:"entity"`
		Requests []struct {
			State  string     `json:"state"`
			Errors []APIError `json:"errors"`
		} `json:"requests"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	info := &OrderInfo{
		UUID:           resp.Entity.UUID,
		TrackingNumber: resp.Entity.CdekNumber,
	}
	for _, r := range resp.Requests {
		info.Errors = append(info.Errors, r.Errors...)
	}
	return info, nil
}

// CreateBarcode asks the carrier to render the A4 barcode for an order.
func (c *Client) CreateBarcode(ctx context.Context, orderUUID string) (string, error) {
	payload := map[string]any{
		"orders": []map[string]string{{"order_uuid": orderUUID}},
		"format": "A4",
	}
	var resp struct {
		Entity struct {
			UUID string `json:"uuid"`
		} `json:"entity"`
	}
	if err := c.call(ctx, http.MethodPost, "print/barcodes", payload, &resp); err != nil {
		return "", err
	}
	if resp.Entity.UUID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "barcode request returned no uuid")
	}
	return resp.Entity.UUID, nil
}

// GetBarcode fetches the barcode artifact; URL stays empty until the carrier
// finishes rendering.
func (c *Client) GetBarcode(ctx context.Context, barcodeUUID string) (*Barcode, error) {
	var resp struct {
		Entity struct {
			UUID string `json:"uuid"`
			URL  string `json:"url"`
		} `json:"entity"`
	}
	if err := c.call(ctx, http.MethodGet, "print/barcodes/"+url.PathEscape(barcodeUUID), nil, &resp); err != nil {
		return nil, err
	}
	return &Barcode{UUID: resp.Entity.UUID, URL: resp.Entity.URL}, nil
}

func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.account)
	form.Set("client_secret", c.secure)

	endpoint := fmt.Sprintf("%s/oauth/token", strings.TrimRight(c.baseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build token request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute token request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "token request failed")
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyReadLimit)).Decode(&tokenResp); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode token response")
	}
	if tokenResp.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "token response missing access_token")
	}

	c.token = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - tokenExpirySlack)
	return c.token, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload any, result any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "cdek client not configured")
	}

	token, err := c.authToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal carrier request")
		}
		body = bytes.NewReader(raw)
	}

	endpoint := fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), strings.TrimLeft(path, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build carrier request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute carrier request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "carrier request failed")
	}
	if result != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyReadLimit)).Decode(result); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode carrier response")
		}
	}
	return nil
}

func formatAPIErrors(errs []APIError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Code, e.Message))
	}
	return "order registration rejected: " + strings.Join(parts, "; ")
}
