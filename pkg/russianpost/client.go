package russianpost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://otpravka-api.pochta.ru"
	responseBodyReadLimit int64 = 32 << 10
)

var errCredentialsRequired = errors.New("russian post access token and user authorization are required")

// Client wraps the dispatch ("otpravka") API used for postal orders.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	userAuth    string
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

// NewClient builds the postal client. userAuth is the pre-encoded Basic
// credential for the X-User-Authorization header.
func NewClient(accessToken, userAuth string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(accessToken) == "" || strings.TrimSpace(userAuth) == "" {
		return nil, errCredentialsRequired
	}

	client := &Client{
		accessToken: strings.TrimSpace(accessToken),
		userAuth:    strings.TrimSpace(userAuth),
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
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

// Order is a backlog entry for a postal shipment. Mass is grams, money is
// kopecks as required by the dispatch API.
type Order struct {
	OrderNum             string `json:"order-num"`
	AddressTypeTo        string `json:"address-type-to"`
	GivenName            string `json:"given-name"`
	Surname              string `json:"surname"`
	MiddleName           string `json:"middle-name,omitempty"`
	RecipientName        string `json:"recipient-name"`
	TelAddress           string `json:"tel-address"`
	IndexTo              string `json:"index-to"`
	RegionTo             string `json:"region-to"`
	PlaceTo              string `json:"place-to"`
	StreetTo             string `json:"street-to,omitempty"`
	MailCategory         string `json:"mail-category"`
	MailType             string `json:"mail-type"`
	Mass                 int    `json:"mass"`
	PaymentMethod        string `json:"payment-method,omitempty"`
	InsrValue            int    `json:"insr-value,omitempty"`
	Comment              string `json:"comment,omitempty"`
	DimensionType        string `json:"dimension-type,omitempty"`
	TransportType        string `json:"transport-type,omitempty"`
	PostofficeCode       string `json:"postoffice-code,omitempty"`
	NoticePaymentMethod  string `json:"notice-payment-method,omitempty"`
}

// OrderResult returns the accepted backlog ids and the assigned barcode.
type OrderResult struct {
	ResultIDs []int64
	Barcode   string
}

// CreateBacklogOrder pushes one order into the dispatch backlog.
func (c *Client) CreateBacklogOrder(ctx context.Context, order Order) (*OrderResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "russian post client not configured")
	}

	raw, err := json.Marshal([]Order{order})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal backlog request")
	}

	endpoint := fmt.Sprintf("%s/2.0/user/backlog", strings.TrimRight(c.baseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build backlog request")
	}
	httpReq.Header.Set("Content-Type", "application/json;charset=UTF-8")
	httpReq.Header.Set("Accept", "application/json;charset=UTF-8")
	httpReq.Header.Set("Authorization", "AccessToken "+c.accessToken)
	httpReq.Header.Set("X-User-Authorization", "Basic "+c.userAuth)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute backlog request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "backlog request failed")
	}

	var apiResp struct {
		ResultIDs []int64 `json:"result-ids"`
		Orders    []struct {
			Barcode string `json:"barcode"`
		} `json:"orders"`
		Errors []struct {
			ErrorCodes []struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error-codes"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyReadLimit)).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode backlog response")
	}
	for _, e := range apiResp.Errors {
		for _, code := range e.ErrorCodes {
			return nil, pkgerrors.New(pkgerrors.CodeDependency,
				fmt.Sprintf("backlog rejected: %s: %s", code.Code, code.Description))
		}
	}

	result := &OrderResult{ResultIDs: apiResp.ResultIDs}
	if len(apiResp.Orders) > 0 {
		result.Barcode = apiResp.Orders[0].Barcode
	}
	return result, nil
}
