package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskora-dev/taskora/internal/config"
	"github.com/taskora-dev/taskora/internal/observability"
	"go.uber.org/zap"
)

type httpClient struct {
	baseURL     string
	apiKey      string
	callbackURL string
	client      *http.Client
	log         *zap.Logger
	metrics     *observability.Metrics
}

func NewClient(cfg config.Config, log *zap.Logger, metrics *observability.Metrics) Client {
	timeout := cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		baseURL:     strings.TrimRight(cfg.Gateway.BaseURL, "/"),
		apiKey:      cfg.Gateway.APIKey,
		callbackURL: cfg.Gateway.CallbackURL,
		client:      &http.Client{Timeout: timeout},
		log:         log.Named("gateway.client"),
		metrics:     metrics,
	}
}

type createInvoiceRequest struct {
	ExternalID  string            `json:"external_id"`
	Amount      int64             `json:"amount"`
	Description string            `json:"description"`
	CallbackURL string            `json:"callback_url,omitempty"`
	CustomData  map[string]string `json:"custom_data,omitempty"`
}

type createInvoiceResponse struct {
	Token       string `json:"token"`
	CheckoutURL string `json:"checkout_url"`
}

type queryStatusResponse struct {
	Token         string `json:"token"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
}

func (c *httpClient) CreateInvoice(ctx context.Context, amount int64, description string, metadata Metadata) (Invoice, error) {
	payload := createInvoiceRequest{
		ExternalID:  uuid.NewString(),
		Amount:      amount,
		Description: description,
		CallbackURL: c.callbackURL,
		CustomData:  metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Invoice{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/invoices", bytes.NewReader(body))
	if err != nil {
		return Invoice{}, err
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.count("create_invoice", "network_error")
		return Invoice{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		c.count("create_invoice", "unavailable")
		return Invoice{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		c.count("create_invoice", "rejected")
		return Invoice{}, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var out createInvoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.count("create_invoice", "bad_response")
		return Invoice{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if strings.TrimSpace(out.Token) == "" || strings.TrimSpace(out.CheckoutURL) == "" {
		c.count("create_invoice", "bad_response")
		return Invoice{}, fmt.Errorf("%w: incomplete invoice response", ErrRejected)
	}

	c.count("create_invoice", "ok")
	return Invoice{Token: out.Token, CheckoutURL: out.CheckoutURL}, nil
}

func (c *httpClient) QueryStatus(ctx context.Context, token string) (StatusResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return StatusResult{}, ErrTokenNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/invoices/"+token, nil)
	if err != nil {
		return StatusResult{}, err
	}
	req.SetBasicAuth(c.apiKey, "")

	resp, err := c.client.Do(req)
	if err != nil {
		c.count("query_status", "network_error")
		return StatusResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.count("query_status", "bad_response")
		return StatusResult{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.count("query_status", "not_found")
		return StatusResult{}, ErrTokenNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		c.count("query_status", "unavailable")
		return StatusResult{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		c.count("query_status", "rejected")
		return StatusResult{}, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var out queryStatusResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		c.count("query_status", "bad_response")
		return StatusResult{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	c.count("query_status", "ok")
	return StatusResult{
		Status:        out.Status,
		PaymentMethod: out.PaymentMethod,
		RawPayload:    raw,
	}, nil
}

func (c *httpClient) count(op, outcome string) {
	if c.metrics != nil {
		c.metrics.GatewayRequests.WithLabelValues(op, outcome).Inc()
	}
}
