package gateway

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable covers network failures and gateway 5xx responses.
	// The caller decides whether to retry; the client never does.
	ErrUnavailable = errors.New("gateway_unavailable")
	// ErrRejected covers gateway 4xx responses other than unknown token.
	ErrRejected = errors.New("gateway_rejected")
	// ErrTokenNotFound is returned by QueryStatus for tokens the gateway
	// does not know about.
	ErrTokenNotFound = errors.New("gateway_token_not_found")
)

// Metadata travels to the gateway verbatim and comes back on both the
// webhook and the poll response. It is the only carrier of settlement
// context (provider id, intended tier, duration) across the async boundary.
type Metadata map[string]string

type Invoice struct {
	Token       string
	CheckoutURL string
}

type StatusResult struct {
	Status        string
	PaymentMethod string
	RawPayload    []byte
}

// Client is a stateless request/response wrapper around the payment
// provider. Callers must not hold locks across these calls.
type Client interface {
	CreateInvoice(ctx context.Context, amount int64, description string, metadata Metadata) (Invoice, error)
	QueryStatus(ctx context.Context, token string) (StatusResult, error)
}
