package provider

import (
	"context"
	"strconv"
	"time"
)

// Provider defines the interface for handing a rendered newsletter to an
// outbound mail transport.
type Provider interface {
	// Send delivers a single message and returns a delivery result.
	Send(ctx context.Context, msg *Message) (*DeliveryResult, error)
	// GetName returns the provider's identifier (e.g., "sendgrid", "smtp").
	GetName() string
	// HealthCheck verifies the provider is reachable and functional.
	HealthCheck(ctx context.Context) error
}

// HTTPClient abstracts HTTP operations for testability. Do must abandon the
// request when ctx is cancelled.
type HTTPClient interface {
	Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest represents an outgoing HTTP request.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents an HTTP response from a provider API.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Message is one rendered newsletter addressed to one subscriber.
type Message struct {
	// ID identifies the (content, subscriber) pair; used for file names and
	// provider message ids of the development transports.
	ID       string
	From     string
	FromName string
	To       string
	ToName   string
	Subject  string
	Headers  map[string]string
	TextBody string
	HTMLBody string

	// Tags group messages in provider analytics (SendGrid categories,
	// Mailgun tags). Tracking is attached as per-message variables and
	// echoed back in provider webhooks.
	Tags     []string
	Tracking map[string]string
}

// DeliveryResult contains the outcome of a delivery attempt.
type DeliveryResult struct {
	ProviderMessageID string
	Status            DeliveryStatus
	Timestamp         time.Time
	Metadata          map[string]string
}

// DeliveryStatus represents the outcome reported by a transport.
type DeliveryStatus string

const (
	StatusSent   DeliveryStatus = "sent"
	StatusFailed DeliveryStatus = "failed"
)

// accepted builds the result for a 2xx response from an HTTP provider.
func accepted(messageID string, statusCode int, extra map[string]string) *DeliveryResult {
	meta := map[string]string{"status_code": strconv.Itoa(statusCode)}
	for k, v := range extra {
		meta[k] = v
	}
	return &DeliveryResult{
		ProviderMessageID: messageID,
		Status:            StatusSent,
		Timestamp:         time.Now(),
		Metadata:          meta,
	}
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
