package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	sendgridDefaultEndpoint = "https://api.sendgrid.com"
	sendgridSendPath        = "/v3/mail/send"
	sendgridScopesPath      = "/v3/scopes"

	// SendGrid rejects more than ten categories per message.
	sendgridMaxCategories = 10
)

// SendGrid sends newsletters through the SendGrid v3 Mail Send API.
type SendGrid struct {
	apiKey   string
	endpoint string
	client   HTTPClient
}

// NewSendGrid creates a SendGrid provider from the given configuration.
func NewSendGrid(cfg ProviderConfig, client HTTPClient) *SendGrid {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = sendgridDefaultEndpoint
	}
	return &SendGrid{apiKey: cfg.APIKey, endpoint: endpoint, client: client}
}

func (s *SendGrid) GetName() string { return "sendgrid" }

// Send posts one personalised newsletter. SendGrid answers 202 with the
// message id in the X-Message-Id header.
func (s *SendGrid) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	body, err := json.Marshal(s.buildPayload(msg))
	if err != nil {
		return nil, fmt.Errorf("sendgrid: marshal request: %w", err)
	}

	resp, err := s.do(ctx, http.MethodPost, sendgridSendPath, body)
	if err != nil {
		return nil, fmt.Errorf("sendgrid: send request: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		return nil, ClassifyHTTPError("sendgrid", resp.StatusCode, string(resp.Body))
	}

	return accepted(resp.Headers["X-Message-Id"], resp.StatusCode, nil), nil
}

// HealthCheck lists the API key scopes, which fails fast on a revoked key.
func (s *SendGrid) HealthCheck(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodGet, sendgridScopesPath, nil)
	if err != nil {
		return fmt.Errorf("sendgrid: health check request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sendgrid: health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *SendGrid) do(ctx context.Context, method, path string, body []byte) (*HTTPResponse, error) {
	headers := map[string]string{"Authorization": "Bearer " + s.apiKey}
	if body != nil {
		headers["Content-Type"] = "application/json"
	}
	return s.client.Do(ctx, &HTTPRequest{
		Method:  method,
		URL:     s.endpoint + path,
		Headers: headers,
		Body:    body,
	})
}

type sendgridPayload struct {
	Personalizations []sendgridPersonalization `json:"personalizations"`
	From             sendgridEmail             `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendgridContent         `json:"content"`
	Headers          map[string]string         `json:"headers,omitempty"`
	Categories       []string                  `json:"categories,omitempty"`
}

// custom_args live on the personalization so they travel with the recipient
// into event webhooks.
type sendgridPersonalization struct {
	To         []sendgridEmail   `json:"to"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendgridEmail struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (s *SendGrid) buildPayload(msg *Message) sendgridPayload {
	// text/plain must precede text/html.
	var content []sendgridContent
	if msg.TextBody != "" {
		content = append(content, sendgridContent{Type: "text/plain", Value: msg.TextBody})
	}
	if msg.HTMLBody != "" {
		content = append(content, sendgridContent{Type: "text/html", Value: msg.HTMLBody})
	}
	if len(content) == 0 {
		content = []sendgridContent{{Type: "text/plain", Value: " "}}
	}

	categories := msg.Tags
	if len(categories) > sendgridMaxCategories {
		categories = categories[:sendgridMaxCategories]
	}

	var args map[string]string
	if len(msg.Tracking) > 0 || msg.ID != "" {
		args = make(map[string]string, len(msg.Tracking)+1)
		for k, v := range msg.Tracking {
			args[k] = v
		}
		if msg.ID != "" {
			args["message_id"] = msg.ID
		}
	}

	return sendgridPayload{
		Personalizations: []sendgridPersonalization{{
			To:         []sendgridEmail{{Email: msg.To, Name: msg.ToName}},
			CustomArgs: args,
		}},
		From:       sendgridEmail{Email: msg.From, Name: msg.FromName},
		Subject:    msg.Subject,
		Content:    content,
		Headers:    msg.Headers,
		Categories: categories,
	}
}
