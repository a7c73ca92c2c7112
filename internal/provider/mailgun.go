package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const (
	mailgunDefaultEndpoint = "https://api.mailgun.net"

	// Mailgun accepts at most three o:tag values per message.
	mailgunMaxTags = 3
)

// Mailgun sends newsletters through the Mailgun messages API.
type Mailgun struct {
	apiKey   string
	domain   string
	endpoint string
	client   HTTPClient
}

// NewMailgun creates a Mailgun provider from the given configuration.
func NewMailgun(cfg ProviderConfig, client HTTPClient) *Mailgun {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = mailgunDefaultEndpoint
	}
	return &Mailgun{apiKey: cfg.APIKey, domain: cfg.Domain, endpoint: endpoint, client: client}
}

func (m *Mailgun) GetName() string { return "mailgun" }

type mailgunResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Send posts the message as a form. The Mailgun id comes back in the JSON body.
func (m *Mailgun) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	resp, err := m.do(ctx, http.MethodPost, "/v3/"+m.domain+"/messages", []byte(m.buildForm(msg).Encode()))
	if err != nil {
		return nil, fmt.Errorf("mailgun: send request: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		return nil, ClassifyHTTPError("mailgun", resp.StatusCode, string(resp.Body))
	}

	// A 2xx with an unreadable body still means the message was queued.
	var parsed mailgunResponse
	_ = json.Unmarshal(resp.Body, &parsed)
	return accepted(parsed.ID, resp.StatusCode, map[string]string{"message": parsed.Message}), nil
}

// HealthCheck fetches the sending domain, which also validates the key.
func (m *Mailgun) HealthCheck(ctx context.Context) error {
	resp, err := m.do(ctx, http.MethodGet, "/v3/domains/"+m.domain, nil)
	if err != nil {
		return fmt.Errorf("mailgun: health check request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mailgun: health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (m *Mailgun) do(ctx context.Context, method, path string, body []byte) (*HTTPResponse, error) {
	creds := base64.StdEncoding.EncodeToString([]byte("api:" + m.apiKey))
	headers := map[string]string{"Authorization": "Basic " + creds}
	if body != nil {
		headers["Content-Type"] = "application/x-www-form-urlencoded"
	}
	return m.client.Do(ctx, &HTTPRequest{
		Method:  method,
		URL:     m.endpoint + path,
		Headers: headers,
		Body:    body,
	})
}

func (m *Mailgun) buildForm(msg *Message) url.Values {
	form := url.Values{}
	form.Set("from", formatAddress(msg.FromName, msg.From))
	form.Set("to", formatAddress(msg.ToName, msg.To))
	form.Set("subject", msg.Subject)
	if msg.TextBody != "" {
		form.Set("text", msg.TextBody)
	}
	if msg.HTMLBody != "" {
		form.Set("html", msg.HTMLBody)
	}

	for i, tag := range msg.Tags {
		if i == mailgunMaxTags {
			break
		}
		form.Add("o:tag", tag)
	}
	for k, v := range msg.Tracking {
		form.Set("v:"+k, v)
	}
	if msg.ID != "" {
		form.Set("v:message_id", msg.ID)
	}
	for k, v := range msg.Headers {
		form.Set("h:"+k, v)
	}
	return form
}
