package provider

import (
	"errors"
	"strings"

	"github.com/emersion/go-smtp"
)

// ProviderError is a send failure reported by a mail provider.
type ProviderError struct {
	Provider string
	// Code is the HTTP status for API providers and the reply code for SMTP
	// relays. Zero when the failure happened before any reply.
	Code    int
	Message string
	// Permanent is set when resending the same message cannot succeed, such
	// as a rejected recipient or revoked credentials.
	Permanent bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Message
}

// IsPermanent reports whether err wraps a permanent ProviderError.
func IsPermanent(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Permanent
	}
	return false
}

var (
	recipientIndicators = []string{
		"invalid recipient",
		"invalid email",
		"invalid address",
		"does not exist",
		"mailbox not found",
		"recipient rejected",
		"unknown user",
	}
	accountIndicators = []string{
		"invalid api key",
		"authentication failed",
		"account suspended",
		"account disabled",
	}
)

// ClassifyHTTPError turns an API provider response into a ProviderError, or
// nil for a 2xx status. Throttling and server errors are transient unless
// the body blames the sending account.
func ClassifyHTTPError(providerName string, statusCode int, body string) *ProviderError {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	pe := &ProviderError{Provider: providerName, Code: statusCode, Message: body}
	switch {
	case statusCode == 408 || statusCode == 429:
		// Throttled or timed out.
	case statusCode >= 500:
		pe.Permanent = mentions(body, accountIndicators)
	case statusCode == 400 || statusCode == 422:
		pe.Permanent = mentions(body, recipientIndicators) || mentions(body, accountIndicators)
	default:
		pe.Permanent = statusCode >= 400
	}
	return pe
}

// ClassifySMTPError turns a relay failure into a ProviderError. 5xx replies
// are permanent except a full mailbox (enhanced status 5.2.2), which clears
// on its own. Failures without a reply are transient.
func ClassifySMTPError(err error) *ProviderError {
	pe := &ProviderError{Provider: "smtp", Message: err.Error()}

	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) {
		return pe
	}
	pe.Code = smtpErr.Code
	pe.Permanent = smtpErr.Code >= 500 && smtpErr.Code < 600 &&
		smtpErr.EnhancedCode != (smtp.EnhancedCode{5, 2, 2})
	return pe
}

func mentions(body string, indicators []string) bool {
	lower := strings.ToLower(body)
	for _, s := range indicators {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
