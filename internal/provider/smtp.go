package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

const smtpDefaultPort = 587

// smtpDialer opens a client connection to a relay. Swapped in tests.
type smtpDialer func(addr string, tlsConfig *tls.Config, timeout time.Duration) (smtpClient, error)

// smtpClient is the subset of *smtp.Client used by the provider.
type smtpClient interface {
	Auth(a sasl.Client) error
	SendMail(from string, to []string, r *bytes.Reader) error
	Noop() error
	Quit() error
	Close() error
}

// goSMTPClient adapts *smtp.Client to smtpClient.
type goSMTPClient struct {
	*smtp.Client
}

func (c goSMTPClient) SendMail(from string, to []string, r *bytes.Reader) error {
	return c.Client.SendMail(from, to, r)
}

// handshakeConn caps every deadline the client sets at limit while limit is
// non-zero, so the greeting and STARTTLS cannot outlive the dial timeout.
type handshakeConn struct {
	net.Conn
	limit time.Time
}

func (c *handshakeConn) SetDeadline(t time.Time) error {
	if !c.limit.IsZero() && (t.IsZero() || t.After(c.limit)) {
		t = c.limit
	}
	return c.Conn.SetDeadline(t)
}

// dialSMTP connects to addr and completes the greeting, plus STARTTLS when
// tlsConfig is set, within timeout.
func dialSMTP(addr string, tlsConfig *tls.Config, timeout time.Duration) (smtpClient, error) {
	raw, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	conn := &handshakeConn{Conn: raw, limit: time.Now().Add(timeout)}

	var c *smtp.Client
	if tlsConfig != nil {
		c, err = smtp.NewClientStartTLS(conn, tlsConfig)
	} else {
		c = smtp.NewClient(conn)
		if err = c.Hello("localhost"); err != nil {
			c.Close()
		}
	}
	if err != nil {
		raw.Close()
		return nil, err
	}

	conn.limit = time.Time{}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		c.Close()
		return nil, err
	}
	c.CommandTimeout = timeout
	c.SubmissionTimeout = timeout
	return goSMTPClient{c}, nil
}

// SMTP implements the Provider interface by relaying through an SMTP
// submission server, authenticating with SASL PLAIN when credentials are set.
type SMTP struct {
	addr     string
	host     string
	username string
	password string
	startTLS bool
	timeout  time.Duration
	dial     smtpDialer
}

// NewSMTP creates an SMTP relay provider from the given configuration.
func NewSMTP(cfg ProviderConfig) *SMTP {
	port := cfg.SMTPPort
	if port == 0 {
		port = smtpDefaultPort
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SMTP{
		addr:     net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(port)),
		host:     cfg.SMTPHost,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		startTLS: cfg.SMTPStartTLS,
		timeout:  timeout,
		dial:     dialSMTP,
	}
}

func (s *SMTP) GetName() string { return "smtp" }

// Send submits the message to the relay. SMTP 5xx replies are permanent
// failures; everything else is transient.
func (s *SMTP) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	raw, err := buildMIME(msg, time.Now())
	if err != nil {
		return nil, fmt.Errorf("smtp: build message: %w", err)
	}

	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		done <- c.SendMail(msg.From, []string{msg.To}, bytes.NewReader(raw))
	}()

	select {
	case <-ctx.Done():
		c.Close()
		return nil, fmt.Errorf("smtp: send: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, ClassifySMTPError(err)
		}
	}
	_ = c.Quit()

	return &DeliveryResult{
		ProviderMessageID: "smtp-" + msg.ID,
		Status:            StatusSent,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"relay": s.addr},
	}, nil
}

// HealthCheck dials the relay, authenticates and issues NOOP.
func (s *SMTP) HealthCheck(_ context.Context) error {
	c, err := s.connect()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Noop(); err != nil {
		return fmt.Errorf("smtp: health check: %w", err)
	}
	return c.Quit()
}

func (s *SMTP) connect() (smtpClient, error) {
	var tlsConfig *tls.Config
	if s.startTLS {
		tlsConfig = &tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}
	}

	c, err := s.dial(s.addr, tlsConfig, s.timeout)
	if err != nil {
		return nil, &ProviderError{Provider: "smtp", Message: "dial " + s.addr + ": " + err.Error()}
	}

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			c.Close()
			return nil, ClassifySMTPError(fmt.Errorf("auth: %w", err))
		}
	}
	return c, nil
}
