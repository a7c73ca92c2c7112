package provider

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

type fakeSMTPClient struct {
	authErr  error
	sendErr  error
	authed   bool
	from     string
	to       []string
	data     string
	quitted  bool
	closed   bool
	noopDone bool
}

func (f *fakeSMTPClient) Auth(_ sasl.Client) error {
	f.authed = true
	return f.authErr
}

func (f *fakeSMTPClient) SendMail(from string, to []string, r *bytes.Reader) error {
	f.from = from
	f.to = to
	b, _ := io.ReadAll(r)
	f.data = string(b)
	return f.sendErr
}

func (f *fakeSMTPClient) Noop() error  { f.noopDone = true; return nil }
func (f *fakeSMTPClient) Quit() error  { f.quitted = true; return nil }
func (f *fakeSMTPClient) Close() error { f.closed = true; return nil }

func newTestSMTP(cfg ProviderConfig, client *fakeSMTPClient, dialErr error) (*SMTP, *string) {
	var dialed string
	s := NewSMTP(cfg)
	s.dial = func(addr string, _ *tls.Config, _ time.Duration) (smtpClient, error) {
		dialed = addr
		if dialErr != nil {
			return nil, dialErr
		}
		return client, nil
	}
	return s, &dialed
}

func TestSMTP_Send(t *testing.T) {
	client := &fakeSMTPClient{}
	s, dialed := newTestSMTP(ProviderConfig{
		Type:         "smtp",
		SMTPHost:     "relay.example.com",
		SMTPUsername: "user",
		SMTPPassword: "test-value",
	}, client, nil)

	result, err := s.Send(context.Background(), &Message{
		ID:       "c1_s1",
		From:     "news@example.com",
		To:       "reader@example.com",
		Subject:  "Hello",
		HTMLBody: "<p>Hi</p>",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if *dialed != "relay.example.com:587" {
		t.Errorf("expected default port 587, dialed %s", *dialed)
	}
	if !client.authed {
		t.Error("expected SASL auth when username is set")
	}
	if client.from != "news@example.com" {
		t.Errorf("unexpected envelope from %s", client.from)
	}
	if len(client.to) != 1 || client.to[0] != "reader@example.com" {
		t.Errorf("unexpected envelope to %v", client.to)
	}
	if !strings.Contains(client.data, "Content-Type: text/html") {
		t.Errorf("expected html body in data, got:\n%s", client.data)
	}
	if !client.quitted {
		t.Error("expected QUIT after successful send")
	}
	if result.ProviderMessageID != "smtp-c1_s1" {
		t.Errorf("unexpected message id %s", result.ProviderMessageID)
	}
}

func TestSMTP_Send_NoAuthWithoutUsername(t *testing.T) {
	client := &fakeSMTPClient{}
	s, _ := newTestSMTP(ProviderConfig{SMTPHost: "relay.example.com", SMTPPort: 25}, client, nil)

	if _, err := s.Send(context.Background(), &Message{From: "f@example.com", To: "t@example.com", TextBody: "x"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client.authed {
		t.Error("expected no auth without username")
	}
}

func TestSMTP_Send_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		sendErr       error
		dialErr       error
		wantPermanent bool
	}{
		{
			name:          "550 mailbox unavailable is permanent",
			sendErr:       &smtp.SMTPError{Code: 550, Message: "mailbox unavailable"},
			wantPermanent: true,
		},
		{
			name:          "552 mailbox full is transient",
			sendErr:       &smtp.SMTPError{Code: 552, EnhancedCode: smtp.EnhancedCode{5, 2, 2}, Message: "mailbox full"},
			wantPermanent: false,
		},
		{
			name:          "451 local error is transient",
			sendErr:       &smtp.SMTPError{Code: 451, Message: "try again later"},
			wantPermanent: false,
		},
		{
			name:          "dial failure is transient",
			dialErr:       errors.New("connection refused"),
			wantPermanent: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSMTPClient{sendErr: tt.sendErr}
			s, _ := newTestSMTP(ProviderConfig{SMTPHost: "relay.example.com"}, client, tt.dialErr)

			_, err := s.Send(context.Background(), &Message{From: "f@example.com", To: "t@example.com", TextBody: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if IsPermanent(err) != tt.wantPermanent {
				t.Errorf("expected permanent=%v, got %v (%v)", tt.wantPermanent, IsPermanent(err), err)
			}
		})
	}
}

func TestSMTP_HealthCheck(t *testing.T) {
	client := &fakeSMTPClient{}
	s, _ := newTestSMTP(ProviderConfig{SMTPHost: "relay.example.com"}, client, nil)

	if err := s.HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !client.noopDone {
		t.Error("expected NOOP to be issued")
	}
}

// silentRelay accepts connections and never sends a greeting.
func silentRelay(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan struct{})
	t.Cleanup(func() {
		close(done)
		ln.Close()
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				<-done
				conn.Close()
			}()
		}
	}()
	return ln.Addr().String()
}

func TestDialSMTP_SilentRelayTimesOut(t *testing.T) {
	tests := []struct {
		name string
		tls  *tls.Config
	}{
		{name: "plain", tls: nil},
		{name: "starttls", tls: &tls.Config{ServerName: "relay.example.com", MinVersion: tls.VersionTLS12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := silentRelay(t)

			start := time.Now()
			c, err := dialSMTP(addr, tt.tls, 100*time.Millisecond)
			if err == nil {
				c.Close()
				t.Fatal("expected error from a relay that never greets")
			}
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Errorf("dial took %v, want it bounded by the timeout", elapsed)
			}
		})
	}
}

func TestDialSMTP_Greeting(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		_, _ = io.WriteString(conn, "220 relay.example.com ready\r\n")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			switch cmd := strings.ToUpper(strings.TrimSpace(line)); {
			case strings.HasPrefix(cmd, "EHLO"):
				_, _ = io.WriteString(conn, "250 relay.example.com\r\n")
			case cmd == "NOOP":
				_, _ = io.WriteString(conn, "250 ok\r\n")
			case cmd == "QUIT":
				_, _ = io.WriteString(conn, "221 bye\r\n")
				return
			}
		}
	}()

	c, err := dialSMTP(ln.Addr().String(), nil, time.Second)
	if err != nil {
		t.Fatalf("dialSMTP() error = %v", err)
	}
	defer c.Close()

	// Deadlines from the handshake must not leak into later commands.
	time.Sleep(1200 * time.Millisecond)
	if err := c.Noop(); err != nil {
		t.Fatalf("Noop() after handshake error = %v", err)
	}
	if err := c.Quit(); err != nil {
		t.Errorf("Quit() error = %v", err)
	}
}

func TestNewSMTP_DefaultTimeout(t *testing.T) {
	s := NewSMTP(ProviderConfig{SMTPHost: "relay.example.com"})
	if s.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", s.timeout, defaultTimeout)
	}
}
