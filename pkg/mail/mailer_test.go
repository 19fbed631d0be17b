package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
	})
	if err == nil || !strings.Contains(err.Error(), "host is required") {
		t.Fatalf("expected host validation error, got %v", err)
	}

	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("expected disabled configuration to succeed: %v", err)
	}

	if mailer == nil {
		t.Fatal("expected mailer to be returned")
	}
}

func TestSMTPMailerSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To:      []string{"test@example.com"},
		Subject: "Test",
		Body:    "Hello",
	})
	if err != ErrSMTPDisabled {
		t.Fatalf("expected ErrSMTPDisabled, got %v", err)
	}
}

func TestFormatMessage(t *testing.T) {
	content := formatMessage("from@example.com", []string{"to@example.com"}, Message{Subject: "Subject\r\nBreak", Body: "Body"})
	if !strings.Contains(content, "From: from@example.com") {
		t.Fatalf("expected from header, got %q", content)
	}
	if !strings.Contains(content, "Subject: Subject  Break") {
		t.Fatalf("expected sanitised subject, got %q", content)
	}
	if !strings.Contains(content, "charset=UTF-8\r\n\r\nBody") {
		t.Fatalf("expected blank line between headers and body, got %q", content)
	}
}

func TestFormatMessageMultipart(t *testing.T) {
	content := formatMessage("from@example.com", []string{"to@example.com"}, Message{
		Subject:  "Hi",
		Body:     "plain",
		HTMLBody: "<p>html</p>",
	})
	if !strings.Contains(content, "multipart/alternative") {
		t.Fatalf("expected multipart content type, got %q", content)
	}
	if !strings.Contains(content, "text/plain; charset=UTF-8\r\n\r\nplain") {
		t.Fatalf("expected plain part, got %q", content)
	}
	if !strings.Contains(content, "text/html; charset=UTF-8\r\n\r\n<p>html</p>") {
		t.Fatalf("expected html part, got %q", content)
	}
	if !strings.Contains(content, "--"+mimeBoundary+"--") {
		t.Fatalf("expected closing boundary, got %q", content)
	}
}

func TestSMTPMailerSendDeliversThroughClient(t *testing.T) {
	client := &fakeSMTPClient{}
	mailer := &smtpMailer{
		cfg: SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 25, From: "no-reply@example.com"},
		dialFn: func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
			server, clientConn := net.Pipe()
			t.Cleanup(func() { _ = server.Close() })
			return clientConn, client, nil
		},
		authFn: func(smtpClient, SMTPSettings) error { return nil },
	}

	err := mailer.Send(context.Background(), Message{
		To:      []string{"alice@example.com", "alice@example.com"},
		Subject: "Confirm your email",
		Body:    "link",
	})
	if err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}

	if client.from != "no-reply@example.com" {
		t.Fatalf("unexpected sender %q", client.from)
	}
	if len(client.rcpts) != 1 || client.rcpts[0] != "alice@example.com" {
		t.Fatalf("expected deduplicated recipients, got %v", client.rcpts)
	}
	if !strings.HasSuffix(client.data.String(), "link") {
		t.Fatalf("expected body to be written, got %q", client.data.String())
	}
	if !client.quit {
		t.Fatal("expected QUIT to be issued")
	}
}

func TestSMTPMailerDefaultTimeout(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
		UseTLS:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	sm, ok := mailer.(*smtpMailer)
	if !ok {
		t.Fatalf("expected smtpMailer type")
	}

	if sm.cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to be assigned")
	}

	if sm.cfg.Timeout != 10*time.Second {
		t.Fatalf("expected timeout to be 10s, got %v", sm.cfg.Timeout)
	}
}

func TestSMTPMailerSendRequiresRecipients(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To:      []string{"   ", "\t"},
		Subject: "No recipients",
		Body:    "Body",
	})
	if err == nil || !strings.Contains(err.Error(), "at least one recipient") {
		t.Fatalf("expected missing recipient error, got %v", err)
	}
}

func TestSMTPMailerSendValidatesFromAddress(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "",
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		From: "invalid-from",
		To:   []string{"user@example.com"},
	})
	if err == nil || !strings.Contains(err.Error(), "invalid from address") {
		t.Fatalf("expected invalid from error, got %v", err)
	}
}

func TestSMTPMailerSendValidatesRecipientAddresses(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To: []string{"user@example.com", "bad-address"},
	})
	if err == nil || !strings.Contains(err.Error(), "invalid recipient address") {
		t.Fatalf("expected invalid recipient error, got %v", err)
	}
}

func TestUniqueAddresses(t *testing.T) {
	addresses := []string{"alice@example.com", "bob@example.com", " alice@example.com ", "", "bob@example.com"}
	result := uniqueAddresses(addresses)
	if len(result) != 2 {
		t.Fatalf("expected 2 unique addresses, got %d: %v", len(result), result)
	}
	if result[0] != "alice@example.com" || result[1] != "bob@example.com" {
		t.Fatalf("unexpected result order/content: %v", result)
	}
}

type fakeSMTPClient struct {
	from  string
	rcpts []string
	data  bytes.Buffer
	quit  bool
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (c *fakeSMTPClient) Mail(from string) error { c.from = from; return nil }
func (c *fakeSMTPClient) Rcpt(to string) error { c.rcpts = append(c.rcpts, to); return nil }
func (c *fakeSMTPClient) Data() (io.WriteCloser, error) { return nopWriteCloser{&c.data}, nil }
func (c *fakeSMTPClient) Quit() error { c.quit = true; return nil }
func (c *fakeSMTPClient) Close() error { return nil }
func (c *fakeSMTPClient) StartTLS(*tls.Config) error { return nil }
func (c *fakeSMTPClient) Auth(smtp.Auth) error { return nil }
func (c *fakeSMTPClient) Extension(string) (bool, string) { return false, "" }
