package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirenhq/siren/pkg/models"
)

const (
	smtpSecurityNone     = "none"
	smtpSecurityStartTLS = "starttls"
	smtpSecurityTLS      = "tls"
)

type EmailSenderOptions struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	ReplyTo       string
	Security      string
	Timeout       time.Duration
	SkipTLSVerify bool
	Logger        *slog.Logger
}

// EmailSender delivers alerts over SMTP, one connection per recipient.
type EmailSender struct {
	host          string
	port          int
	username      string
	password      string
	from          string
	replyTo       string
	security      string
	timeout       time.Duration
	skipTLSVerify bool
	logger        *slog.Logger
}

func NewEmailSender(opts EmailSenderOptions) *EmailSender {
	security := strings.ToLower(strings.TrimSpace(opts.Security))
	switch security {
	case smtpSecurityNone, smtpSecurityStartTLS, smtpSecurityTLS:
	default:
		security = smtpSecurityStartTLS
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailSender{
		host:          strings.TrimSpace(opts.Host),
		port:          opts.Port,
		username:      strings.TrimSpace(opts.Username),
		password:      opts.Password,
		from:          strings.TrimSpace(opts.From),
		replyTo:       strings.TrimSpace(opts.ReplyTo),
		security:      security,
		timeout:       timeout,
		skipTLSVerify: opts.SkipTLSVerify,
		logger:        logger.With("component", "email_sender"),
	}
}

// Configured reports whether enough SMTP settings are present to attempt delivery.
func (s *EmailSender) Configured() bool {
	return s.host != "" && s.port != 0 && s.from != ""
}

func (s *EmailSender) Send(ctx context.Context, recipient models.Recipient, content Content) error {
	address := strings.TrimSpace(recipient.Email)
	if address == "" {
		return fmt.Errorf("recipient %d has no email address", recipient.ID)
	}
	if !s.Configured() {
		return fmt.Errorf("smtp is not configured")
	}
	if err := s.sendEmail(ctx, address, s.buildMessage(content, address)); err != nil {
		return fmt.Errorf("email delivery to %s failed: %w", address, err)
	}
	s.logger.Debug("email delivered", "alert_id", content.AlertID, "recipient_id", recipient.ID)
	return nil
}

func (s *EmailSender) buildMessage(content Content, recipient string) []byte {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(content.Severity)), content.Title)
	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", recipient),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
	}
	if s.replyTo != "" {
		headers = append(headers, fmt.Sprintf("Reply-To: %s", s.replyTo))
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + buildBody(content))
}

func buildBody(content Content) string {
	lines := []string{
		content.Title,
		"",
		content.Message,
		"",
		fmt.Sprintf("Severity: %s", strings.ToUpper(string(content.Severity))),
		fmt.Sprintf("Alert ID: %d", content.AlertID),
	}
	if !content.SentAt.IsZero() {
		lines = append(lines, fmt.Sprintf("Sent At: %s", content.SentAt.Format(time.RFC3339)))
	}
	if content.FromIncident != nil {
		lines = append(lines, fmt.Sprintf("Incident ID: %d", *content.FromIncident))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (s *EmailSender) sendEmail(ctx context.Context, recipient string, message []byte) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(s.from); err != nil {
		return err
	}
	if err := client.Rcpt(recipient); err != nil {
		return err
	}
	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write(message); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (s *EmailSender) connect(ctx context.Context) (*smtp.Client, error) {
	address := fmt.Sprintf("%s:%d", s.host, s.port)
	dialer := &net.Dialer{Timeout: s.timeout}
	var (
		conn net.Conn
		err  error
	)
	if s.security == smtpSecurityTLS {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: s.host, InsecureSkipVerify: s.skipTLSVerify}, // #nosec G402
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if s.security == smtpSecurityStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			_ = client.Close()
			return nil, fmt.Errorf("smtp server does not support STARTTLS")
		}
		tlsConfig := &tls.Config{ServerName: s.host, InsecureSkipVerify: s.skipTLSVerify} // #nosec G402
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}
