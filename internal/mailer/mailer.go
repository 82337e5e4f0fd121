// Package mailer sends transactional email over SMTP. It is the delivery
// transport behind the notification worker pool; retry policy lives in the
// dispatcher, not here.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/envsyncd/envsyncd/internal/notify"
)

// defaultTimeout bounds one SMTP exchange when the config leaves it unset.
const defaultTimeout = 10 * time.Second

// Config holds SMTP transport settings.
type Config struct {
	Host     string        // SMTP server host.
	Port     int           // SMTP server port.
	From     string        // Envelope sender address.
	Username string        // Optional auth user.
	Password string        // Optional auth password.
	Timeout  time.Duration // Per-send deadline.
}

// SMTPMailer implements notify.Transport over SMTP.
type SMTPMailer struct {
	cfg Config
}

// New constructs an SMTPMailer.
func New(cfg Config) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("mailer: missing smtp host")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("mailer: missing sender address")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &SMTPMailer{cfg: cfg}, nil
}

// Send delivers one notification job. A connection or write that outlives the
// deadline fails the attempt the same way an SMTP rejection does.
func (m *SMTPMailer) Send(ctx context.Context, job notify.JobHandle) error {
	to := strings.TrimSpace(job.Data["to"])
	if to == "" {
		return fmt.Errorf("mailer: job %s has no recipient", job.JobID)
	}

	subject, body := composeMessage(job)
	msg := buildMessage(m.cfg.From, to, subject, body)

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := net.Dialer{Timeout: m.cfg.Timeout}
	conn, errDial := dialer.DialContext(ctx, "tcp", addr)
	if errDial != nil {
		return fmt.Errorf("mailer: dial %s: %w", addr, errDial)
	}

	deadline := time.Now().Add(m.cfg.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	client, errClient := smtp.NewClient(conn, m.cfg.Host)
	if errClient != nil {
		_ = conn.Close()
		return fmt.Errorf("mailer: handshake: %w", errClient)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if errTLS := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); errTLS != nil {
			return fmt.Errorf("mailer: starttls: %w", errTLS)
		}
	}
	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if errAuth := client.Auth(auth); errAuth != nil {
			return fmt.Errorf("mailer: auth: %w", errAuth)
		}
	}

	if errMail := client.Mail(m.cfg.From); errMail != nil {
		return fmt.Errorf("mailer: mail from: %w", errMail)
	}
	if errRcpt := client.Rcpt(to); errRcpt != nil {
		return fmt.Errorf("mailer: rcpt to: %w", errRcpt)
	}
	w, errData := client.Data()
	if errData != nil {
		return fmt.Errorf("mailer: data: %w", errData)
	}
	if _, errWrite := w.Write(msg); errWrite != nil {
		return fmt.Errorf("mailer: write body: %w", errWrite)
	}
	if errClose := w.Close(); errClose != nil {
		return fmt.Errorf("mailer: finish body: %w", errClose)
	}
	return client.Quit()
}

// composeMessage maps a job to a subject and plain-text body.
func composeMessage(job notify.JobHandle) (string, string) {
	switch job.Name {
	case notify.NameWelcomeEmail:
		name := job.Data["user_name"]
		if name == "" {
			name = "there"
		}
		return "Welcome to envsyncd",
			fmt.Sprintf("Hi %s,\n\nYour account is ready. Install the editor extension and run a first sync to get started.\n", name)
	case notify.NameDeviceAdded:
		return "New device added to your account",
			fmt.Sprintf("A new device %q was registered on your account. If this wasn't you, remove it and rotate your credentials.\n", job.Data["device_name"])
	case notify.NameRepositoryDeleted:
		return "Repository deleted",
			fmt.Sprintf("The repository %q and all of its environment files were deleted.\n", job.Data["repository_name"])
	default:
		return string(job.Name), fmt.Sprintf("Notification %s.\n", job.JobID)
	}
}

// buildMessage assembles the RFC 5322 message bytes.
func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
