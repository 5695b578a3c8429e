package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	netmail "net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bjarke-xyz/retirement-watch/internal/config"
	"github.com/bjarke-xyz/retirement-watch/internal/core"
	"github.com/bjarke-xyz/retirement-watch/internal/metrics"
	"github.com/jhillyerd/enmime"
	"github.com/sethvargo/go-retry"
)

const mailType = "announcement"

type MailService struct {
	cfg       *config.Config
	log       *slog.Logger
	retryBase time.Duration
}

func NewMail(cfg *config.Config, log *slog.Logger) *MailService {
	return &MailService{cfg: cfg, log: log, retryBase: time.Second}
}

// Send delivers msg over SMTP. Every attempt is bounded by SEND_TIMEOUT, transient
// failures are retried up to RETRY_ATTEMPTS times. With SMTP_TEST set the message
// is only logged. Returned errors wrap core.ErrNotificationFailure.
func (m *MailService) Send(ctx context.Context, msg core.NotificationMessage) error {
	raw, err := buildMessage(msg)
	if err != nil {
		metrics.MailErrorInc(mailType)
		return fmt.Errorf("%w: failed to build message: %v", core.ErrNotificationFailure, err)
	}
	if m.cfg.SmtpTest {
		m.log.InfoContext(ctx, "SMTP_TEST is set, not sending mail",
			"recipient", msg.Recipient,
			"subject", msg.Subject,
			"message", string(raw))
		return nil
	}

	from, err := parseAddress(msg.Sender)
	if err != nil {
		metrics.MailErrorInc(mailType)
		return fmt.Errorf("%w: invalid sender: %v", core.ErrNotificationFailure, err)
	}
	to, err := parseAddress(msg.Recipient)
	if err != nil {
		metrics.MailErrorInc(mailType)
		return fmt.Errorf("%w: invalid recipient: %v", core.ErrNotificationFailure, err)
	}

	attempts := m.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	attempt := 0
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(m.retryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		sendCtx := ctx
		if m.cfg.SendTimeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(ctx, m.cfg.SendTimeout)
			defer cancel()
		}
		err := m.deliver(sendCtx, from.Address, to.Address, raw)
		if err != nil {
			m.log.WarnContext(ctx, "Mail send attempt failed",
				"error", err,
				"recipient", msg.Recipient,
				"attempt", attempt)
			if isPermanent(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		metrics.MailErrorInc(mailType)
		return fmt.Errorf("%w: failed to send mail to %v after %v attempts: %v", core.ErrNotificationFailure, msg.Recipient, attempt, err)
	}
	metrics.MailSentInc(mailType)
	m.log.InfoContext(ctx, "Mail is sent",
		"recipient", msg.Recipient,
		"subject", msg.Subject,
		"attempts", attempt)
	return nil
}

func (m *MailService) deliver(ctx context.Context, from string, to string, raw []byte) error {
	addr := net.JoinHostPort(m.cfg.SmtpHost, m.cfg.SmtpPort)
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial %v: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return fmt.Errorf("failed to set deadline on %v: %w", addr, err)
		}
	}
	c, err := smtp.NewClient(conn, m.cfg.SmtpHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to greet %v: %w", addr, err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.SmtpHost}); err != nil {
			return fmt.Errorf("failed to start tls: %w", err)
		}
	}
	if m.cfg.SmtpUsername != "" {
		auth := smtp.PlainAuth("", m.cfg.SmtpUsername, m.cfg.SmtpPassword, m.cfg.SmtpHost)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO rejected: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}
	return c.Quit()
}

func buildMessage(msg core.NotificationMessage) ([]byte, error) {
	from, err := parseAddress(msg.Sender)
	if err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	to, err := parseAddress(msg.Recipient)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	part, err := enmime.Builder().
		From(from.Name, from.Address).
		To(to.Name, to.Address).
		Subject(msg.Subject).
		Date(time.Now()).
		HTML([]byte(msg.HTMLBody)).
		Text([]byte(plainText(msg.HTMLBody))).
		Build()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// plainText is the text/plain alternative of an html body, one line per paragraph.
func plainText(htmlBody string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return htmlBody
	}
	var lines []string
	doc.Find("h1, p").Each(func(_ int, s *goquery.Selection) {
		line := strings.TrimSpace(s.Text())
		if href, ok := s.Find("a").Attr("href"); ok {
			line = fmt.Sprintf("%v (%v)", line, href)
		}
		if line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.Join(lines, "\n\n")
}

func parseAddress(s string) (*netmail.Address, error) {
	return netmail.ParseAddress(strings.TrimSpace(s))
}

// isPermanent reports 5xx replies, which will not succeed on a retry.
func isPermanent(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 500
	}
	return false
}
