package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/cryptexam/cryptexam-backend/internal/config"
	"github.com/rs/zerolog"
)

// SMTPNotifier delivers notifications over plain SMTP.
type SMTPNotifier struct {
	addr string
	auth smtp.Auth
	from string
	log  zerolog.Logger
}

// NewSMTPNotifier creates an SMTPNotifier from config.
func NewSMTPNotifier(cfg *config.Config, log zerolog.Logger) *SMTPNotifier {
	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPHost)
	}
	return &SMTPNotifier{
		addr: cfg.SMTPHost + ":" + cfg.SMTPPort,
		auth: auth,
		from: cfg.SMTPFrom,
		log:  log.With().Str("component", "smtp_notifier").Logger(),
	}
}

// Send delivers one HTML email. The context is honored before dialing;
// net/smtp itself does not support cancellation mid-send.
func (n *SMTPNotifier) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.from)
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	if err := smtp.SendMail(n.addr, n.auth, n.from, []string{recipient}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	n.log.Debug().Str("recipient", recipient).Str("subject", subject).Msg("Email sent")
	return nil
}
