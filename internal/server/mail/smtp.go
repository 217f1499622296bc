package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"

	"github.com/avelancourt/passguard/internal/common"
	"github.com/avelancourt/passguard/internal/logging"
)

// smtpSendMail is a seam for testing smtp.SendMail.
var smtpSendMail = smtp.SendMail

// SMTPMailer sends messages through a plain SMTP relay. Auth is optional:
// with an empty user the relay is contacted unauthenticated, which is what
// local development relays expect.
type SMTPMailer struct {
	addr     string
	from     string
	user     string
	password string
	logger   logging.Logger
}

func NewSMTPMailer(addr, from, user, password string, logger logging.Logger) *SMTPMailer {
	return &SMTPMailer{addr: addr, from: from, user: user, password: password, logger: logger}
}

func (m *SMTPMailer) Send(ctx context.Context, to string, subject string, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.password, authHost(m.addr))
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		m.from, to, subject, body)

	if err := smtpSendMail(m.addr, auth, m.from, []string{to}, []byte(msg)); err != nil {
		m.logger.Error(ctx, "smtp send failed", "to", to, "error", err)
		return fmt.Errorf("%w: %v", common.ErrMailNotSent, err)
	}
	return nil
}

// authHost extracts the server name PLAIN auth is scoped to. SplitHostPort
// strips the brackets off IPv6 literals like "[::1]:1025"; an addr with no
// port is used as the host verbatim.
func authHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
