package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender delivers notification emails over plain SMTP. Local
// development points it at a mailcatcher such as MailHog.
type SMTPSender struct {
	addr string
	from string
}

// NewSMTPSender constructs a sender for the given host, port and
// envelope sender.
func NewSMTPSender(host string, port int, from string) *SMTPSender {
	return &SMTPSender{addr: fmt.Sprintf("%s:%d", host, port), from: from}
}

// Send delivers one message. The context is honored only up front; the
// SMTP dialogue itself is bounded by the server's own timeouts.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg.String()))
}
