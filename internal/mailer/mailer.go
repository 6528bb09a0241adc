// Package mailer delivers OTP mail. Requests enqueue messages and move on;
// a background worker sends with bounded retries. Delivery failure is never
// a flow failure.
package mailer

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends mail over authenticated SMTP.
type SMTPSender struct {
	server string // host:port
	user   string
	pass   string
	from   string
}

// NewSMTPSender returns a sender for the given server and credentials.
func NewSMTPSender(server, user, pass, from string) (*SMTPSender, error) {
	if server == "" || user == "" || pass == "" {
		return nil, fmt.Errorf("smtp configuration incomplete")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		return nil, fmt.Errorf("invalid smtp server %q (expected host:port): %w", server, err)
	}
	if from == "" {
		from = user
	}
	return &SMTPSender{server: server, user: user, pass: pass, from: from}, nil
}

func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	host, _, _ := net.SplitHostPort(s.server)
	auth := smtp.PlainAuth("", s.user, s.pass, host)

	payload := []byte("To: " + msg.To + "\r\n" +
		"Subject: " + msg.Subject + "\r\n\r\n" +
		msg.Body + "\r\n")

	if err := smtp.SendMail(s.server, auth, s.from, []string{msg.To}, payload); err != nil {
		return fmt.Errorf("send mail via %s: %w", s.server, err)
	}
	return nil
}

// RegistrationOTP builds the registration verification mail.
func RegistrationOTP(to, username, code string) Message {
	return Message{
		To:      to,
		Subject: "Verify your Chattrix account",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour verification code is: %s\nIt is valid for 5 minutes.\n\nIf you did not sign up, you can ignore this email.\n\nThe Chattrix Team",
			username, code,
		),
	}
}

// ResetOTP builds the password-reset mail.
func ResetOTP(to, code string) Message {
	return Message{
		To:      to,
		Subject: "Chattrix password reset code",
		Body: fmt.Sprintf(
			"Hi,\n\nYour password reset code is: %s\nIt is valid for 5 minutes.\n\nIf you did not request a reset, please secure your account.\n\nThe Chattrix Team",
			code,
		),
	}
}
