package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/channelpass/channelpass/internal/pkg/env"
)

// SendMail sends an email via SMTP
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}

// SendInviteMail delivers the channel invite link after a successful
// checkout.
func SendInviteMail(to, channelName, inviteLink string) error {
	subject := "Your channel access is ready"
	body := fmt.Sprintf(
		"<p>Thanks for your purchase!</p>"+
			"<p>Here is your personal invite link for <strong>%s</strong>:</p>"+
			"<p><a href=\"%s\">%s</a></p>"+
			"<p>The link is valid for 24 hours and can be used once.</p>",
		channelName, inviteLink, inviteLink,
	)
	return SendMail(to, subject, body)
}
