package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/env"
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

// UserLookup resolves a user id to its record for notification addressing.
type UserLookup interface {
	GetByID(id string) (*models.User, error)
}

// BookingNotifier emails customers when their booking is confirmed.
// Implements the payments notifier contract; failures are logged upstream
// and never block the payment flow.
type BookingNotifier struct {
	users UserLookup
}

// NewBookingNotifier builds the notifier on top of the user repository.
func NewBookingNotifier(users UserLookup) *BookingNotifier {
	return &BookingNotifier{users: users}
}

// BookingConfirmed sends the confirmation mail with the check-in code.
func (n *BookingNotifier) BookingConfirmed(b *models.Booking) error {
	user, err := n.users.GetByID(b.CustomerID)
	if err != nil {
		return fmt.Errorf("looking up customer %s: %w", b.CustomerID, err)
	}

	subject := "Your booking is confirmed"
	body := fmt.Sprintf(
		"<p>Hi %s,</p>"+
			"<p>Your booking on <strong>%s</strong> is confirmed.</p>"+
			"<p>Check-in code: <strong>%s</strong></p>",
		user.Name,
		b.StartsAt.Format("Monday, 2 January 2006 at 15:04"),
		b.CheckinCode,
	)
	return SendMail(user.Email, subject, body)
}
