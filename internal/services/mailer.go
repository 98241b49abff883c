package services

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/example/bookstore/internal/models"
)

// SMTPMailer sends plain-text purchase receipts.
type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
	from     string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer constructs an SMTPMailer.
func NewSMTPMailer(host, port, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		send:     smtp.SendMail,
	}
}

// SendEmail delivers a single plain-text message.
func (m *SMTPMailer) SendEmail(_ context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%s", m.host, m.port)
	msg := []byte(
		"From: " + m.from + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"Content-Type: text/plain; charset=\"utf-8\"\r\n" +
			"\r\n" +
			body + "\r\n")

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	if err := m.send(addr, auth, m.from, []string{to}, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// SendReceipt mails the buyer a summary of purchase.
func (m *SMTPMailer) SendReceipt(ctx context.Context, to string, purchase *models.Purchase) error {
	return m.SendEmail(ctx, to, "Your bookstore order receipt", receiptBody(purchase))
}

func receiptBody(p *models.Purchase) string {
	var b strings.Builder
	b.WriteString("Thank you for your order.\n\n")
	for _, item := range p.Items {
		fmt.Fprintf(&b, "%d x %s  %s\n", item.Quantity, item.Title, FormatPrice(item.LineTotal, p.Currency))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", FormatPrice(p.Total, p.Currency))
	fmt.Fprintf(&b, "Payment reference: %s\n", p.GatewayPaymentID)
	if p.Address != "" {
		fmt.Fprintf(&b, "Shipping to: %s\n", p.Address)
	}
	return b.String()
}
