// Package notifications mirrors seat alerts to email through the
// MailJet API.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/blackat5445/cisia-sentinel/sentinel/crawler"
	mailjet "github.com/mailjet/mailjet-apiv3-go"
)

const bookingURL = "https://testcisia.it/studenti_tolc/login_sso.php"

// mailSender is the slice of the MailJet client the notifier uses,
// split out so tests can stub the transport.
type mailSender interface {
	SendMailV31(data *mailjet.MessagesV31) (*mailjet.ResultsV31, error)
}

var _ mailSender = (*mailjet.Client)(nil)

type Config struct {
	PublicKey  string
	PrivateKey string
	From       string
	To         string
}

type EmailNotifier struct {
	client mailSender
	from   string
	to     string
}

func NewEmailNotifier(cfg Config) *EmailNotifier {
	return &EmailNotifier{
		client: mailjet.NewMailjetClient(cfg.PublicKey, cfg.PrivateKey),
		from:   cfg.From,
		to:     cfg.To,
	}
}

// SendAvailabilityAlert emails one seat table covering every exam that
// had availability this cycle.
func (n *EmailNotifier) SendAvailabilityAlert(ctx context.Context, seats []crawler.Seat) error {
	if len(seats) == 0 {
		return nil
	}

	subject := fmt.Sprintf("CISIA seats available (%d)", len(seats))
	info := []mailjet.InfoMessagesV31{{
		From:     &mailjet.RecipientV31{Email: n.from},
		To:       &mailjet.RecipientsV31{mailjet.RecipientV31{Email: n.to}},
		Subject:  subject,
		TextPart: formatText(seats),
		HTMLPart: formatHTML(seats),
	}}

	if _, err := n.client.SendMailV31(&mailjet.MessagesV31{Info: info}); err != nil {
		return fmt.Errorf("could not send mail: %w", err)
	}

	slog.Info("Availability email sent",
		slog.String("to", n.to),
		slog.Int("seats", len(seats)))
	return nil
}

// SendTest verifies the MailJet credentials with a plain message.
func (n *EmailNotifier) SendTest(ctx context.Context) error {
	info := []mailjet.InfoMessagesV31{{
		From:     &mailjet.RecipientV31{Email: n.from},
		To:       &mailjet.RecipientsV31{mailjet.RecipientV31{Email: n.to}},
		Subject:  "CISIA sentinel test",
		TextPart: "Email alerts are configured correctly.",
	}}
	if _, err := n.client.SendMailV31(&mailjet.MessagesV31{Info: info}); err != nil {
		return fmt.Errorf("could not send test mail: %w", err)
	}
	return nil
}

func formatText(seats []crawler.Seat) string {
	var b strings.Builder
	b.WriteString("CISIA seats available:\n\n")
	for _, s := range seats {
		fmt.Fprintf(&b, "[%s] %s - %s (%s) | seats: %s | date: %s | deadline: %s\n",
			s.Exam, s.University, s.City, s.Region, s.Seats, s.Date, s.Deadline)
	}
	fmt.Fprintf(&b, "\nBook now: %s\n", bookingURL)
	return b.String()
}

func formatHTML(seats []crawler.Seat) string {
	var rows strings.Builder
	for _, s := range seats {
		fmt.Fprintf(&rows,
			"<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
			s.Exam, s.Format, s.University, s.City, s.Region, s.Seats, s.Date, s.Deadline)
	}

	return fmt.Sprintf(`<html><body style="font-family:Arial,sans-serif;max-width:900px;margin:0 auto;">
<h2>CISIA seats available</h2>
<table border="1" cellpadding="6" style="border-collapse:collapse;width:100%%;">
<thead><tr><th>Exam</th><th>Format</th><th>University</th><th>City</th><th>Region</th><th>Seats</th><th>Date</th><th>Deadline</th></tr></thead>
<tbody>%s</tbody>
</table>
<p><a href="%s">Book now</a></p>
</body></html>`, rows.String(), bookingURL)
}
