package notifications

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/blackat5445/cisia-sentinel/sentinel/crawler"
	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
	mailjet "github.com/mailjet/mailjet-apiv3-go"
)

type fakeMailer struct {
	sent []*mailjet.MessagesV31
	err  error
}

func (f *fakeMailer) SendMailV31(data *mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, data)
	return &mailjet.ResultsV31{}, nil
}

func testSeats() []crawler.Seat {
	return []crawler.Seat{
		{Exam: exams.TOLCI, Format: "TOLC@UNI", University: "Politecnico di Milano", Region: "Lombardia", City: "Milano", Seats: "5", Date: "2026-03-01", Deadline: "2026-02-20"},
	}
}

func TestSendAvailabilityAlert(t *testing.T) {
	mailer := &fakeMailer{}
	n := &EmailNotifier{client: mailer, from: "bot@example.com", to: "me@example.com"}

	if err := n.SendAvailabilityAlert(context.Background(), testSeats()); err != nil {
		t.Fatal(err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("sent = %d messages", len(mailer.sent))
	}

	msg := mailer.sent[0].Info[0]
	if msg.From.Email != "bot@example.com" || (*msg.To)[0].Email != "me@example.com" {
		t.Errorf("addressing wrong: %+v", msg)
	}
	if !strings.Contains(msg.TextPart, "Politecnico di Milano") {
		t.Errorf("text part missing seat row: %q", msg.TextPart)
	}
	if !strings.Contains(msg.HTMLPart, "<td>Milano</td>") || !strings.Contains(msg.HTMLPart, bookingURL) {
		t.Error("html part incomplete")
	}
}

func TestSendAvailabilityAlertNoSeats(t *testing.T) {
	mailer := &fakeMailer{}
	n := &EmailNotifier{client: mailer, from: "a@b.c", to: "d@e.f"}

	if err := n.SendAvailabilityAlert(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if len(mailer.sent) != 0 {
		t.Error("empty cycle sent an email")
	}
}

func TestSendAvailabilityAlertError(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("401")}
	n := &EmailNotifier{client: mailer, from: "a@b.c", to: "d@e.f"}

	if err := n.SendAvailabilityAlert(context.Background(), testSeats()); err == nil {
		t.Fatal("transport error swallowed")
	}
}
