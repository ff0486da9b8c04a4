package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/constants"
)

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to, subject, body string) error

func (f SenderFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

// NewSender returns an SMTP sender with retries when SMTP is configured, and a
// LogSender otherwise.
func NewSender(cfg config.SMTPConfig, logger *slog.Logger) Sender {
	if !cfg.Enabled() {
		return &LogSender{Logger: logger}
	}
	return &RetrySender{
		Next:     NewSMTPSender(cfg, logger),
		Attempts: 3,
		Backoff:  500 * time.Millisecond,
	}
}

// LogSender records messages in the log instead of delivering them.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, to, subject, _ string) error {
	if s.Logger != nil {
		s.Logger.InfoContext(ctx, "notification (smtp disabled)", "to", to, "subject", subject)
	}
	return nil
}

// RetrySender retries a failed send with exponential backoff. The caller's
// context bounds all attempts together.
type RetrySender struct {
	Next     Sender
	Attempts int
	Backoff  time.Duration
}

func (s *RetrySender) Send(ctx context.Context, to, subject, body string) error {
	attempts := max(s.Attempts, 1)
	delay := s.Backoff

	var err error
	for i := range attempts {
		if err = s.Next.Send(ctx, to, subject, body); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return fmt.Errorf("send to %s: %w (last error: %w)", to, ctx.Err(), err)
		}
	}
	return fmt.Errorf("send to %s failed after %d attempts: %w", to, attempts, err)
}

// Compose renders the subject line and plain-text body for a match event.
func Compose(ev Event) (string, string) {
	subject := fmt.Sprintf("facewatch: %s was sighted", ev.SubjectName)

	var b strings.Builder
	fmt.Fprintf(&b, "A subject you are watching was sighted again.\n\n")
	fmt.Fprintf(&b, "Subject:  %s (#%d)\n", ev.SubjectName, ev.SubjectID)

	o := ev.Observation
	if o.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", o.Location)
	}
	if o.DateContext != "" {
		fmt.Fprintf(&b, "When:     %s\n", o.DateContext)
	}
	if o.StartDate != nil {
		end := constants.OpenEndLabel
		if o.EndDate != nil {
			end = o.EndDate.Format(constants.DateLayout)
		}
		fmt.Fprintf(&b, "Dates:    %s to %s\n", o.StartDate.Format(constants.DateLayout), end)
	}
	fmt.Fprintf(&b, "Reported: %s\n", o.SubmittedAt.UTC().Format(time.RFC3339))
	if o.Note != "" {
		fmt.Fprintf(&b, "\n%s\n", o.Note)
	}
	if o.ImageRef != "" {
		fmt.Fprintf(&b, "\nImage: %s\n", o.ImageRef)
	}
	return subject, b.String()
}
