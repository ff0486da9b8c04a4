package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/logging"
)

func TestRetrySender(t *testing.T) {
	tests := []struct {
		name      string
		failFirst int
		attempts  int
		wantErr   bool
		wantCalls int
	}{
		{name: "succeeds first try", failFirst: 0, attempts: 3, wantCalls: 1},
		{name: "succeeds after retries", failFirst: 2, attempts: 3, wantCalls: 3},
		{name: "gives up", failFirst: 5, attempts: 3, wantErr: true, wantCalls: 3},
		{name: "zero attempts means one", failFirst: 1, attempts: 0, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			s := &RetrySender{
				Next: SenderFunc(func(context.Context, string, string, string) error {
					calls++
					if calls <= tt.failFirst {
						return errors.New("temporary failure")
					}
					return nil
				}),
				Attempts: tt.attempts,
				Backoff:  time.Millisecond,
			}

			err := s.Send(context.Background(), "a@x.com", "s", "b")
			if (err != nil) != tt.wantErr {
				t.Errorf("Send() error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetrySender_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &RetrySender{
		Next: SenderFunc(func(context.Context, string, string, string) error {
			cancel()
			return errors.New("temporary failure")
		}),
		Attempts: 5,
		Backoff:  time.Hour,
	}

	err := s.Send(ctx, "a@x.com", "s", "b")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(&buf, "info", "json")
	if err != nil {
		t.Fatal(err)
	}

	s := &LogSender{Logger: logger}
	if err := s.Send(context.Background(), "a@x.com", "hello", "body"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"to":"a@x.com"`) {
		t.Errorf("log output = %s, want recipient", buf.String())
	}
}

func TestNewSender(t *testing.T) {
	if _, ok := NewSender(config.SMTPConfig{}, nil).(*LogSender); !ok {
		t.Error("NewSender() without host should return *LogSender")
	}
	s, ok := NewSender(config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "f@x.com"}, nil).(*RetrySender)
	if !ok {
		t.Fatal("NewSender() with host should return *RetrySender")
	}
	if _, ok := s.Next.(*SMTPSender); !ok {
		t.Errorf("RetrySender.Next = %T, want *SMTPSender", s.Next)
	}
}

func TestCompose(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ev := Event{
		ID:          "ev-1",
		SubjectID:   7,
		SubjectName: "Ann",
		Observation: database.Observation{
			Location:    "Paris",
			DateContext: "last week",
			StartDate:   &start,
			SubmittedAt: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
			Note:        "near the station",
			ImageRef:    "sightings/abc.jpg",
		},
	}

	subject, body := Compose(ev)

	if subject != "facewatch: Ann was sighted" {
		t.Errorf("subject = %q", subject)
	}
	for _, want := range []string{
		"Subject:  Ann (#7)",
		"Location: Paris",
		"When:     last week",
		"Dates:    2026-01-01 to present",
		"Reported: 2026-02-03T04:05:06Z",
		"near the station",
		"Image: sightings/abc.jpg",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestCompose_OmitsEmptyFields(t *testing.T) {
	_, body := Compose(Event{SubjectID: 1, SubjectName: "Ann"})
	for _, unwanted := range []string{"Location:", "When:", "Dates:", "Image:"} {
		if strings.Contains(body, unwanted) {
			t.Errorf("body contains %q:\n%s", unwanted, body)
		}
	}
}
