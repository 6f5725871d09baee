package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/kunaal-theme/notify/internal/pkg/mail"
)

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "dial tcp: handshake problem" }
func (fakeNetError) Timeout() bool   { return true }
func (fakeNetError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"nil", nil, FailurePermanent},
		{"mail disabled", mail.ErrDisabled, FailurePermanent},
		{"wrapped mail disabled", fmt.Errorf("send: %w", mail.ErrDisabled), FailurePermanent},
		{"context deadline", context.DeadlineExceeded, FailureTransient},
		{"context canceled", context.Canceled, FailureTransient},
		{"net.Error", fakeNetError{}, FailureTransient},
		{"wrapped net.Error", fmt.Errorf("smtp: %w", fakeNetError{}), FailureTransient},
		{"net.OpError", &net.OpError{Op: "dial", Err: errors.New("refused")}, FailureTransient},
		{"smtp 421 greylisting", errors.New("421 4.7.0 try again later"), FailureTransient},
		{"smtp 450 mailbox busy", errors.New("450 mailbox unavailable"), FailureTransient},
		{"smtp 550 no such user", errors.New("550 5.1.1 user unknown"), FailurePermanent},
		{"smtp 554 rejected", errors.New("554 message rejected"), FailurePermanent},
		{"connection refused text", errors.New("dial tcp 127.0.0.1:25: connection refused"), FailureTransient},
		{"io timeout text", errors.New("read: i/o timeout"), FailureTransient},
		{"unknown error", errors.New("something odd happened"), FailurePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 5 * time.Minute},
		{2, 10 * time.Minute},
		{3, 20 * time.Minute},
		{4, 40 * time.Minute},
	}
	for _, tt := range tests {
		if got := retryBackoff(tt.attempts); got != tt.want {
			t.Errorf("retryBackoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}
