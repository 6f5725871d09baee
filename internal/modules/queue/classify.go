package queue

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/kunaal-theme/notify/internal/pkg/mail"
)

// FailureClass decides what the worker does with a send error.
type FailureClass string

const (
	// FailureTransient errors may succeed on a later attempt.
	FailureTransient FailureClass = "transient"
	// FailurePermanent errors will not; the row goes terminal.
	FailurePermanent FailureClass = "permanent"
)

var smtpCodePattern = regexp.MustCompile(`\b([45])\d\d\b`)

var transientFragments = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"timeout",
	"temporarily",
	"temporary failure",
	"too many connections",
	"try again",
	"no such host",
	"network is unreachable",
}

// Classify buckets a delivery error. Network-shaped failures and SMTP 4xx
// responses are transient; SMTP 5xx, disabled transport and anything
// unrecognized are permanent. Unknown errors default to permanent so a
// misconfiguration cannot loop a row through the retry budget forever.
func Classify(err error) FailureClass {
	if err == nil {
		return FailurePermanent
	}
	if errors.Is(err, mail.ErrDisabled) {
		return FailurePermanent
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureTransient
	}

	msg := strings.ToLower(err.Error())
	if match := smtpCodePattern.FindStringSubmatch(msg); match != nil {
		if match[1] == "4" {
			return FailureTransient
		}
		return FailurePermanent
	}
	for _, fragment := range transientFragments {
		if strings.Contains(msg, fragment) {
			return FailureTransient
		}
	}
	return FailurePermanent
}
