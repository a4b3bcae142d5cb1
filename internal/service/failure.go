package service

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// ErrHostNotAllowed is returned when proxy.allowed_hosts is set and the target is not in it.
var ErrHostNotAllowed = errors.New("upstream host is not in the allowlist")

// failureMessage is the "error" field of every failure body.
const failureMessage = "proxy request failed"

// timestampLayout is ISO-8601 in UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ProxyFailure is the single error kind of the forwarding pipeline: the
// upstream request could not be completed. Upstream non-2xx statuses are not
// failures.
type ProxyFailure struct {
	Target string
	Err    error
	Time   time.Time
}

func (f *ProxyFailure) Error() string {
	return fmt.Sprintf("proxy %s: %v", f.Target, f.Err)
}

func (f *ProxyFailure) Unwrap() error { return f.Err }

// Reason classifies the failure with a bounded label for logs and metrics.
func (f *ProxyFailure) Reason() string {
	err := f.Err
	if errors.Is(err, ErrHostNotAllowed) {
		return "host_not_allowed"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}

	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
	)
	if errors.As(err, &verifyErr) || errors.As(err, &recordErr) || errors.As(err, &alertErr) ||
		errors.As(err, &unknownAuth) || errors.As(err, &hostErr) {
		return "tls"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Op == "parse" {
		return "invalid_request"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection"
	}

	return "other"
}

// ErrorBody is the JSON document returned with status 500 on a ProxyFailure.
type ErrorBody struct {
	Error     string `json:"error"`
	Details   string `json:"details"`
	Target    string `json:"target"`
	Timestamp string `json:"timestamp,omitempty"`
}

// NewErrorBody renders f. The timestamp is included only when withTimestamp is set.
func NewErrorBody(f *ProxyFailure, withTimestamp bool) ErrorBody {
	body := ErrorBody{
		Error:   failureMessage,
		Details: f.Err.Error(),
		Target:  f.Target,
	}
	if withTimestamp {
		body.Timestamp = f.Time.UTC().Format(timestampLayout)
	}
	return body
}
