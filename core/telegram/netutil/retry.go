// Package netutil classifies Bot API failures for retry decisions.
package netutil

import (
	"context"
	"errors"
	"net"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Undelivered reports whether a failed Bot API call certainly did not reach
// the user, so repeating it cannot produce a duplicate message: the
// connection was never established, or Telegram answered 429.
//
// Timeouts are excluded. The request may have been processed before the
// response was lost.
func Undelivered(err error) bool {
	if err == nil {
		return false
	}
	return RetryAfter(err) > 0 || IsDialError(err)
}

// IsTimeout reports whether err is a network or deadline timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsDialError reports whether err happened before a connection was established.
func IsDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// RetryAfter returns the wait Telegram asked for on a 429 response.
func RetryAfter(err error) time.Duration {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second
	}
	return 0
}
