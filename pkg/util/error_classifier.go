package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/textproto"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/wneessen/go-mail"

	"licensewatch/pkg/circuitbreaker"
)

// SMTP error classes returned by ClassifySMTPError
const (
	SMTPErrorAuth        = "auth"
	SMTPErrorTimeout     = "timeout"
	SMTPErrorRejected    = "rejected"
	SMTPErrorUnavailable = "unavailable"
	SMTPErrorUnknown     = "unknown"
)

// ClassifySMTPError maps a transport error onto one of the SMTPError* classes.
func ClassifySMTPError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return SMTPErrorUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return SMTPErrorTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return SMTPErrorTimeout
	}

	// go-mail reports MAIL/RCPT/DATA replies as *mail.SendError, which
	// does not unwrap to the underlying *textproto.Error.
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		if class := classifyReplyCode(sendErr.ErrorCode()); class != "" {
			return class
		}
		if sendErr.IsTemp() {
			return SMTPErrorUnavailable
		}
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if class := classifyReplyCode(protoErr.Code); class != "" {
			return class
		}
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "auth") || strings.Contains(errStr, "username and password"):
		return SMTPErrorAuth
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return SMTPErrorTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return SMTPErrorUnavailable
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") || strings.Contains(errStr, "dial") {
		return SMTPErrorUnavailable
	}

	return SMTPErrorUnknown
}

func classifyReplyCode(code int) string {
	switch {
	case code == 530 || code == 534 || code == 535 || code == 454:
		return SMTPErrorAuth
	case code >= 500 && code < 600:
		return SMTPErrorRejected
	case code >= 400 && code < 500:
		return SMTPErrorUnavailable
	}
	return ""
}

// IsRetryableError decides whether a failed MQ message should be requeued.
// Returns (isRetryable, errorType).
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false, "not_found"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		return true, "db_connection_error"
	}

	return false, "unknown_error"
}
