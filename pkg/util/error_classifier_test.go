package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"licensewatch/pkg/circuitbreaker"
	"licensewatch/pkg/smtptest"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifySMTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"breaker open", fmt.Errorf("send: %w", circuitbreaker.ErrCircuitBreakerOpen), SMTPErrorUnavailable},
		{"context deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), SMTPErrorTimeout},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, SMTPErrorTimeout},
		{"535 auth", &textproto.Error{Code: 535, Msg: "5.7.8 bad credentials"}, SMTPErrorAuth},
		{"550 mailbox", &textproto.Error{Code: 550, Msg: "mailbox unavailable"}, SMTPErrorRejected},
		{"421 busy", &textproto.Error{Code: 421, Msg: "try again later"}, SMTPErrorUnavailable},
		{"auth text", errors.New("SMTP AUTH failed: invalid credentials"), SMTPErrorAuth},
		{"refused", errors.New("dial tcp 127.0.0.1:25: connect: connection refused"), SMTPErrorUnavailable},
		{"other", errors.New("something odd"), SMTPErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySMTPError(tt.err))
		})
	}
}

func sendThroughRelay(t *testing.T, relay *smtptest.Relay, to string) error {
	t.Helper()
	client, err := mail.NewClient(relay.Host,
		mail.WithPort(relay.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername("mailer"),
		mail.WithPassword("secret"),
		mail.WithTLSPolicy(mail.NoTLS),
		mail.WithTimeout(5*time.Second),
	)
	require.NoError(t, err)

	m := mail.NewMsg()
	require.NoError(t, m.From("noreply@example.com"))
	require.NoError(t, m.To(to))
	m.Subject("License expiring")
	m.SetBodyString(mail.TypeTextPlain, "body")
	return client.DialAndSendWithContext(context.Background(), m)
}

func TestClassifySMTPError_RelayReplies(t *testing.T) {
	relay := smtptest.Start(t)

	assert.NoError(t, sendThroughRelay(t, relay, "ok@example.com"))

	err := sendThroughRelay(t, relay, "bad@example.com")
	require.Error(t, err)
	var sendErr *mail.SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, 550, sendErr.ErrorCode())
	assert.Equal(t, SMTPErrorRejected, ClassifySMTPError(err))

	err = sendThroughRelay(t, relay, "busy@example.com")
	require.Error(t, err)
	assert.Equal(t, SMTPErrorUnavailable, ClassifySMTPError(err))

	authRelay := smtptest.Start(t, smtptest.WithAuthFailure())
	err = sendThroughRelay(t, authRelay, "ok@example.com")
	require.Error(t, err)
	assert.Equal(t, SMTPErrorAuth, ClassifySMTPError(err))

	assert.Equal(t, 1, relay.Delivered())
}

func TestIsRetryableError(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{}

	tests := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"json", syntaxErr, false, "json_decode_error"},
		{"no rows", fmt.Errorf("get: %w", pgx.ErrNoRows), false, "not_found"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"conn", errors.New("connection reset by peer"), true, "db_connection_error"},
		{"unknown", errors.New("boom"), false, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tt.err)
			assert.Equal(t, tt.retryable, retryable)
			assert.Equal(t, tt.errType, errType)
		})
	}
}
