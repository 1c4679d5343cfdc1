package mailer

import (
	"errors"
	"fmt"

	"licensewatch/pkg/util"
)

var ErrMissingCredentials = errors.New("smtp credentials are not configured")

// Kind classifies a failed send.
type Kind string

const (
	KindAuth        Kind = util.SMTPErrorAuth
	KindTimeout     Kind = util.SMTPErrorTimeout
	KindRejected    Kind = util.SMTPErrorRejected
	KindUnavailable Kind = util.SMTPErrorUnavailable
	KindNoRecipient Kind = "no_recipient"
	KindUnknown     Kind = util.SMTPErrorUnknown
)

// SendError is returned for every failed delivery attempt.
type SendError struct {
	Kind Kind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("smtp send failed (%s): %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// NewSendError wraps err, classifying it by its transport cause.
func NewSendError(err error) *SendError {
	var se *SendError
	if errors.As(err, &se) {
		return se
	}
	return &SendError{Kind: Kind(util.ClassifySMTPError(err)), Err: err}
}

// KindOf returns the SendError kind carried by err, or "" when err is not one.
func KindOf(err error) Kind {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
