package httpx

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrTimeout is the cancellation cause recorded when a call's timeout fires.
	ErrTimeout = errors.New("request timed out")

	// ErrCanceled marks a call aborted by its caller.
	ErrCanceled = errors.New("request canceled")
)

type CancelReason string

const (
	ReasonTimeout  CancelReason = "timeout"
	ReasonCanceled CancelReason = "canceled"
)

// CancelError is returned when a call stops because its context was canceled
// or its timeout elapsed. It is never retried.
type CancelError struct {
	Reason CancelReason
	Method string
	URL    string

	// Cause is the context cause (ErrTimeout for the call timeout, or whatever
	// the caller's context reported).
	Cause error
}

func (e *CancelError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Method != "" {
		b.WriteString(e.Method)
		b.WriteString(" ")
	}
	if e.URL != "" {
		b.WriteString(sanitizeURLString(e.URL))
		b.WriteString(": ")
	}
	if e.Reason == ReasonTimeout {
		b.WriteString(ErrTimeout.Error())
	} else {
		b.WriteString(ErrCanceled.Error())
	}
	if e.Cause != nil && !errors.Is(e.Cause, ErrTimeout) {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the reason sentinel and the cause, so errors.Is works
// with ErrTimeout/ErrCanceled as well as context.DeadlineExceeded/Canceled.
func (e *CancelError) Unwrap() []error {
	if e == nil {
		return nil
	}
	reason := ErrCanceled
	if e.Reason == ReasonTimeout {
		reason = ErrTimeout
	}
	if e.Cause == nil {
		return []error{reason}
	}
	return []error{reason, e.Cause}
}

// compose derives the context that governs a whole call: it fires on the
// caller's cancellation or after timeout, whichever comes first. The returned
// release func must be called once the call is finished.
func compose(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		if parent.Done() == nil {
			return parent, func() {}
		}
		return context.WithCancel(parent)
	}
	return context.WithTimeoutCause(parent, timeout, ErrTimeout)
}

// cancellation classifies err as a cancellation of the call. It returns nil when
// err is an ordinary failure.
func cancellation(ctx context.Context, err error, method, url string) *CancelError {
	var ce *CancelError
	if errors.As(err, &ce) {
		return ce
	}

	cause := error(nil)
	switch {
	case ctx.Err() != nil:
		cause = context.Cause(ctx)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		cause = err
	default:
		return nil
	}

	reason := ReasonCanceled
	if errors.Is(cause, ErrTimeout) || errors.Is(cause, context.DeadlineExceeded) {
		reason = ReasonTimeout
	}
	return &CancelError{Reason: reason, Method: method, URL: url, Cause: cause}
}

// IsTimeout reports whether err is a call that ran out of time.
func IsTimeout(err error) bool {
	var ce *CancelError
	return errors.As(err, &ce) && ce.Reason == ReasonTimeout
}

// IsCanceled reports whether err is a call aborted by its caller.
func IsCanceled(err error) bool {
	var ce *CancelError
	return errors.As(err, &ce) && ce.Reason == ReasonCanceled
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
