package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed remote call for the reconciliation engine.
type ErrorKind string

const (
	// KindNotFound: the record or collection does not exist on the remote
	KindNotFound ErrorKind = "not_found"
	// KindTransient: network trouble, timeouts, overload; worth retrying
	KindTransient ErrorKind = "transient"
	// KindPermanent: the remote rejected the request; retrying will not help
	KindPermanent ErrorKind = "permanent"
)

// RemoteError is returned by every ClientAPI method on failure.
type RemoteError struct {
	Err        error // Err исходная ошибка транспорта, если была
	Kind       ErrorKind
	Message    string
	StatusCode int // StatusCode HTTP статус, 0 для сетевых ошибок
}

func (e *RemoteError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("remote %s (%d): %s", e.Kind, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("remote %s: %v", e.Kind, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("remote %s (%d)", e.Kind, e.StatusCode)
	default:
		return fmt.Sprintf("remote %s: %s", e.Kind, e.Message)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status to an error kind.
// 408, 409 and 429 are retried: the request itself was fine.
func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusNotFound:
		return KindNotFound
	case code >= 500,
		code == http.StatusTooManyRequests,
		code == http.StatusRequestTimeout,
		code == http.StatusConflict:
		return KindTransient
	default:
		return KindPermanent
	}
}

func kindOf(err error) (ErrorKind, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

// IsNotFound reports whether err is a remote not-found error
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// IsTransient reports whether err is worth retrying. Errors that are not
// RemoteErrors (a local timeout wrapping the call, for example) count as
// transient too.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	k, ok := kindOf(err)
	return !ok || k == KindTransient
}

// IsPermanent reports whether the remote rejected the request for good
func IsPermanent(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindPermanent
}
