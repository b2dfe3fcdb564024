// Package errkind defines the stable error-kind identifiers (§7) shared
// between the dispatcher, the body engine, and the public faith.Error
// surface. It lives in its own leaf package so internal/dispatch and
// the root faith package can each produce/consume the same error
// values without importing one another.
package errkind

import "fmt"

// Kind is one of the stable, user-visible error identifiers from §7.
type Kind string

// The complete set of error kinds spec.md §7 names.
const (
	Aborted                  Kind = "Aborted"
	BodyStream               Kind = "BodyStream"
	DnsNotFound              Kind = "DnsNotFound"
	DnsBlocked               Kind = "DnsBlocked"
	DnsTimeout               Kind = "DnsTimeout"
	IntegrityMismatch        Kind = "IntegrityMismatch"
	InvalidCredentials       Kind = "InvalidCredentials"
	InvalidHeader            Kind = "InvalidHeader"
	InvalidIntegrity         Kind = "InvalidIntegrity"
	InvalidMethod            Kind = "InvalidMethod"
	InvalidURL               Kind = "InvalidUrl"
	JSONParse                Kind = "JsonParse"
	Network                  Kind = "Network"
	NotCached                Kind = "NotCached"
	RedirectDisallowed       Kind = "RedirectDisallowed"
	ResponseAlreadyDisturbed Kind = "ResponseAlreadyDisturbed"
	ResponseBodyNotAvailable Kind = "ResponseBodyNotAvailable"
	TLSHandshake             Kind = "TlsHandshake"
	TooManyRedirects         Kind = "TooManyRedirects"
	Timeout                  Kind = "Timeout"
	UTF8Parse                Kind = "Utf8Parse"
)

// Error is the single exported error type every faith operation
// returns: a stable Kind, a human message, and an optional wrapped
// cause (§7 "every error has (kind, human message, optional cause)").
type Error struct {
	K     Kind
	Msg   string
	Cause error
}

// New builds an *Error. cause may be nil.
func New(k Kind, msg string, cause error) *Error {
	return &Error{K: k, Msg: msg, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("faith: %s: %s: %v", e.K, e.Msg, e.Cause)
	}
	return fmt.Sprintf("faith: %s: %s", e.K, e.Msg)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Kind returns the error's stable kind identifier.
func (e *Error) Kind() Kind { return e.K }

// Is lets errors.Is match by Kind: a bare Kind is not an error, so the
// target is Sentinel(k), which matches any *Error whose kind is k.
func (e *Error) Is(target error) bool {
	if ke, ok := target.(kindSentinel); ok {
		return e.K == ke.Kind
	}
	return false
}

// kindSentinel lets a bare Kind act as an errors.Is target without
// forcing every call site to build a full *Error.
type kindSentinel struct{ Kind Kind }

func (k kindSentinel) Error() string { return string(k.Kind) }

// Sentinel returns an error value usable as an errors.Is/errors.As
// target for kind, e.g. errors.Is(err, errkind.Sentinel(errkind.Timeout)).
func Sentinel(k Kind) error { return kindSentinel{Kind: k} }
