package faith

import (
	"errors"

	"github.com/jroosing/faith/internal/errkind"
)

// Kind is the stable, user-visible identifier carried by every Error
// this package returns (§7).
type Kind = errkind.Kind

// The complete set of error kinds a faith operation can surface (§7).
const (
	Aborted                  = errkind.Aborted
	BodyStream               = errkind.BodyStream
	DnsNotFound              = errkind.DnsNotFound
	DnsBlocked               = errkind.DnsBlocked
	DnsTimeout               = errkind.DnsTimeout
	IntegrityMismatch        = errkind.IntegrityMismatch
	InvalidCredentials       = errkind.InvalidCredentials
	InvalidHeader            = errkind.InvalidHeader
	InvalidIntegrity         = errkind.InvalidIntegrity
	InvalidMethod            = errkind.InvalidMethod
	InvalidURL               = errkind.InvalidURL
	JSONParse                = errkind.JSONParse
	Network                  = errkind.Network
	NotCached                = errkind.NotCached
	RedirectDisallowed       = errkind.RedirectDisallowed
	ResponseAlreadyDisturbed = errkind.ResponseAlreadyDisturbed
	ResponseBodyNotAvailable = errkind.ResponseBodyNotAvailable
	TLSHandshake             = errkind.TLSHandshake
	TooManyRedirects         = errkind.TooManyRedirects
	Timeout                  = errkind.Timeout
	UTF8Parse                = errkind.UTF8Parse
)

// Error is the single exported error type every faith operation returns:
// a stable Kind, a human message, and an optional wrapped cause (§7).
type Error = errkind.Error

// NewError builds an *Error of the given kind. cause may be nil.
func NewError(kind Kind, message string, cause error) *Error {
	return errkind.New(kind, message, cause)
}

// Is reports whether err (or anything it wraps) carries the given Kind,
// e.g. `faith.Is(err, faith.Timeout)`.
func Is(err error, kind Kind) bool {
	return errors.Is(err, errkind.Sentinel(kind))
}
