package exchange

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failed fetch.
type Kind int

const (
	NoError Kind = iota
	TransportUnavailable
	ConnectFailure
	TLSNegotiationFailure
	CertificateTrustFailure
	Timeout
	TransportFailure
	TooManyRedirects
	HTTPLogicalFailure
	BannedContent
	BannedURL
	BannedWeight
	FileNotFound
	FileUnreadable
	AuthFailure
	UnknownOption
)

var kindNames = map[Kind]string{
	NoError:                 "none",
	TransportUnavailable:    "transport_unavailable",
	ConnectFailure:          "connect_failure",
	TLSNegotiationFailure:   "tls_negotiation_failure",
	CertificateTrustFailure: "certificate_trust_failure",
	Timeout:                 "timeout",
	TransportFailure:        "transport_failure",
	TooManyRedirects:        "too_many_redirects",
	HTTPLogicalFailure:      "http_logical_failure",
	BannedContent:           "banned_content",
	BannedURL:               "banned_url",
	BannedWeight:            "banned_weight",
	FileNotFound:            "file_not_found",
	FileUnreadable:          "file_unreadable",
	AuthFailure:             "auth_failure",
	UnknownOption:           "unknown_option",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Code returns the numeric code reported for k. Codes follow curl's error
// numbers where one exists.
func (k Kind) Code() int {
	switch k {
	case ConnectFailure:
		return 1
	case TransportUnavailable:
		return 2
	case Timeout:
		return 28
	case TLSNegotiationFailure:
		return 35
	case TooManyRedirects:
		return 47
	case TransportFailure:
		return 56
	case CertificateTrustFailure:
		return 60
	case AuthFailure:
		return 67
	case FileNotFound, FileUnreadable:
		return 37
	}
	return 0
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Code: kind.Code(), Message: message}
}

// NewError returns an Error of the given kind with the kind's default code.
func NewError(kind Kind, message string) error {
	return newError(kind, message)
}

// NewErrorWithCode is NewError with an explicit code, e.g. an HTTP status.
func NewErrorWithCode(kind Kind, code int, message string) error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// WrapError classifies cause as kind, keeping it reachable via errors.Cause
// and errors.As.
func WrapError(kind Kind, cause error) error {
	return &Error{Kind: kind, Code: kind.Code(), Message: cause.Error(), cause: cause}
}

// WrapErrorMessage is WrapError with a message of its own.
func WrapErrorMessage(kind Kind, cause error, message string) error {
	return &Error{Kind: kind, Code: kind.Code(), Message: message, cause: cause}
}

// KindOf returns the Kind of err, or TransportFailure for unclassified
// errors and NoError for nil.
func KindOf(err error) Kind {
	if err == nil {
		return NoError
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return TransportFailure
}

// Entry is one ErrorLog record.
type Entry struct {
	Code    int
	Kind    Kind
	Message string
}

func (e Entry) String() string {
	return fmt.Sprintf("%d - %s", e.Code, e.Message)
}

// ErrorLog is an append-only record of failures for one client.
type ErrorLog struct {
	entries []Entry
}

// Add records err. Unclassified errors are recorded as TransportFailure.
func (l *ErrorLog) Add(err error) {
	if err == nil {
		return
	}
	var e *Error
	if errors.As(err, &e) {
		l.entries = append(l.entries, Entry{Code: e.Code, Kind: e.Kind, Message: e.Message})
		return
	}
	l.entries = append(l.entries, Entry{Code: TransportFailure.Code(), Kind: TransportFailure, Message: err.Error()})
}

// AddMessage records a plain message with code 0.
func (l *ErrorLog) AddMessage(message string) {
	l.entries = append(l.entries, Entry{Message: message})
}

func (l *ErrorLog) Last() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// LastMessage returns the last message or "" when the log is empty.
func (l *ErrorLog) LastMessage() string {
	e, _ := l.Last()
	return e.Message
}

func (l *ErrorLog) Len() int {
	return len(l.entries)
}

func (l *ErrorLog) Entries() []Entry {
	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	return entries
}
