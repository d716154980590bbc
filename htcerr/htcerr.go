// Package htcerr defines the wire-level error kinds shared by every layer
// of the range server, following the error-kinds-not-type-names design of
// the original Hypertable Error.h/Error.cc.
package htcerr

import "fmt"

// Kind is one of the error kinds from spec §7. Every fallible operation in
// this module that can fail for a reason a caller needs to branch on
// returns an *Error wrapping one of these, rather than an ad-hoc string.
type Kind int

const (
	// I/O & framing
	LocalIOError Kind = iota + 1
	RequestTimeout
	RequestTruncated
	ResponseTruncated
	CommBrokenConnection
	CommNotConnected
	SerializationInputOverrun

	// Format & integrity
	BlockCompressorBadHeader
	BlockCompressorChecksumMismatch
	BlockCompressorInflateError
	BlockCompressorTruncated
	BloomFilterChecksumMismatch
	MetaLogChecksumMismatch
	CommHeaderChecksumMismatch
	TruncatedCommitLog
	InvalidMetadata
	BadKeyOrder
	BadSchema

	// Semantic
	TableNotFound
	NamespaceDoesNotExist
	NamespaceExists
	TableExists
	RangeNotFound
	RangeAlreadyLoaded
	RangeMismatch
	GenerationMismatch
	SchemaGenerationMismatch
	PartialUpdate
	TooManyColumns
)

var names = map[Kind]string{
	LocalIOError:                    "LOCAL_IO_ERROR",
	RequestTimeout:                  "REQUEST_TIMEOUT",
	RequestTruncated:                "REQUEST_TRUNCATED",
	ResponseTruncated:               "RESPONSE_TRUNCATED",
	CommBrokenConnection:            "COMM_BROKEN_CONNECTION",
	CommNotConnected:                "COMM_NOT_CONNECTED",
	SerializationInputOverrun:       "SERIALIZATION_INPUT_OVERRUN",
	BlockCompressorBadHeader:        "BLOCK_COMPRESSOR_BAD_HEADER",
	BlockCompressorChecksumMismatch: "BLOCK_COMPRESSOR_CHECKSUM_MISMATCH",
	BlockCompressorInflateError:     "BLOCK_COMPRESSOR_INFLATE_ERROR",
	BlockCompressorTruncated:        "BLOCK_COMPRESSOR_TRUNCATED",
	BloomFilterChecksumMismatch:     "BLOOMFILTER_CHECKSUM_MISMATCH",
	MetaLogChecksumMismatch:         "METALOG_CHECKSUM_MISMATCH",
	CommHeaderChecksumMismatch:      "COMM_HEADER_CHECKSUM_MISMATCH",
	TruncatedCommitLog:              "TRUNCATED_COMMIT_LOG",
	InvalidMetadata:                 "INVALID_METADATA",
	BadKeyOrder:                     "BAD_KEY_ORDER",
	BadSchema:                       "BAD_SCHEMA",
	TableNotFound:                   "TABLE_NOT_FOUND",
	NamespaceDoesNotExist:           "NAMESPACE_DOES_NOT_EXIST",
	NamespaceExists:                 "NAMESPACE_EXISTS",
	TableExists:                     "TABLE_EXISTS",
	RangeNotFound:                   "RANGE_NOT_FOUND",
	RangeAlreadyLoaded:              "RANGE_ALREADY_LOADED",
	RangeMismatch:                   "RANGE_MISMATCH",
	GenerationMismatch:              "GENERATION_MISMATCH",
	SchemaGenerationMismatch:        "SCHEMA_GENERATION_MISMATCH",
	PartialUpdate:                   "PARTIAL_UPDATE",
	TooManyColumns:                  "TOO_MANY_COLUMNS",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN_ERROR_KIND(%d)", int(k))
}

// Error is the concrete error type carried across the engine's internal
// boundaries and the wire. A non-zero Kind is always followed by a
// human-readable Message on the wire (spec §7).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, htcerr.LocalIOError) work by comparing Kind to a
// sentinel wrapping that Kind with no message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel is a Kind used as a plain error value for errors.Is comparisons,
// e.g. `errors.Is(err, htcerr.Sentinel(htcerr.RangeNotFound))`.
func Sentinel(kind Kind) error {
	return &Error{Kind: kind}
}

// Of returns the Kind carried by err, or 0 if err is not (or does not wrap)
// an *Error.
func Of(err error) Kind {
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return 0
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
