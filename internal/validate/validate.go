// Package validate checks candidate generation requests against the registry
// before any network call is made. Validation is synchronous, deterministic,
// and side-effect free.
package validate

import (
	"fmt"
	"unicode/utf8"

	"bargen/internal/registry"
)

// Reason classifies a validation failure.
type Reason string

const (
	ReasonUnknownSymbology Reason = "unknown_symbology"
	ReasonUnknownFormat    Reason = "unknown_format"
	ReasonEmptyData        Reason = "empty_data"
	ReasonDataTooLong      Reason = "data_too_long"
)

// Error describes exactly which constraint a candidate violated.
type Error struct {
	Reason Reason
	Value  string // the offending input (symbology or format name for unknown_*)
	Limit  int    // inclusive maximum, set for data_too_long
	Length int    // actual data length, set for data_too_long
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonUnknownSymbology:
		return fmt.Sprintf("unknown symbology %q", e.Value)
	case ReasonUnknownFormat:
		return fmt.Sprintf("unknown image format %q", e.Value)
	case ReasonEmptyData:
		return "barcode data is empty"
	case ReasonDataTooLong:
		return fmt.Sprintf("data length %d exceeds the %d character limit", e.Length, e.Limit)
	default:
		return "invalid generation request"
	}
}

// Options carries rendering hints forwarded to the service unvalidated.
type Options struct {
	ShowText bool `json:"show_text"`
	Rotation int  `json:"rotation"`
}

// Request is a validated generation request. Build one through Validate only;
// a new request replaces rather than mutates a previous one.
type Request struct {
	Symbology registry.Symbology
	Data      string
	Format    registry.ImageFormat
	Options   Options
}

// Validate resolves a candidate (symbology, data, format) tuple against the
// registry and returns a Request ready for dispatch, or the first constraint
// it violated. Whitespace in data is significant: data is never trimmed, and
// leading or trailing spaces count toward the inclusive character limit.
func Validate(symbology, data, format string, opts Options) (Request, *Error) {
	sym, ok := registry.ParseSymbology(symbology)
	if !ok {
		return Request{}, &Error{Reason: ReasonUnknownSymbology, Value: symbology}
	}
	fmtID, ok := registry.ParseFormat(format)
	if !ok {
		return Request{}, &Error{Reason: ReasonUnknownFormat, Value: format}
	}
	if data == "" {
		return Request{}, &Error{Reason: ReasonEmptyData}
	}
	length := utf8.RuneCountInString(data)
	if limit, constrained := registry.CharacterLimit(sym); constrained && length > limit {
		return Request{}, &Error{Reason: ReasonDataTooLong, Limit: limit, Length: length}
	}
	return Request{Symbology: sym, Data: data, Format: fmtID, Options: opts}, nil
}
