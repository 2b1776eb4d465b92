package intel

import (
	"errors"
	"fmt"
)

// Anomalies: bundle objects whose shape is not recognized. They are logged,
// counted and skipped; none of them aborts a run.
var (
	ErrUnknownObjectType = errors.New("unrecognized object type")
	ErrUnknownPattern    = errors.New("unrecognized indicator pattern type")
	ErrUnknownAnalysis   = errors.New("unrecognized analysis name")
	ErrUnknownReference  = errors.New("unrecognized reference prefix")
	ErrUnknownRelType    = errors.New("unrecognized relationship type")
	ErrMalformedObject   = errors.New("malformed object")
)

// ErrTIPStatus is wrapped by every StatusError.
var ErrTIPStatus = errors.New("unexpected intelligence portal status")

// anomalyReason maps an anomaly to its metrics label.
func anomalyReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownObjectType):
		return "unknown_object_type"
	case errors.Is(err, ErrUnknownPattern):
		return "unknown_pattern"
	case errors.Is(err, ErrUnknownAnalysis):
		return "unknown_analysis"
	case errors.Is(err, ErrUnknownReference):
		return "unknown_reference"
	case errors.Is(err, ErrUnknownRelType):
		return "unknown_relationship_type"
	default:
		return "malformed_object"
	}
}

// StatusError reports an HTTP status the portal protocol does not allow at
// that point of the exchange.
type StatusError struct {
	Op   string
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tip %s %s: status %d", e.Op, e.URL, e.Code)
}

func (e *StatusError) Unwrap() error {
	return ErrTIPStatus
}
