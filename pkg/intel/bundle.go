// Package intel normalizes threat-intelligence bundles into graph nodes and
// relationships and drives the intelligence portal lookups that produce them.
package intel

import (
	"bytes"
	"context"
	"encoding/json"
)

// Bundle is the portal's answer for one queried indicator: what kind of
// indicator it was, its registration details and a local object graph.
type Bundle struct {
	IOC     IOC     `json:"ioc"`
	Details Details `json:"details"`
	Graph   Graph   `json:"graph"`
}

// IOC describes the queried indicator. Type is "ip" or "domain".
type IOC struct {
	Type string `json:"ioc_type"`
}

// Details carries registration data for the queried indicator.
type Details struct {
	Basic   Basic          `json:"basic"`
	History HistoryDetails `json:"history"`
}

type Basic struct {
	ASOwner        Scalar `json:"as_owner,omitempty"`
	ASN            Scalar `json:"asn,omitempty"`
	Network        Scalar `json:"network,omitempty"`
	TopLevelDomain Scalar `json:"top_level_domain,omitempty"`
}

type HistoryDetails struct {
	LastUpdate Scalar `json:"last_update,omitempty"`
	Uploaded   Scalar `json:"uploaded,omitempty"`
	ValidFrom  Scalar `json:"valid_from,omitempty"`
	ValidUntil Scalar `json:"valid_until,omitempty"`
}

// Graph is the bundle-local object set. Identifiers in it mean nothing outside
// the bundle.
type Graph struct {
	Objects []Object `json:"objects"`
}

// Object is one loosely typed bundle object. Which fields are meaningful
// depends on Type.
type Object struct {
	ID               string          `json:"id" validate:"required"`
	Type             string          `json:"type" validate:"required"`
	Name             string          `json:"name,omitempty"`
	PatternType      string          `json:"pattern_type,omitempty"`
	Pattern          string          `json:"pattern,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
	Created          Scalar          `json:"created,omitempty"`
	SampleRef        string          `json:"sample_ref,omitempty"`
	SourceRef        string          `json:"source_ref,omitempty" validate:"required_if=Type relationship"`
	TargetRef        string          `json:"target_ref,omitempty" validate:"required_if=Type relationship"`
	RelationshipType string          `json:"relationship_type,omitempty" validate:"required_if=Type relationship"`
}

// Enrichment pairs a queried indicator with the bundle returned for it.
type Enrichment struct {
	Indicator string  `json:"indicator"`
	Bundle    *Bundle `json:"bundle"`
}

// Lookup queries the intelligence portal for one indicator. A nil bundle with
// a nil error means the portal knows nothing about it.
type Lookup interface {
	Search(ctx context.Context, indicator string) (*Bundle, error)
}

// Scalar is a string-typed field that the portal may send as a string,
// number, boolean or null. Nested values are kept as compact JSON.
type Scalar string

func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = ""
	case data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(str)
	case data[0] == '{' || data[0] == '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*s = Scalar(buf.String())
	default:
		*s = Scalar(data)
	}
	return nil
}

func (s Scalar) String() string { return string(s) }

// payloadText renders a raw result as text: strings unquoted, everything else
// as compact JSON.
func payloadText(raw json.RawMessage) (string, error) {
	var s Scalar
	if err := s.UnmarshalJSON(raw); err != nil {
		return "", err
	}
	return string(s), nil
}
