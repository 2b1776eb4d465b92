package graph

// Attributes is the per-kind attribute variant. Each implementation carries
// only the fields legal for its kind and flattens the ones that are set into
// a property map.
type Attributes interface {
	Kind() Kind
	Properties() map[string]any
}

// History is the validity window and timestamps the intelligence portal
// reports for a queried indicator.
type History struct {
	LastUpdate string
	Uploaded   string
	ValidFrom  string
	ValidUntil string
}

func (h History) apply(props map[string]any) {
	setString(props, "last_update", h.LastUpdate)
	setString(props, "uploaded", h.Uploaded)
	setString(props, "valid_from", h.ValidFrom)
	setString(props, "valid_until", h.ValidUntil)
}

// Number is a numeric property that stays an integer when its source was
// one.
type Number struct {
	Int     int64
	Float   float64
	IsFloat bool
}

// IntNumber returns an integral Number.
func IntNumber(v int64) *Number { return &Number{Int: v} }

// FloatNumber returns a fractional Number.
func FloatNumber(v float64) *Number { return &Number{Float: v, IsFloat: true} }

// Value returns the number as int64 or float64.
func (n Number) Value() any {
	if n.IsFloat {
		return n.Float
	}
	return n.Int
}

// SourceAttrs describes an originating host. Hosts carry no attributes.
type SourceAttrs struct{}

func (SourceAttrs) Kind() Kind                 { return KindSource }
func (SourceAttrs) Properties() map[string]any { return map[string]any{} }

// IPAttrs describes a destination address.
type IPAttrs struct {
	ASOwner string
	ASN     string
	Network string
	History History
}

func (IPAttrs) Kind() Kind { return KindIP }

func (a IPAttrs) Properties() map[string]any {
	props := make(map[string]any)
	setString(props, "as_owner", a.ASOwner)
	setString(props, "asn", a.ASN)
	setString(props, "network", a.Network)
	a.History.apply(props)
	return props
}

// DNSAttrs describes a resolved domain name.
type DNSAttrs struct {
	TopLevelDomain string
	History        History
}

func (DNSAttrs) Kind() Kind { return KindDNS }

func (a DNSAttrs) Properties() map[string]any {
	props := make(map[string]any)
	setString(props, "top_level_domain", a.TopLevelDomain)
	a.History.apply(props)
	return props
}

// FileAttrs describes a file observable.
type FileAttrs struct{}

func (FileAttrs) Kind() Kind                 { return KindFile }
func (FileAttrs) Properties() map[string]any { return map[string]any{} }

// URLAttrs describes a URL observable.
type URLAttrs struct{}

func (URLAttrs) Kind() Kind                 { return KindURL }
func (URLAttrs) Properties() map[string]any { return map[string]any{} }

// IndicatorAttrs describes a pattern-based indicator.
type IndicatorAttrs struct {
	PatternType string
	Description string
	Pattern     string
}

func (IndicatorAttrs) Kind() Kind { return KindIndicator }

func (a IndicatorAttrs) Properties() map[string]any {
	props := make(map[string]any)
	setString(props, "pattern_type", a.PatternType)
	setString(props, PropDescription, a.Description)
	setString(props, "pattern", a.Pattern)
	return props
}

// MalwareAttrs describes a malware family.
type MalwareAttrs struct {
	Description string
}

func (MalwareAttrs) Kind() Kind { return KindMalware }

func (a MalwareAttrs) Properties() map[string]any {
	props := make(map[string]any)
	setString(props, PropDescription, a.Description)
	return props
}

// MalwareAnalysisAttrs describes one analysis result attached to an
// indicator. Verdict nodes set Score and Type; the others carry either a raw
// JSON Payload or a flattened Entries list under the "result" property.
type MalwareAnalysisAttrs struct {
	Description string

	Score     *Number
	Type      string
	Algorithm string
	IOC       string
	IOCType   string
	Positives *int64
	Total     *int64

	Payload string
	Entries []string
	Created string
}

func (MalwareAnalysisAttrs) Kind() Kind { return KindMalwareAnalysis }

func (a MalwareAnalysisAttrs) Properties() map[string]any {
	props := make(map[string]any)
	setString(props, PropDescription, a.Description)
	if a.Score != nil {
		props[PropScore] = a.Score.Value()
	}
	setString(props, PropType, a.Type)
	setString(props, "algorithm", a.Algorithm)
	setString(props, "ioc", a.IOC)
	setString(props, "ioc_type", a.IOCType)
	if a.Positives != nil {
		props["positives"] = *a.Positives
	}
	if a.Total != nil {
		props["total"] = *a.Total
	}
	switch {
	case a.Entries != nil:
		props[PropResult] = append([]string(nil), a.Entries...)
	case a.Payload != "":
		props[PropResult] = a.Payload
	}
	setString(props, "created", a.Created)
	return props
}

func setString(props map[string]any, key, value string) {
	if value != "" {
		props[key] = value
	}
}
