package graph

import "strings"

// Kind is the closed set of node categories in the threat graph.
type Kind uint8

const (
	KindSource Kind = iota
	KindIP
	KindDNS
	KindIndicator
	KindFile
	KindURL
	KindMalware
	KindMalwareAnalysis
	KindAnalysisTool

	kindCount
)

var kindNames = [kindCount]string{
	KindSource:          "source",
	KindIP:              "ip",
	KindDNS:             "dns",
	KindIndicator:       "indicator",
	KindFile:            "file",
	KindURL:             "url",
	KindMalware:         "malware",
	KindMalwareAnalysis: "malware_analysis",
	KindAnalysisTool:    "analysis_tool",
}

// String returns the kind name ("malware_analysis").
func (k Kind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return kindNames[k]
}

// Valid reports whether k is a member of the enumeration.
func (k Kind) Valid() bool {
	return k < kindCount
}

// Label returns the store label for nodes of this kind: the kind name with
// its first letter upper-cased ("Ip", "Malware_analysis").
func (k Kind) Label() string {
	name := k.String()
	return strings.ToUpper(name[:1]) + name[1:]
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// MarshalText implements encoding.TextMarshaler so kinds serialize by name.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, ErrUnknownKind
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, ok := ParseKind(string(text))
	if !ok {
		return ErrUnknownKind
	}
	*k = parsed
	return nil
}
