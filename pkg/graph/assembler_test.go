package graph

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	tests := []struct {
		kind  Kind
		name  string
		label string
	}{
		{KindSource, "source", "Source"},
		{KindIP, "ip", "Ip"},
		{KindDNS, "dns", "Dns"},
		{KindIndicator, "indicator", "Indicator"},
		{KindFile, "file", "File"},
		{KindURL, "url", "Url"},
		{KindMalware, "malware", "Malware"},
		{KindMalwareAnalysis, "malware_analysis", "Malware_analysis"},
		{KindAnalysisTool, "analysis_tool", "Analysis_tool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.kind.String())
			assert.Equal(t, tt.label, tt.kind.Label())

			parsed, ok := ParseKind(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.kind, parsed)
		})
	}

	_, ok := ParseKind("analysis-tool")
	assert.False(t, ok, "hyphenated reference prefixes are not kind names")
	assert.False(t, Kind(200).Valid())
	assert.Len(t, Kinds(), 9)
}

func TestKind_TextRoundTrip(t *testing.T) {
	data, err := json.Marshal(Ref(KindMalwareAnalysis, "malware-analysis--1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"malware_analysis","key":"malware-analysis--1"}`, string(data))

	var ref NodeRef
	require.NoError(t, json.Unmarshal(data, &ref))
	assert.Equal(t, KindMalwareAnalysis, ref.Kind)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"bogus","key":"x"}`), &ref))
}

func TestAssembler_UpsertNodeMergesWithoutOverwrite(t *testing.T) {
	asm := NewAssembler()

	require.NoError(t, asm.UpsertNode(KindIP, "1.2.3.4", nil))
	require.NoError(t, asm.UpsertNode(KindIP, "1.2.3.4", IPAttrs{
		ASOwner: "Example Net",
		ASN:     "64500",
		History: History{ValidFrom: "2024-01-01"},
	}))
	require.NoError(t, asm.UpsertNode(KindIP, "1.2.3.4", IPAttrs{
		ASOwner: "Other Owner",
		Network: "1.2.3.0/24",
	}))

	node, ok := asm.Node(KindIP, "1.2.3.4")
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"as_owner":   "Example Net",
		"asn":        "64500",
		"network":    "1.2.3.0/24",
		"valid_from": "2024-01-01",
	}, node.Properties)

	assert.Equal(t, 1, asm.Stats().TotalNodes())
}

func TestAssembler_UpsertNodeRejects(t *testing.T) {
	asm := NewAssembler()

	tests := []struct {
		name  string
		kind  Kind
		key   string
		attrs Attributes
		want  error
	}{
		{"unknown kind", Kind(99), "x", nil, ErrUnknownKind},
		{"empty key", KindDNS, "", nil, ErrEmptyKey},
		{"mismatched variant", KindDNS, "example.org", IPAttrs{}, ErrKindMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := asm.UpsertNode(tt.kind, tt.key, tt.attrs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var regErr *RegistryError
			require.ErrorAs(t, err, &regErr)
			assert.Equal(t, "upsert_node", regErr.Op)
		})
	}
	assert.Equal(t, 0, asm.Stats().TotalNodes())
}

func TestAssembler_RelationshipsAreNotDeduplicated(t *testing.T) {
	asm := NewAssembler()
	rel := Relationship{
		From:  Ref(KindSource, "host1"),
		To:    Ref(KindIP, "1.2.3.4"),
		Label: RelAccessesTo,
	}

	require.NoError(t, asm.AddRelationship(rel))
	require.NoError(t, asm.AddRelationship(rel))

	rels := asm.Relationships()
	require.Len(t, rels, 2)
	assert.NotNil(t, rels[0].Properties, "nil properties are normalized to an empty map")
}

func TestAssembler_AddRelationshipRejects(t *testing.T) {
	asm := NewAssembler()

	err := asm.AddRelationship(Relationship{From: Ref(KindSource, "h"), To: Ref(KindIP, "1.1.1.1")})
	assert.ErrorIs(t, err, ErrEmptyLabel)

	err = asm.AddRelationship(Relationship{From: Ref(KindSource, ""), To: Ref(KindIP, "1.1.1.1"), Label: "X"})
	assert.ErrorIs(t, err, ErrEmptyKey)

	err = asm.AddRelationship(Relationship{From: Ref(KindSource, "h"), To: Ref(Kind(42), "x"), Label: "X"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	assert.Empty(t, asm.Relationships())
}

func TestAssembler_NodesOrdering(t *testing.T) {
	asm := NewAssembler()
	require.NoError(t, asm.UpsertNode(KindIP, "9.9.9.9", nil))
	require.NoError(t, asm.UpsertNode(KindSource, "host2", nil))
	require.NoError(t, asm.UpsertNode(KindIP, "1.1.1.1", nil))
	require.NoError(t, asm.UpsertNode(KindSource, "host1", nil))

	var got []string
	for _, n := range asm.Nodes() {
		got = append(got, n.String())
	}
	assert.Equal(t, []string{"source:host1", "source:host2", "ip:1.1.1.1", "ip:9.9.9.9"}, got)

	ips := asm.NodesOf(KindIP)
	require.Len(t, ips, 2)
	assert.Equal(t, "1.1.1.1", ips[0].Key)

	stats := asm.Stats()
	assert.Equal(t, 2, stats.Nodes[KindSource])
	assert.Equal(t, 2, stats.Nodes[KindIP])
}

func TestMalwareAnalysisAttrs_Properties(t *testing.T) {
	positives := int64(3)

	props := MalwareAnalysisAttrs{
		Description: "Final score",
		Score:       IntNumber(87),
		Type:        "score",
		Positives:   &positives,
	}.Properties()

	assert.Equal(t, map[string]any{
		"description": "Final score",
		"score":       int64(87),
		"type":        "score",
		"positives":   int64(3),
	}, props)

	props = MalwareAnalysisAttrs{Description: "AV score", Score: FloatNumber(12.5)}.Properties()
	assert.Equal(t, 12.5, props[PropScore])

	props = MalwareAnalysisAttrs{Description: "Categories", Entries: []string{}}.Properties()
	assert.Equal(t, []string{}, props[PropResult], "an empty entries list is still a result")

	props = MalwareAnalysisAttrs{Description: "Blacklists", Payload: `{"a":1}`}.Properties()
	assert.Equal(t, `{"a":1}`, props[PropResult])
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "COMMUNICATES-WITH", NormalizeLabel("communicates-with"))
	assert.Equal(t, "INDICATES", NormalizeLabel(" indicates "))
}
