package graph

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestAssemblerInvariants checks the registry merge rules over generated input.
func TestAssemblerInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("one node per (kind, key) regardless of repetitions", prop.ForAll(
		func(keys []string) bool {
			asm := NewAssembler()
			distinct := make(map[string]struct{})
			for _, k := range keys {
				if err := asm.UpsertNode(KindDNS, k, nil); err != nil {
					return false
				}
				distinct[k] = struct{}{}
			}
			for _, k := range keys {
				if err := asm.UpsertNode(KindDNS, k, DNSAttrs{TopLevelDomain: "org"}); err != nil {
					return false
				}
			}
			return asm.Stats().Nodes[KindDNS] == len(distinct)
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("first value of a field wins", prop.ForAll(
		func(first, second string) bool {
			asm := NewAssembler()
			_ = asm.UpsertNode(KindMalware, "malware--1", MalwareAttrs{Description: first})
			_ = asm.UpsertNode(KindMalware, "malware--1", MalwareAttrs{Description: second})
			n, _ := asm.Node(KindMalware, "malware--1")
			return n.StringProperty(PropDescription) == first
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("upserting the same attributes twice is a no-op", prop.ForAll(
		func(owner, network string) bool {
			attrs := IPAttrs{ASOwner: owner, Network: network}
			asm := NewAssembler()
			_ = asm.UpsertNode(KindIP, "10.0.0.1", attrs)
			n, _ := asm.Node(KindIP, "10.0.0.1")
			before := len(n.Properties)
			_ = asm.UpsertNode(KindIP, "10.0.0.1", attrs)
			return len(n.Properties) == before &&
				n.StringProperty("as_owner") == owner
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
