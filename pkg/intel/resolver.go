package intel

import (
	"strings"

	"github.com/dd0wney/cluso-threatgraph/pkg/graph"
)

// resolver maps bundle-local identifiers of observables to their canonical
// names. One resolver lives for exactly one bundle.
type resolver struct {
	names map[string]string
}

func newResolver() *resolver {
	return &resolver{names: make(map[string]string)}
}

// bind records id -> name unless id is already bound.
func (r *resolver) bind(id, name string) {
	if _, ok := r.names[id]; !ok {
		r.names[id] = name
	}
}

// resolve returns the canonical name for ref, or ref itself when unbound.
func (r *resolver) resolve(ref string) string {
	if name, ok := r.names[ref]; ok {
		return name
	}
	return ref
}

const analysisToolPrefix = "analysis-tool"

var referenceAliases = map[string]graph.Kind{
	"ipv4-addr":        graph.KindIP,
	"ipv4-address":     graph.KindIP,
	"domain-name":      graph.KindDNS,
	"malware-analysis": graph.KindMalwareAnalysis,
}

// referenceKind derives a node kind from the "<type>--<uuid>" prefix of ref.
// tool is true for analysis-tool references, which never become endpoints.
func referenceKind(ref string) (kind graph.Kind, tool bool, ok bool) {
	prefix, _, _ := strings.Cut(ref, "--")
	if prefix == analysisToolPrefix {
		return 0, true, true
	}
	if k, found := referenceAliases[prefix]; found {
		return k, false, true
	}
	k, found := graph.ParseKind(prefix)
	return k, false, found
}
