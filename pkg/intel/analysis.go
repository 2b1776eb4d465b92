package intel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dd0wney/cluso-threatgraph/pkg/graph"
)

// analysisRule sub-classifies a malware-analysis object by its display name.
// A rule with a nil build matches names that are deliberately not loaded.
type analysisRule struct {
	name  string
	match func(name string) bool
	build func(obj *Object) (graph.MalwareAnalysisAttrs, error)
}

// analysisRules is evaluated in order; the first match wins.
var analysisRules = []analysisRule{
	{name: "score", match: contains("score"), build: buildScore},
	{name: "blacklists", match: oneOf("Blacklists"), build: buildPayload},
	{name: "mitre", match: oneOf("MITRE ATT&CK"), build: buildTactics},
	{name: "tor", match: oneOf("Tor exit node"), build: buildTorExit},
	{name: "categories", match: oneOf("Categories"), build: buildCategories},
	{name: "whois", match: oneOf("Whois lookup", "Whois Lookup"), build: buildPayload},
	{name: "hostname", match: oneOf("Hostname lookup", "Hostname Lookup"), build: buildDescriptionOnly},
	{name: "ignored", match: oneOf("Subdomains", "DNS records", "Malware analysis", "Markers")},
}

func contains(sub string) func(string) bool {
	return func(name string) bool { return strings.Contains(name, sub) }
}

func oneOf(names ...string) func(string) bool {
	return func(name string) bool {
		for _, n := range names {
			if name == n {
				return true
			}
		}
		return false
	}
}

type scoreResult struct {
	Score     *json.Number `json:"score"`
	Algorithm Scalar       `json:"algorithm"`
	IOC       Scalar       `json:"ioc"`
	IOCType   Scalar       `json:"ioc_type"`
	Positives *json.Number `json:"positives"`
	Total     *json.Number `json:"total"`
}

func buildScore(obj *Object) (graph.MalwareAnalysisAttrs, error) {
	var res scoreResult
	if err := decodeResult(obj, &res); err != nil {
		return graph.MalwareAnalysisAttrs{}, err
	}
	if res.Score == nil {
		return graph.MalwareAnalysisAttrs{}, fmt.Errorf("%w: score analysis without result.score", ErrMalformedObject)
	}
	score, err := number(*res.Score)
	if err != nil {
		return graph.MalwareAnalysisAttrs{}, fmt.Errorf("%w: score %q: %v", ErrMalformedObject, res.Score.String(), err)
	}

	return graph.MalwareAnalysisAttrs{
		Score:     score,
		Type:      "score",
		Algorithm: res.Algorithm.String(),
		IOC:       res.IOC.String(),
		IOCType:   res.IOCType.String(),
		Positives: intOrNil(res.Positives),
		Total:     intOrNil(res.Total),
	}, nil
}

func buildPayload(obj *Object) (graph.MalwareAnalysisAttrs, error) {
	payload, err := payloadText(obj.Result)
	if err != nil {
		return graph.MalwareAnalysisAttrs{}, fmt.Errorf("%w: result: %v", ErrMalformedObject, err)
	}
	return graph.MalwareAnalysisAttrs{Payload: payload}, nil
}

func buildTorExit(obj *Object) (graph.MalwareAnalysisAttrs, error) {
	attrs, err := buildPayload(obj)
	if err != nil {
		return attrs, err
	}
	attrs.Created = obj.Created.String()
	return attrs, nil
}

func buildTactics(obj *Object) (graph.MalwareAnalysisAttrs, error) {
	var techniques []struct {
		ID     string `json:"id"`
		Tactic struct {
			Name string `json:"name"`
		} `json:"tactic"`
	}
	if err := decodeResult(obj, &techniques); err != nil {
		return graph.MalwareAnalysisAttrs{}, err
	}

	entries := make([]string, 0, len(techniques))
	for _, t := range techniques {
		entries = append(entries, t.ID+": "+t.Tactic.Name)
	}
	return graph.MalwareAnalysisAttrs{Entries: entries}, nil
}

func buildCategories(obj *Object) (graph.MalwareAnalysisAttrs, error) {
	var categories []struct {
		Name string `json:"name"`
	}
	if err := decodeResult(obj, &categories); err != nil {
		return graph.MalwareAnalysisAttrs{}, err
	}

	entries := make([]string, 0, len(categories))
	for _, c := range categories {
		entries = append(entries, c.Name)
	}
	return graph.MalwareAnalysisAttrs{Entries: entries}, nil
}

func buildDescriptionOnly(*Object) (graph.MalwareAnalysisAttrs, error) {
	return graph.MalwareAnalysisAttrs{}, nil
}

func decodeResult(obj *Object, v any) error {
	if len(obj.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(obj.Result, v); err != nil {
		return fmt.Errorf("%w: result: %v", ErrMalformedObject, err)
	}
	return nil
}

// number keeps integral JSON numbers as int64.
func number(n json.Number) (*graph.Number, error) {
	if v, err := n.Int64(); err == nil {
		return graph.IntNumber(v), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, err
	}
	return graph.FloatNumber(f), nil
}

func intOrNil(n *json.Number) *int64 {
	if n == nil {
		return nil
	}
	v, err := n.Int64()
	if err != nil {
		return nil
	}
	return &v
}
