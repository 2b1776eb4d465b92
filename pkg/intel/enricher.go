package intel

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/dd0wney/cluso-threatgraph/pkg/flow"
	"github.com/dd0wney/cluso-threatgraph/pkg/logging"
	"github.com/dd0wney/cluso-threatgraph/pkg/metrics"
	"github.com/dd0wney/cluso-threatgraph/pkg/validation"
)

// Lookup outcomes recorded in metrics.
const (
	outcomeFound    = "found"
	outcomeNotFound = "not_found"
	outcomeSkipped  = "skipped"
	outcomeError    = "error"
)

// Enricher looks up every indicator seen in a set of flow records.
type Enricher struct {
	lookup  Lookup
	noName  string
	logger  logging.Logger
	metrics *metrics.Registry
}

// NewEnricher creates an enricher. m may be nil.
func NewEnricher(lookup Lookup, noName string, logger logging.Logger, m *metrics.Registry) *Enricher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Enricher{
		lookup:  lookup,
		noName:  validation.DefaultOr(noName, flow.DefaultNoName),
		logger:  logger.With(logging.Component("enricher")),
		metrics: m,
	}
}

// Enrich queries each record's resolved name (when present) and then its
// destination. Every indicator is queried at most once and internal
// addresses never leave the network. Indicators the portal does not know are
// left out of the result. A lookup error aborts enrichment.
func (e *Enricher) Enrich(ctx context.Context, records []flow.Record) ([]Enrichment, error) {
	seen := make(map[string]struct{})
	var out []Enrichment

	query := func(indicator string) error {
		if _, done := seen[indicator]; done {
			return nil
		}
		seen[indicator] = struct{}{}

		if isInternal(indicator) {
			e.logger.Debug("skipping internal address", logging.Indicator(indicator))
			e.metrics.RecordLookup(outcomeSkipped, 0)
			return nil
		}

		start := time.Now()
		bundle, err := e.lookup.Search(ctx, indicator)
		if err != nil {
			e.metrics.RecordLookup(outcomeError, time.Since(start))
			return fmt.Errorf("lookup %q: %w", indicator, err)
		}
		if bundle == nil {
			e.metrics.RecordLookup(outcomeNotFound, time.Since(start))
			return nil
		}

		e.metrics.RecordLookup(outcomeFound, time.Since(start))
		e.logger.Debug("indicator enriched", logging.Indicator(indicator))
		out = append(out, Enrichment{Indicator: indicator, Bundle: bundle})
		return nil
	}

	for _, r := range records {
		if r.HasName(e.noName) {
			if err := query(r.DNS); err != nil {
				return out, err
			}
		}
		if err := query(r.Destination); err != nil {
			return out, err
		}
	}

	e.logger.Info("enrichment finished",
		logging.Int("queried", len(seen)),
		logging.Int("found", len(out)))
	return out, nil
}

// isInternal reports whether indicator is an address that must not be sent
// to the portal: private, loopback, link-local or unspecified.
func isInternal(indicator string) bool {
	addr, err := netip.ParseAddr(indicator)
	if err != nil {
		return false
	}
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}
