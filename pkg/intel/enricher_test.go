package intel

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-threatgraph/pkg/flow"
	"github.com/dd0wney/cluso-threatgraph/pkg/logging"
	"github.com/dd0wney/cluso-threatgraph/pkg/metrics"
)

type fakeLookup struct {
	bundles map[string]*Bundle
	errs    map[string]error
	queried []string
}

func (f *fakeLookup) Search(_ context.Context, indicator string) (*Bundle, error) {
	f.queried = append(f.queried, indicator)
	if err := f.errs[indicator]; err != nil {
		return nil, err
	}
	return f.bundles[indicator], nil
}

func TestEnricher_QueryOrderAndDedup(t *testing.T) {
	lookup := &fakeLookup{bundles: map[string]*Bundle{
		"bad.example": {IOC: IOC{Type: "domain"}},
		"1.2.3.4":     {IOC: IOC{Type: "ip"}},
	}}
	reg := metrics.NewRegistry()
	e := NewEnricher(lookup, flow.DefaultNoName, logging.NewNopLogger(), reg)

	got, err := e.Enrich(context.Background(), []flow.Record{
		{Source: "10.0.0.1", Destination: "1.2.3.4", DNS: "bad.example", Protocol: "tcp"},
		{Source: "10.0.0.2", Destination: "1.2.3.4", DNS: "NO_DNS", Protocol: "tcp"},
		{Source: "10.0.0.3", Destination: "8.8.8.8", DNS: "bad.example", Protocol: "udp"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"bad.example", "1.2.3.4", "8.8.8.8"}, lookup.queried)
	require.Len(t, got, 2)
	assert.Equal(t, "bad.example", got[0].Indicator)
	assert.Equal(t, "1.2.3.4", got[1].Indicator)

	assert.Equal(t, 2.0, testutil.ToFloat64(reg.LookupsTotal.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.LookupsTotal.WithLabelValues("not_found")))
}

func TestEnricher_SkipsInternalAddresses(t *testing.T) {
	lookup := &fakeLookup{}
	e := NewEnricher(lookup, "", nil, nil)

	_, err := e.Enrich(context.Background(), []flow.Record{
		{Source: "h", Destination: "192.168.1.10", DNS: "NO_DNS", Protocol: "tcp"},
		{Source: "h", Destination: "10.1.2.3", DNS: "NO_DNS", Protocol: "tcp"},
		{Source: "h", Destination: "127.0.0.1", DNS: "NO_DNS", Protocol: "tcp"},
		{Source: "h", Destination: "fe80::1", DNS: "NO_DNS", Protocol: "tcp"},
		{Source: "h", Destination: "93.184.216.34", DNS: "intranet.corp", Protocol: "tcp"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"intranet.corp", "93.184.216.34"}, lookup.queried)
}

func TestEnricher_LookupErrorAborts(t *testing.T) {
	boom := errors.New("portal down")
	lookup := &fakeLookup{errs: map[string]error{"1.1.1.1": boom}}
	e := NewEnricher(lookup, flow.DefaultNoName, nil, nil)

	_, err := e.Enrich(context.Background(), []flow.Record{
		{Source: "h", Destination: "1.1.1.1", DNS: "NO_DNS", Protocol: "tcp"},
		{Source: "h", Destination: "2.2.2.2", DNS: "NO_DNS", Protocol: "tcp"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"1.1.1.1"}, lookup.queried)
}

func TestIsInternal(t *testing.T) {
	assert.True(t, isInternal("192.168.0.1"))
	assert.True(t, isInternal("172.16.5.4"))
	assert.True(t, isInternal("::1"))
	assert.True(t, isInternal("0.0.0.0"))
	assert.False(t, isInternal("8.8.8.8"))
	assert.False(t, isInternal("example.192.168.org"))
}
