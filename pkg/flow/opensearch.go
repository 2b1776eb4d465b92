package flow

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/dd0wney/cluso-threatgraph/pkg/logging"
	"github.com/dd0wney/cluso-threatgraph/pkg/validation"
)

// DefaultBucketSize caps the number of distinct connections per fetch.
const DefaultBucketSize = 1000

// ErrNoClusterName is returned by Ping when the info endpoint answers without
// identifying its cluster.
var ErrNoClusterName = errors.New("opensearch info has no cluster_name")

// OpenSearchConfig configures the OpenSearch flow source.
type OpenSearchConfig struct {
	Addresses          []string
	Username           string
	Password           string
	InsecureSkipVerify bool
	NoName             string
	BucketSize         int
}

// OpenSearchSource aggregates connection events stored in OpenSearch into
// flow records.
type OpenSearchSource struct {
	client     *opensearch.Client
	noName     string
	bucketSize int
	logger     logging.Logger
}

// NewOpenSearchSource creates a source for the configured cluster.
func NewOpenSearchSource(cfg OpenSearchConfig, logger logging.Logger) (*OpenSearchSource, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec // flow clusters commonly run self-signed
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}
	return &OpenSearchSource{
		client:     client,
		noName:     validation.DefaultOr(cfg.NoName, DefaultNoName),
		bucketSize: validation.DefaultOrInt(cfg.BucketSize, DefaultBucketSize),
		logger:     logger.With(logging.Component("opensearch")),
	}, nil
}

// Ping checks that the cluster answers its info endpoint with a cluster name.
func (s *OpenSearchSource) Ping(ctx context.Context) error {
	res, err := opensearchapi.InfoRequest{}.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("opensearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch info: %s", res.Status())
	}

	var info struct {
		ClusterName string `json:"cluster_name"`
		Version     struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return fmt.Errorf("decode opensearch info: %w", err)
	}
	if info.ClusterName == "" {
		return ErrNoClusterName
	}

	s.logger.Info("opensearch is available",
		logging.String("cluster", info.ClusterName),
		logging.String("version", info.Version.Number))
	return nil
}

type connectionsResponse struct {
	Aggregations *struct {
		Connections struct {
			Buckets []struct {
				Key      []string `json:"key"`
				DocCount int64    `json:"doc_count"`
			} `json:"buckets"`
		} `json:"connections"`
	} `json:"aggregations"`
}

// Fetch returns one record per distinct (source, destination, name, protocol)
// seen in index since window.
func (s *OpenSearchSource) Fetch(ctx context.Context, index, window string) ([]Record, error) {
	body, err := json.Marshal(connectionsQuery(validation.DefaultOr(window, DefaultWindow), s.noName, s.bucketSize))
	if err != nil {
		return nil, fmt.Errorf("encode flow query: %w", err)
	}

	res, err := opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("opensearch search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("opensearch search %s: %s", index, res.Status())
	}

	var parsed connectionsResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode flow aggregation: %w", err)
	}
	if parsed.Aggregations == nil {
		s.logger.Error("no aggregations in search result", logging.String("index", index))
		return []Record{}, nil
	}

	buckets := parsed.Aggregations.Connections.Buckets
	records := make([]Record, 0, len(buckets))
	for _, b := range buckets {
		if len(b.Key) != 4 {
			s.logger.Warn("skipping malformed connection bucket", logging.Any("key", b.Key))
			continue
		}
		records = append(records, Record{
			Source:      b.Key[0],
			Destination: b.Key[1],
			DNS:         b.Key[2],
			Protocol:    b.Key[3],
		})
	}

	s.logger.Debug("flow records fetched", logging.Count(len(records)), logging.String("index", index))
	return records, nil
}

func connectionsQuery(window, noName string, size int) map[string]any {
	return map[string]any{
		"size": 0,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{
						"range": map[string]any{
							"@timestamp": map[string]any{"gte": window, "lte": "now"},
						},
					},
				},
			},
		},
		"aggs": map[string]any{
			"connections": map[string]any{
				"multi_terms": map[string]any{
					"terms": []any{
						map[string]any{"field": "source.ip.keyword"},
						map[string]any{"field": "destination.ip.keyword"},
						map[string]any{"field": "destination.dns.keyword", "missing": noName},
						map[string]any{"field": "event.type.keyword"},
					},
					"size": size,
				},
				"aggs": map[string]any{
					"first_seen":       map[string]any{"min": map[string]any{"field": "@timestamp"}},
					"last_seen":        map[string]any{"max": map[string]any{"field": "@timestamp"}},
					"connection_count": map[string]any{"value_count": map[string]any{"field": "source.ip.keyword"}},
				},
			},
		},
	}
}
