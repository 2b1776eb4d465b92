package intel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-threatgraph/pkg/logging"
)

// portal is a scripted intelligence portal: each poll of the task returns the
// next response in polls, repeating the last one.
type portal struct {
	t        *testing.T
	polls    []func(w http.ResponseWriter)
	pollHits atomic.Int32
	submit   func(w http.ResponseWriter, r *http.Request)
}

func (p *portal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if got := r.Header.Get("Authorization"); r.URL.Path != "/" && got != "Token secret" {
		p.t.Errorf("Authorization = %q", got)
	}

	switch r.URL.Path {
	case "/":
		w.WriteHeader(http.StatusMethodNotAllowed)
	case "/feeds/":
		if p.submit != nil {
			p.submit(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"task_id": 42}`)
	case "/42/":
		i := int(p.pollHits.Add(1)) - 1
		if i >= len(p.polls) {
			i = len(p.polls) - 1
		}
		p.polls[i](w)
	default:
		http.NotFound(w, r)
	}
}

func status(code int) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) { w.WriteHeader(code) }
}

func task(state string, result string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		if result == "" {
			result = "null"
		}
		_, _ = io.WriteString(w, `{"task":{"status":"`+state+`"},"result":`+result+`}`)
	}
}

func newTestClient(t *testing.T, p *portal) (*Client, *httptest.Server) {
	t.Helper()
	p.t = t
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)

	return NewClient(ClientConfig{
		URL:   srv.URL + "/",
		Token: "secret",
		Wait:  time.Millisecond,
	}, logging.NewNopLogger()), srv
}

func TestClient_SearchReady(t *testing.T) {
	p := &portal{
		submit: func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "1.2.3.4", r.PostForm.Get("ioc"))
			_ = json.NewEncoder(w).Encode(map[string]any{"task_id": "42"})
		},
		polls: []func(http.ResponseWriter){
			status(http.StatusAccepted),
			task("running", ""),
			task("ready", `{"ioc":{"ioc_type":"ip"},"graph":{"objects":[{"id":"malware--1","type":"malware","name":"x"}]}}`),
		},
	}
	client, _ := newTestClient(t, p)

	bundle, err := client.Search(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.Equal(t, "ip", bundle.IOC.Type)
	require.Len(t, bundle.Graph.Objects, 1)
	assert.Equal(t, "malware--1", bundle.Graph.Objects[0].ID)
	assert.EqualValues(t, 3, p.pollHits.Load())
}

func TestClient_SearchNotFound(t *testing.T) {
	p := &portal{polls: []func(http.ResponseWriter){task("not_found", "")}}
	client, _ := newTestClient(t, p)

	bundle, err := client.Search(context.Background(), "example.org")
	require.NoError(t, err)
	assert.Nil(t, bundle)
}

func TestClient_SearchPollCeiling(t *testing.T) {
	p := &portal{polls: []func(http.ResponseWriter){task("queued", "")}}
	client, _ := newTestClient(t, p)

	bundle, err := client.Search(context.Background(), "example.org")
	require.NoError(t, err)
	assert.Nil(t, bundle, "an unfinished task is treated as not found")
	assert.EqualValues(t, DefaultPolls, p.pollHits.Load())
}

func TestClient_SearchBadPollStatus(t *testing.T) {
	p := &portal{polls: []func(http.ResponseWriter){status(http.StatusInternalServerError)}}
	client, _ := newTestClient(t, p)

	_, err := client.Search(context.Background(), "example.org")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTIPStatus)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "poll", statusErr.Op)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
}

func TestClient_SearchBadSubmitStatus(t *testing.T) {
	p := &portal{
		submit: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) },
		polls:  []func(http.ResponseWriter){task("ready", "")},
	}
	client, _ := newTestClient(t, p)

	_, err := client.Search(context.Background(), "example.org")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "submit", statusErr.Op)
	assert.EqualValues(t, 0, p.pollHits.Load())
}

func TestClient_SearchCancelled(t *testing.T) {
	p := &portal{polls: []func(http.ResponseWriter){task("running", "")}}
	p.t = t
	srv := httptest.NewServer(p)
	defer srv.Close()

	client := NewClient(ClientConfig{URL: srv.URL, Token: "secret", Wait: time.Hour}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Search(ctx, "example.org")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Ping(t *testing.T) {
	client, _ := newTestClient(t, &portal{})
	assert.NoError(t, client.Ping(context.Background()))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewClient(ClientConfig{URL: srv.URL}, nil).Ping(context.Background())
	assert.ErrorIs(t, err, ErrTIPStatus)
}
