package intel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dd0wney/cluso-threatgraph/pkg/logging"
	"github.com/dd0wney/cluso-threatgraph/pkg/validation"
)

const (
	// DefaultWait is the pause before each poll of a search task.
	DefaultWait = 500 * time.Millisecond

	// DefaultPolls bounds how often one search task is polled.
	DefaultPolls = 10

	// DefaultTimeout applies to each HTTP request.
	DefaultTimeout = 10 * time.Second
)

// Task states reported by the portal.
const (
	taskRunning  = "running"
	taskNotFound = "not_found"
	taskReady    = "ready"
)

// ClientConfig configures the intelligence portal client.
type ClientConfig struct {
	URL     string
	Token   string
	Wait    time.Duration
	Polls   int
	Timeout time.Duration
}

// Client searches indicators on the threat intelligence portal. A search is
// an asynchronous task that is submitted once and then polled.
type Client struct {
	baseURL    string
	token      string
	wait       time.Duration
	polls      int
	httpClient *http.Client
	logger     logging.Logger
}

// NewClient creates a new portal client
func NewClient(cfg ClientConfig, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		wait:    validation.DefaultOrDuration(cfg.Wait, DefaultWait),
		polls:   validation.DefaultOrInt(cfg.Polls, DefaultPolls),
		httpClient: &http.Client{
			Timeout: validation.DefaultOrDuration(cfg.Timeout, DefaultTimeout),
		},
		logger: logger.With(logging.Component("tip")),
	}
}

// Ping checks that the portal is up. Its base URL only accepts POST, so a
// healthy portal answers GET with 405.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		return &StatusError{Op: "ping", URL: c.baseURL, Code: resp.StatusCode}
	}
	c.logger.Info("tip is available")
	return nil
}

// Search submits a search task for indicator and polls it until it settles.
// It returns nil, nil when the portal has nothing on the indicator or the
// task does not finish within the poll budget.
func (c *Client) Search(ctx context.Context, indicator string) (*Bundle, error) {
	log := c.logger.With(logging.Indicator(indicator))
	log.Info("searching indicator")

	taskID, err := c.submit(ctx, indicator)
	if err != nil {
		return nil, err
	}
	log.Debug("search task submitted", logging.String("task_id", taskID))

	taskURL := c.baseURL + "/" + url.PathEscape(taskID) + "/"
	for attempt := 0; attempt < c.polls; attempt++ {
		if err := sleep(ctx, c.wait); err != nil {
			return nil, err
		}

		status, bundle, err := c.poll(ctx, taskURL)
		if err != nil {
			return nil, err
		}
		switch status {
		case taskRunning:
			log.Debug("task is running", logging.Int("attempt", attempt+1))
		case taskNotFound:
			log.Debug("indicator not found")
			return nil, nil
		case taskReady:
			log.Debug("indicator found")
			return bundle, nil
		default:
			log.Error("unknown task status", logging.String("status", status))
		}
	}

	log.Error("search task did not finish, skipping indicator", logging.Int("polls", c.polls))
	return nil, nil
}

func (c *Client) submit(ctx context.Context, indicator string) (string, error) {
	form := url.Values{"ioc": {indicator}}
	feedsURL := c.baseURL + "/feeds/"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, feedsURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Op: "submit", URL: feedsURL, Code: resp.StatusCode}
	}

	var task struct {
		TaskID Scalar `json:"task_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return "", fmt.Errorf("decode task: %w", err)
	}
	if task.TaskID == "" {
		return "", errors.New("tip submit: response has no task_id")
	}
	return task.TaskID.String(), nil
}

// poll fetches the task once. A 202 is reported as a running task.
func (c *Client) poll(ctx context.Context, taskURL string) (string, *Bundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, taskURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return taskRunning, nil, nil
	case http.StatusOK:
	default:
		return "", nil, &StatusError{Op: "poll", URL: taskURL, Code: resp.StatusCode}
	}

	var body struct {
		Task struct {
			Status string `json:"status"`
		} `json:"task"`
		Result *Bundle `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", nil, fmt.Errorf("decode task result: %w", err)
	}
	return body.Task.Status, body.Result, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Token "+c.token)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
