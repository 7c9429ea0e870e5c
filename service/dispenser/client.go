package dispenser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRetryDelay separates attempts against an unreachable master.
const DefaultRetryDelay = 100 * time.Millisecond

// Client asks a master dispenser for indices.
type Client struct {
	baseURL    string
	retryDelay time.Duration
	httpClient *http.Client
}

// NewClient creates a client for address, either host[:port] or an http(s) URL.
// A missing port defaults to DefaultPort.
func NewClient(address string, retryDelay time.Duration) (*Client, error) {
	if address == "" {
		return nil, fmt.Errorf("master address was empty")
	}
	baseURL := strings.TrimRight(address, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		if !strings.Contains(baseURL, ":") {
			baseURL += ":" + strconv.Itoa(DefaultPort)
		}
		baseURL = "http://" + baseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid master address %q: %w", address, err)
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Client{baseURL: baseURL, retryDelay: retryDelay, httpClient: &http.Client{Timeout: 30 * time.Second}}, nil
}

// Next returns the next index of jobKey or Done. Transient failures are
// retried after a fixed delay until ctx is done.
func (c *Client) Next(ctx context.Context, jobKey string, totalCalls int) (int, error) {
	URL := fmt.Sprintf("%s/getid/%s/%d", c.baseURL, url.PathEscape(jobKey), totalCalls)
	for attempt := 1; ; attempt++ {
		index, err := c.get(ctx, URL)
		if err == nil {
			return index, nil
		}
		logrus.WithFields(logrus.Fields{"job_key": jobKey, "attempt": attempt}).WithError(err).Debug("dispenser request failed")
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("gave up on %s after %d attempts: %w", URL, attempt, ctx.Err())
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Client) get(ctx context.Context, URL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, URL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	index, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: %w", body, err)
	}
	return index, nil
}
