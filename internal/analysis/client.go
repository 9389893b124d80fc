// Package analysis talks to the CV analysis and job matching services and
// sequences them with the interview model calls.
package analysis

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTimeout = 3 * time.Minute

	cvPath    = "/analizar-cv/"
	jobsPath  = "/analizar_cv/"
	userAgent = "worky/analysis"
	maxBody   = 10 << 20
)

// Config points the client at the upstream services.
type Config struct {
	BaseURL string        `mapstructure:"base-url"`
	JobsURL string        `mapstructure:"jobs-url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Client struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	BaseURL    string
	JobsURL    string
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("analysis base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	jobsURL := cfg.JobsURL
	if jobsURL == "" {
		jobsURL = cfg.BaseURL
	}

	return &Client{
		logger:     logger,
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  userAgent,
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		JobsURL:    strings.TrimRight(jobsURL, "/"),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, q url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &Error{Category: CategoryNetwork, Op: op, Err: err}
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", c.UserAgent)

	c.logger.Debug("make request", zap.String("op", op), zap.String("url", req.URL.String()))

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &Error{Category: classifyTransport(ctx, err), Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("got response",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return &Error{Category: CategoryMalformed, Op: op, Status: resp.StatusCode, Err: err}
		}
		defer gz.Close()
		reader = gz
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxBody))
	if err != nil {
		return &Error{Category: classifyTransport(ctx, err), Op: op, Status: resp.StatusCode, Err: err}
	}

	if cat, failed := classifyStatus(resp.StatusCode); failed {
		return &Error{Category: cat, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("bad status: %s", resp.Status)}
	}

	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Category: CategoryMalformed, Op: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func classifyStatus(code int) (Category, bool) {
	switch {
	case code >= 200 && code < 300:
		return "", false
	case code == http.StatusNotFound:
		return CategoryNotFound, true
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return CategoryTimeout, true
	case code >= 500:
		return CategoryUpstream, true
	default:
		return CategoryRejected, true
	}
}

func classifyTransport(ctx context.Context, err error) Category {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	return CategoryNetwork
}

// roleParam joins the words of a role with underscores, as the service expects.
func roleParam(role string) string {
	return strings.Join(strings.Fields(role), "_")
}
