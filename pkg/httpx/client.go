// Package httpx wraps resty with the call-out policy every external
// collaborator shares: short per-request timeout, bounded retries on
// transient failures, bearer auth, JSON bodies.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	requestTimeout = 5 * time.Second
	// maxAttempts counts the first try; resty's retry count is attempts-1.
	maxAttempts  = 3
	retryWaitMin = 200 * time.Millisecond
	retryWaitMax = time.Second
)

// ErrUnavailable reports that a collaborator stayed unreachable after the
// retry budget. State functions route to the dialog error state on it; it
// never crosses the Application boundary as a panic.
var ErrUnavailable = errors.New("external service unavailable")

// StatusError is a non-2xx, non-transient response (4xx). The status code is
// part of collaborator contracts (404 means "not found" to the event store).
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client is one collaborator endpoint with the shared retry policy applied.
type Client struct {
	r *resty.Client
}

// New builds a client for one collaborator. token may be empty for
// unauthenticated services; userAgent identifies the caller in their logs.
func New(baseURL, token, userAgent string) *Client {
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetRetryCount(maxAttempts - 1).
		SetRetryWaitTime(retryWaitMin).
		SetRetryMaxWaitTime(retryWaitMax).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("User-Agent", userAgent).
		SetHeader("Content-Type", "application/json")

	if token != "" {
		r.SetAuthToken(token)
	}

	return &Client{r: r}
}

// Get performs a GET and decodes the JSON response into out (when non-nil).
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	req := c.r.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Get(path)
	return c.classify(resp, err)
}

// Post performs a POST with a JSON body and decodes the response into out
// (when non-nil).
func (c *Client) Post(ctx context.Context, path string, query url.Values, body, out any) error {
	req := c.r.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Post(path)
	return c.classify(resp, err)
}

// classify folds the transport/status outcome into the error contract:
// nil for 2xx, ErrUnavailable for exhausted transient failures, StatusError
// for the rest.
func (c *Client) classify(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d after %d attempts", ErrUnavailable, code, maxAttempts)
	default:
		return &StatusError{Code: code, Body: string(resp.Body())}
	}
}
