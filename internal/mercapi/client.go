package mercapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	maxAttempts = 5

	// Payload-level code the service returns when the caller is throttled.
	// This arrives with HTTP 200, so it has to be checked before treating a
	// response as data.
	throttleCode = 10500
)

var (
	// ErrNotFound means the service answered with an empty result set. Not
	// retried, valid outcome.
	ErrNotFound = errors.New("mercapi: not found")
	// ErrServiceUnavailable is returned when retries are exhausted on 503.
	ErrServiceUnavailable = errors.New("mercapi: service temporarily unavailable")
)

// failure classes for the retry policy
type failClass int

const (
	failThrottle failClass = iota
	failUnavailable
	failTimeout
	failOther
)

// backoffDelay returns the sleep before the next attempt. Pure so the policy
// is testable without real time. attempt is 1-based.
func backoffDelay(class failClass, attempt int) time.Duration {
	switch class {
	case failThrottle:
		return time.Duration(attempt) * 5 * time.Second
	case failUnavailable:
		return time.Duration(attempt) * 10 * time.Second
	case failTimeout:
		return 5 * time.Second
	default:
		return 3 * time.Second
	}
}

// SleepFunc is injected so tests can observe delays instead of waiting them.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepReal(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Config struct {
	BaseURL string
	Ticket  string
	Timeout time.Duration // per-call HTTP timeout, defaults to 45s
	Client  *http.Client
	Sleep   SleepFunc
}

// Client is the low-level access point to the procurement service. All
// throttle detection and retry policy lives here; callers above only see
// final results, ErrNotFound, or exhausted failures.
type Client struct {
	baseURL string
	ticket  string
	http    *http.Client
	sleep   SleepFunc
}

func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL: cfg.BaseURL,
		ticket:  cfg.Ticket,
		http:    cfg.Client,
		sleep:   cfg.Sleep,
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 45 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.sleep == nil {
		c.sleep = sleepReal
	}
	return c
}

// envelope is the common response wrapper. On throttling the service sends
// Codigo/Mensaje instead of a listing.
type envelope struct {
	Code    int             `json:"Codigo"`
	Message string          `json:"Mensaje"`
	Count   int             `json:"Cantidad"`
	Listing json.RawMessage `json:"Listado"`
}

type attemptError struct {
	class   failClass
	message string
	err     error
}

func (e *attemptError) Error() string { return e.message }
func (e *attemptError) Unwrap() error { return e.err }

// fetch runs one logical call with up to maxAttempts tries. It returns the
// raw listing for the caller to decode.
func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	var last *attemptError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		listing, aerr := c.doOnce(ctx, endpoint, params)
		if aerr == nil {
			return listing, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		last = aerr
		if attempt == maxAttempts {
			break
		}
		if err := c.sleep(ctx, backoffDelay(aerr.class, attempt)); err != nil {
			return nil, err
		}
	}

	if last.class == failUnavailable {
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, last.message)
	}
	return nil, fmt.Errorf("mercapi: %s after %d attempts: %w", last.message, maxAttempts, last.err)
}

func (c *Client) doOnce(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, *attemptError) {
	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("ticket", c.ticket)
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &attemptError{class: failOther, message: "build request failed", err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		class := failOther
		var nerr interface{ Timeout() bool }
		if errors.As(err, &nerr) && nerr.Timeout() {
			class = failTimeout
		}
		return nil, &attemptError{class: class, message: "request failed", err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, &attemptError{
			class:   failUnavailable,
			message: "service returned 503",
			err:     fmt.Errorf("http status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &attemptError{
			class:   failOther,
			message: fmt.Sprintf("unexpected http status %d", resp.StatusCode),
			err:     fmt.Errorf("http status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &attemptError{class: failOther, message: "read response failed", err: err}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &attemptError{class: failOther, message: "malformed response", err: err}
	}
	if env.Code == throttleCode {
		msg := env.Message
		if msg == "" {
			msg = "rate limit exceeded"
		}
		return nil, &attemptError{class: failThrottle, message: msg, err: errors.New(msg)}
	}

	return env.Listing, nil
}
