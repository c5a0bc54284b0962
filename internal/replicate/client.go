package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Static errors for Replicate client operations.
var (
	// ErrCredentialRequired is returned when no API token is supplied for a call.
	ErrCredentialRequired = errors.New("replicate: credential is required")
	// ErrPollURLRequired is returned when the polling URL is not provided.
	ErrPollURLRequired = errors.New("replicate: polling URL is required")
	// ErrNoTrackingURL is returned when the submit acknowledgment has no urls.get link.
	ErrNoTrackingURL = errors.New("replicate: no tracking URL available")
	// ErrProviderUnavailable is returned when the provider cannot be reached.
	ErrProviderUnavailable = errors.New("replicate: provider unavailable")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("replicate: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("replicate: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("replicate: request failed")
	// ErrMalformedResponse is returned when the response body cannot be decoded.
	ErrMalformedResponse = errors.New("replicate: malformed response")
)

// DefaultBaseURL is the public Replicate API root.
const DefaultBaseURL = "https://api.replicate.com/v1"

// authScheme is the Authorization scheme Replicate accepts for API tokens.
const authScheme = "Token"

// Client defines the interface for interacting with the Replicate API.
// The credential is passed on every call and never stored by the client.
type Client interface {
	// Submit creates a prediction and returns it with PollURL populated.
	Submit(ctx context.Context, credential string, req SubmitRequest) (Prediction, error)

	// Get fetches the current state of a prediction from its polling URL.
	Get(ctx context.Context, credential, pollURL string) (Prediction, error)
}

// HTTPClient is the HTTP implementation of the Replicate Client interface.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the Replicate API.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = strings.TrimRight(url, "/")
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		if d > 0 {
			hc.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient creates a new Replicate HTTP client.
func NewClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit creates a prediction. It performs exactly one request and never retries.
func (c *HTTPClient) Submit(ctx context.Context, credential string, req SubmitRequest) (Prediction, error) {
	if credential == "" {
		return Prediction{}, ErrCredentialRequired
	}

	reqBody := predictionRequest{
		Version: req.ModelVersion,
		Input:   newPredictionInput(req),
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Prediction{}, fmt.Errorf("replicate: marshal request: %w", err)
	}

	var resp predictionResponse
	if err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/predictions", credential, bodyBytes, &resp); err != nil {
		return Prediction{}, err
	}

	if resp.URLs.Get == "" {
		return Prediction{}, ErrNoTrackingURL
	}

	return resp.toPrediction(), nil
}

// Get fetches the current state of a prediction.
func (c *HTTPClient) Get(ctx context.Context, credential, pollURL string) (Prediction, error) {
	if pollURL == "" {
		return Prediction{}, ErrPollURLRequired
	}
	if credential == "" {
		return Prediction{}, ErrCredentialRequired
	}

	var resp predictionResponse
	if err := c.doRequest(ctx, http.MethodGet, pollURL, credential, nil, &resp); err != nil {
		return Prediction{}, err
	}

	p := resp.toPrediction()
	if p.PollURL == "" {
		p.PollURL = pollURL
	}
	return p, nil
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, url, credential string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("replicate: create request: %w", err)
	}

	req.Header.Set("Authorization", authScheme+" "+credential)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("replicate: %w", ctxErr)
		}
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrProviderUnavailable, err)
	}

	// Handle non-2xx status codes
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := describeError(respBody)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, msg)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", ErrRateLimited, msg)
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, msg)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
	}

	return nil
}

// describeError extracts Replicate's detail message from an error body,
// falling back to the raw body.
func describeError(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Title != "" {
			return e.Title
		}
	}
	return strings.TrimSpace(string(body))
}
