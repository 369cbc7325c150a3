// Package remote is the HTTP client for the wallet's backend services: the
// transaction preparer and broadcaster, the transfer viewer and the ledger RPC.
package remote

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

	"github.com/Klingon-tech/codewallet/internal/log"
)

// DefaultTimeout bounds a read-only lookup when no timeout is configured.
const DefaultTimeout = 15 * time.Second

// maxBodySize caps how much of a response body is read.
const maxBodySize = 4 << 20

var (
	// ErrRemote wraps every failure reported by or on the way to a remote service.
	ErrRemote = errors.New("remote error")
	// ErrNotFound is matched by errors for resources the remote does not know.
	ErrNotFound = errors.New("not found")
)

// HTTPError is returned for a non-2xx response without an error body.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// Unwrap matches ErrRemote, and ErrNotFound for 404.
func (e *HTTPError) Unwrap() []error {
	if e.StatusCode == http.StatusNotFound {
		return []error{ErrRemote, ErrNotFound}
	}
	return []error{ErrRemote}
}

// APIError is returned when the service answers with an {"error": ...} body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: %s", e.Message)
}

// Unwrap matches ErrRemote, and ErrNotFound when the message says so or the
// status is 404.
func (e *APIError) Unwrap() []error {
	if e.StatusCode == http.StatusNotFound || strings.Contains(strings.ToLower(e.Message), "not found") {
		return []error{ErrRemote, ErrNotFound}
	}
	return []error{ErrRemote}
}

// Client talks JSON over HTTP to the backend API and the ledger node.
type Client struct {
	apiURL  string
	nodeURL string
	http    *http.Client
	lookup  time.Duration
}

// New creates a client for the backend at apiURL and the ledger node at nodeURL.
func New(apiURL, nodeURL string) *Client {
	return NewWithTimeout(apiURL, nodeURL, DefaultTimeout)
}

// NewWithTimeout creates a client whose read-only lookups (ViewTransfer,
// TransactionByHash) give up after timeout. Prepare and Submit are bounded
// only by the caller's context: a submit cut short may still land on-chain.
func NewWithTimeout(apiURL, nodeURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		apiURL:  strings.TrimRight(apiURL, "/"),
		nodeURL: strings.TrimRight(nodeURL, "/"),
		http:    &http.Client{},
		lookup:  timeout,
	}
}

// errorBody is the error envelope shared by the backend endpoints.
type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRemote, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrRemote, err)
	}
	log.Remote.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Remote call")

	var eb errorBody
	if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: eb.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrRemote, err)
	}
	return nil
}
