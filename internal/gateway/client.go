// ABOUTME: Typed HTTP client for the Flink SQL Gateway REST v3 API.
// ABOUTME: One method per endpoint; no retries, no state beyond the base URL.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is used when no gateway address is configured.
const DefaultBaseURL = "http://localhost:8083"

// Client talks to a Flink SQL Gateway over its REST v3 API. It performs no
// retries; retry policy belongs to the caller.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mainly for tests and
// custom timeouts.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// NewClient creates a gateway client for the given base URL. An empty base
// URL falls back to DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured gateway address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetClusterInfo returns the gateway's informational map from GET /v3/info.
// No session is required.
func (c *Client) GetClusterInfo(ctx context.Context) (map[string]any, error) {
	var info map[string]any
	if err := c.do(ctx, http.MethodGet, "/v3/info", nil, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// OpenSession opens a new gateway session with the given properties and
// returns the session handle.
func (c *Client) OpenSession(ctx context.Context, properties map[string]string) (string, error) {
	if properties == nil {
		properties = map[string]string{}
	}
	var resp openSessionResponse
	if err := c.do(ctx, http.MethodPost, "/v3/sessions", openSessionRequest{Properties: properties}, &resp); err != nil {
		return "", err
	}
	if resp.SessionHandle == "" {
		return "", fmt.Errorf("gateway returned no session handle")
	}
	return resp.SessionHandle, nil
}

// CloseSession closes a gateway session. Best-effort: callers are expected to
// log failures rather than propagate them.
func (c *Client) CloseSession(ctx context.Context, sessionHandle string) error {
	return c.do(ctx, http.MethodDelete, "/v3/sessions/"+sessionHandle, nil, nil)
}

// GetSessionConfig returns the session's current configuration properties.
func (c *Client) GetSessionConfig(ctx context.Context, sessionHandle string) (map[string]string, error) {
	var resp sessionConfigResponse
	if err := c.do(ctx, http.MethodGet, "/v3/sessions/"+sessionHandle, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Properties, nil
}

// ExecuteStatement submits a SQL statement for execution and returns the
// operation handle addressing it.
func (c *Client) ExecuteStatement(ctx context.Context, sessionHandle, statement string, executionConfig map[string]string) (string, error) {
	req := executeStatementRequest{Statement: statement, ExecutionConfig: executionConfig}
	var resp executeStatementResponse
	if err := c.do(ctx, http.MethodPost, "/v3/sessions/"+sessionHandle+"/statements", req, &resp); err != nil {
		return "", err
	}
	if resp.OperationHandle == "" {
		return "", fmt.Errorf("gateway returned no operation handle")
	}
	return resp.OperationHandle, nil
}

// GetOperationStatus returns the current status of an operation.
func (c *Client) GetOperationStatus(ctx context.Context, sessionHandle, operationHandle string) (string, error) {
	var resp operationStatusResponse
	path := "/v3/sessions/" + sessionHandle + "/operations/" + operationHandle + "/status"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return strings.ToUpper(resp.Status), nil
}

// FetchResultPage fetches one page of an operation's result set at the given
// token. Rows are requested in JSON format.
func (c *Client) FetchResultPage(ctx context.Context, sessionHandle, operationHandle string, token int64) (*ResultPage, error) {
	var resp fetchResultsResponse
	path := fmt.Sprintf("/v3/sessions/%s/operations/%s/result/%d?rowFormat=JSON", sessionHandle, operationHandle, token)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	resultType := strings.ToUpper(resp.ResultType)
	page := &ResultPage{
		ResultType:    resultType,
		IsQueryResult: resp.IsQueryResult,
		JobID:         resp.JobID,
		Columns:       resp.Results.Columns,
		Rows:          resp.Results.Data,
		NextToken:     token + 1,
		IsEnd:         resultType == ResultTypeEOS || (resultType == ResultTypePayload && resp.NextResultURI == ""),
	}
	// NOT_READY pages must be re-fetched at the same token.
	if resultType == ResultTypeNotReady {
		page.NextToken = token
	}
	return page, nil
}

// CloseOperation releases an operation's result set. Best-effort, like
// CloseSession.
func (c *Client) CloseOperation(ctx context.Context, sessionHandle, operationHandle string) error {
	return c.do(ctx, http.MethodDelete, "/v3/sessions/"+sessionHandle+"/operations/"+operationHandle, nil, nil)
}

// StopJob asks the cluster to stop a job. The gateway has no dedicated REST
// verb for this; it is a STOP JOB statement dispatched through the statement
// path. Returns the operation handle of the stop statement.
func (c *Client) StopJob(ctx context.Context, sessionHandle, jobID string) (string, error) {
	return c.ExecuteStatement(ctx, sessionHandle, fmt.Sprintf("STOP JOB '%s'", jobID), nil)
}

// do performs one HTTP round trip. Transport failures are wrapped as
// ErrUnreachable; non-2xx responses become *Error with the gateway's message.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(resp)
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// errorFromResponse extracts the gateway's error message from a non-2xx
// response. The gateway reports errors as {"errors": ["...", ...]}.
func (c *Client) errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errBody struct {
		Errors []string `json:"errors"`
	}
	if json.Unmarshal(body, &errBody) == nil && len(errBody.Errors) > 0 {
		return &Error{StatusCode: resp.StatusCode, Message: strings.Join(errBody.Errors, "; ")}
	}
	return &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
