// ABOUTME: Tool definitions and handlers for the SQL gateway tool surface.
// ABOUTME: Each tool is a name, a JSON schema, and a handler over the job core.

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/datalane/flink-sql-mcp/internal/gateway"
	"github.com/datalane/flink-sql-mcp/internal/jobs"
	"github.com/datalane/flink-sql-mcp/internal/session"
)

// Defaults for the bounded collection policy. Callers that omit the budgets
// get a small, fast sample.
const (
	DefaultMaxRows    = 5
	DefaultMaxSeconds = 15.0
)

// Handler executes one tool call. Input is the raw JSON arguments object;
// output is the raw JSON result object.
type Handler func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// Tool pairs a tool definition with its handler.
type Tool struct {
	Name        string
	Description string
	InputSchema string
	Handler     Handler
}

// Pack builds the full tool set over the shared session, runner, and
// canceller.
func Pack(owner *session.Owner, runner *jobs.Runner, canceller *jobs.Canceller, client *gateway.Client) []*Tool {
	h := &handlers{
		session:   owner,
		runner:    runner,
		canceller: canceller,
		client:    client,
	}
	return []*Tool{
		{
			Name:        "flink_info",
			Description: "Get cluster version information from the SQL gateway",
			InputSchema: `{"type":"object","properties":{}}`,
			Handler:     h.FlinkInfo,
		},
		{
			Name:        "get_config",
			Description: "Get the current session configuration properties",
			InputSchema: `{"type":"object","properties":{}}`,
			Handler:     h.GetConfig,
		},
		{
			Name:        "configure_session",
			Description: "Execute a session configuration statement (SET, RESET, USE, ADD JAR, CREATE/DROP/ALTER)",
			InputSchema: `{"type":"object","properties":{"statement":{"type":"string","description":"The configuration statement to execute"}},"required":["statement"]}`,
			Handler:     h.ConfigureSession,
		},
		{
			Name:        "run_query_collect_and_stop",
			Description: "Run a query, collect up to max_rows rows within max_seconds, then stop any cluster job it spawned",
			InputSchema: `{"type":"object","properties":{"query":{"type":"string","description":"The SQL query to run"},"max_rows":{"type":"integer","description":"Row budget, default 5"},"max_seconds":{"type":"number","description":"Time budget in seconds, default 15"}},"required":["query"]}`,
			Handler:     h.RunQueryCollectAndStop,
		},
		{
			Name:        "run_query_stream_start",
			Description: "Start a streaming statement and return its cluster job ID without waiting for results",
			InputSchema: `{"type":"object","properties":{"query":{"type":"string","description":"The streaming SQL statement to start"}},"required":["query"]}`,
			Handler:     h.RunQueryStreamStart,
		},
		{
			Name:        "fetch_result_by_jobid",
			Description: "Fetch the next result page of a tracked streaming job by its job ID",
			InputSchema: `{"type":"object","properties":{"job_id":{"type":"string","description":"The cluster job ID returned by run_query_stream_start"},"token":{"type":"integer","description":"Explicit page token; omit to continue from the job's cursor"}},"required":["job_id"]}`,
			Handler:     h.FetchResultByJobID,
		},
		{
			Name:        "cancel_job",
			Description: "Stop a tracked streaming job and release its resources",
			InputSchema: `{"type":"object","properties":{"job_id":{"type":"string","description":"The cluster job ID to cancel"}},"required":["job_id"]}`,
			Handler:     h.CancelJob,
		},
	}
}

type handlers struct {
	session   *session.Owner
	runner    *jobs.Runner
	canceller *jobs.Canceller
	client    *gateway.Client
}

func (h *handlers) FlinkInfo(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	info, err := h.client.GetClusterInfo(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(info)
}

func (h *handlers) GetConfig(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	properties, err := h.session.Config(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"properties": properties})
}

type configureSessionInput struct {
	Statement string `json:"statement"`
}

func (h *handlers) ConfigureSession(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in configureSessionInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, &InputError{Message: err.Error()}
	}
	if in.Statement == "" {
		return nil, &InputError{Message: "statement is required"}
	}

	if err := h.session.ApplyConfiguration(ctx, in.Statement); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"status": "applied", "statement": in.Statement})
}

type runQueryCollectInput struct {
	Query      string   `json:"query"`
	MaxRows    *int     `json:"max_rows"`
	MaxSeconds *float64 `json:"max_seconds"`
}

func (h *handlers) RunQueryCollectAndStop(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in runQueryCollectInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, &InputError{Message: err.Error()}
	}
	if in.Query == "" {
		return nil, &InputError{Message: "query is required"}
	}
	maxRows := DefaultMaxRows
	if in.MaxRows != nil {
		maxRows = *in.MaxRows
	}
	maxSeconds := DefaultMaxSeconds
	if in.MaxSeconds != nil {
		maxSeconds = *in.MaxSeconds
	}
	if maxRows < 0 {
		return nil, &InputError{Message: fmt.Sprintf("max_rows must be >= 0, got %d", maxRows)}
	}
	if maxSeconds <= 0 {
		return nil, &InputError{Message: fmt.Sprintf("max_seconds must be > 0, got %v", maxSeconds)}
	}

	result, err := h.runner.CollectAndStop(ctx, in.Query, maxRows, maxSeconds)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"columns":        columnsPayload(result.Columns),
		"rows":           rowsPayload(result.Rows),
		"row_count":      len(result.Rows),
		"exhausted":      result.Exhausted,
		"job_id":         result.JobID,
		"stop_requested": result.StopRequested,
		"last_status":    result.LastStatus,
	})
}

type runQueryStreamInput struct {
	Query string `json:"query"`
}

func (h *handlers) RunQueryStreamStart(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in runQueryStreamInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, &InputError{Message: err.Error()}
	}
	if in.Query == "" {
		return nil, &InputError{Message: "query is required"}
	}

	jobID, err := h.runner.StreamStart(ctx, in.Query)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"job_id": jobID, "status": "started"})
}

type fetchResultInput struct {
	JobID string `json:"job_id"`
	Token *int64 `json:"token"`
}

func (h *handlers) FetchResultByJobID(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in fetchResultInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, &InputError{Message: err.Error()}
	}
	if in.JobID == "" {
		return nil, &InputError{Message: "job_id is required"}
	}
	if in.Token != nil && *in.Token < 0 {
		return nil, &InputError{Message: fmt.Sprintf("token must be >= 0, got %d", *in.Token)}
	}

	page, err := h.canceller.FetchByJobID(ctx, in.JobID, in.Token)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"job_id":     page.JobID,
		"columns":    columnsPayload(page.Columns),
		"rows":       rowsPayload(page.Rows),
		"row_count":  len(page.Rows),
		"next_token": page.NextToken,
		"is_end":     page.IsEnd,
	})
}

type cancelJobInput struct {
	JobID string `json:"job_id"`
}

func (h *handlers) CancelJob(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in cancelJobInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, &InputError{Message: err.Error()}
	}
	if in.JobID == "" {
		return nil, &InputError{Message: "job_id is required"}
	}

	result, err := h.canceller.Cancel(ctx, in.JobID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"job_id":  result.JobID,
		"status":  result.Status,
		"stopped": result.Gone,
	})
}

// columnsPayload renders columns as name/type pairs. The logical type is
// passed through as the gateway reported it.
func columnsPayload(columns []gateway.Column) []map[string]any {
	out := make([]map[string]any, 0, len(columns))
	for _, c := range columns {
		col := map[string]any{"name": c.Name}
		if len(c.LogicalType) > 0 {
			col["logical_type"] = c.LogicalType
		}
		if c.Comment != "" {
			col["comment"] = c.Comment
		}
		out = append(out, col)
	}
	return out
}

// rowsPayload renders rows as kind/fields pairs, preserving the gateway's
// field encoding.
func rowsPayload(rows []gateway.Row) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, map[string]any{"kind": r.Kind, "fields": r.Fields})
	}
	return out
}
