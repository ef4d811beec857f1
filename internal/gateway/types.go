// ABOUTME: Wire types for the Flink SQL Gateway REST v3 API.
// ABOUTME: Covers sessions, statements, operation status, and paginated results.

package gateway

import "encoding/json"

// Operation status values reported by the gateway. The gateway owns this
// enumeration; these constants cover the values the server reacts to.
const (
	StatusPending  = "PENDING"
	StatusRunning  = "RUNNING"
	StatusFinished = "FINISHED"
	StatusError    = "ERROR"
	StatusCanceled = "CANCELED"
	StatusClosed   = "CLOSED"
)

// IsTerminal reports whether an operation status is terminal, i.e. the
// gateway will not move the operation out of it.
func IsTerminal(status string) bool {
	switch status {
	case StatusFinished, StatusError, StatusCanceled, StatusClosed:
		return true
	}
	return false
}

// Result types carried by a fetched page.
const (
	ResultTypeNotReady = "NOT_READY"
	ResultTypePayload  = "PAYLOAD"
	ResultTypeEOS      = "EOS"
)

type openSessionRequest struct {
	Properties map[string]string `json:"properties"`
}

type openSessionResponse struct {
	SessionHandle string `json:"sessionHandle"`
}

type sessionConfigResponse struct {
	Properties map[string]string `json:"properties"`
}

type executeStatementRequest struct {
	Statement       string            `json:"statement"`
	ExecutionConfig map[string]string `json:"executionConfig,omitempty"`
}

type executeStatementResponse struct {
	OperationHandle string `json:"operationHandle"`
}

type operationStatusResponse struct {
	Status string `json:"status"`
}

// Column describes one column of a result set.
type Column struct {
	Name        string          `json:"name"`
	LogicalType json.RawMessage `json:"logicalType,omitempty"`
	Comment     string          `json:"comment,omitempty"`
}

// Row is a single change-log entry in a result page. Kind is INSERT,
// UPDATE_BEFORE, UPDATE_AFTER or DELETE; Fields holds the column values.
type Row struct {
	Kind   string            `json:"kind"`
	Fields []json.RawMessage `json:"fields"`
}

type resultData struct {
	Columns []Column `json:"columns"`
	Data    []Row    `json:"data"`
}

type fetchResultsResponse struct {
	ResultType    string     `json:"resultType"`
	IsQueryResult bool       `json:"isQueryResult"`
	JobID         string     `json:"jobID"`
	ResultKind    string     `json:"resultKind"`
	Results       resultData `json:"results"`
	NextResultURI string     `json:"nextResultUri"`
}

// ResultPage is one fetched slice of an operation's result set. NextToken is
// the cursor for the following page; IsEnd marks the end of the stream. A page
// may carry a JobID before any rows arrive (streaming submissions surface the
// cluster job ID on the first page).
type ResultPage struct {
	ResultType    string
	IsQueryResult bool
	JobID         string
	Columns       []Column
	Rows          []Row
	NextToken     int64
	IsEnd         bool
}
