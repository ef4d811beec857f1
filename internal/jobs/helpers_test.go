// ABOUTME: Shared test fixtures for the jobs package.
// ABOUTME: A scriptable fake SQL gateway and fake-clock helpers.

package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datalane/flink-sql-mcp/internal/clock"
	"github.com/datalane/flink-sql-mcp/internal/gateway"
	"github.com/datalane/flink-sql-mcp/internal/session"
)

// pageSpec scripts one result page of a fake operation.
type pageSpec struct {
	resultType string // defaults to PAYLOAD
	jobID      string
	rowCount   int
	isEnd      bool
}

// fakeOp scripts one operation: successive status poll answers (the last one
// repeats) and result pages by token. notReadyFirst serves NOT_READY for that
// many result requests before the scripted pages; pageErr fails every result
// request with a gateway error instead.
type fakeOp struct {
	statuses      []string
	statusIdx     int
	pages         []pageSpec
	notReadyFirst int
	pageErr       string
}

// fakeGW is a scriptable SQL gateway for runner and canceller tests.
type fakeGW struct {
	mu          sync.Mutex
	srv         *httptest.Server
	ops         map[string]*fakeOp
	execQueue   []string // op handles handed out for non-STOP statements
	stoppedJobs []string
	stopFails   bool
	closedOps   []string
}

func newFakeGW(t *testing.T) *fakeGW {
	t.Helper()
	f := &fakeGW{ops: map[string]*fakeOp{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

// scriptOp registers an operation and queues it for the next statement
// execution.
func (f *fakeGW) scriptOp(handle string, op *fakeOp) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(op.statuses) == 0 {
		op.statuses = []string{"FINISHED"}
	}
	f.ops[handle] = op
	f.execQueue = append(f.execQueue, handle)
}

func (f *fakeGW) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/v3/sessions":
		json.NewEncoder(w).Encode(map[string]string{"sessionHandle": "session-1"})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/statements"):
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Statement string `json:"statement"`
		}
		json.Unmarshal(body, &req)

		if strings.HasPrefix(req.Statement, "STOP JOB") {
			if f.stopFails {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]any{"errors": []string{"stop rejected"}})
				return
			}
			jobID := strings.Trim(strings.TrimPrefix(req.Statement, "STOP JOB "), "'")
			f.stoppedJobs = append(f.stoppedJobs, jobID)
			f.ops["stop-op"] = &fakeOp{statuses: []string{"FINISHED"}}
			json.NewEncoder(w).Encode(map[string]string{"operationHandle": "stop-op"})
			return
		}

		if len(f.execQueue) == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{"errors": []string{"no scripted operation"}})
			return
		}
		handle := f.execQueue[0]
		f.execQueue = f.execQueue[1:]
		json.NewEncoder(w).Encode(map[string]string{"operationHandle": handle})

	case strings.HasSuffix(path, "/status"):
		op := f.lookupOp(path, w)
		if op == nil {
			return
		}
		status := op.statuses[min(op.statusIdx, len(op.statuses)-1)]
		op.statusIdx++
		json.NewEncoder(w).Encode(map[string]string{"status": status})

	case strings.Contains(path, "/result/"):
		op := f.lookupOp(path, w)
		if op == nil {
			return
		}
		var token int
		fmt.Sscanf(path[strings.LastIndex(path, "/result/"):], "/result/%d", &token)
		f.writePage(w, op, token)

	case r.Method == http.MethodDelete && strings.Contains(path, "/operations/"):
		f.closedOps = append(f.closedOps, path[strings.LastIndex(path, "/")+1:])
		json.NewEncoder(w).Encode(map[string]string{"status": "CLOSED"})

	case r.Method == http.MethodDelete:
		json.NewEncoder(w).Encode(map[string]string{"status": "CLOSED"})

	default:
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"errors": []string{"not found: " + path}})
	}
}

func (f *fakeGW) lookupOp(path string, w http.ResponseWriter) *fakeOp {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "operations" && i+1 < len(parts) {
			if op, ok := f.ops[parts[i+1]]; ok {
				return op
			}
		}
	}
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]any{"errors": []string{"operation not found"}})
	return nil
}

func (f *fakeGW) writePage(w http.ResponseWriter, op *fakeOp, token int) {
	if op.pageErr != "" {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"errors": []string{op.pageErr}})
		return
	}
	if op.notReadyFirst > 0 {
		op.notReadyFirst--
		json.NewEncoder(w).Encode(map[string]any{"resultType": "NOT_READY", "nextResultUri": fmt.Sprintf("/next/%d", token)})
		return
	}
	if token >= len(op.pages) {
		json.NewEncoder(w).Encode(map[string]any{"resultType": "EOS", "results": map[string]any{"data": []any{}}})
		return
	}
	spec := op.pages[token]
	resultType := spec.resultType
	if resultType == "" {
		resultType = "PAYLOAD"
	}

	rows := make([]map[string]any, 0, spec.rowCount)
	for i := 0; i < spec.rowCount; i++ {
		rows = append(rows, map[string]any{"kind": "INSERT", "fields": []any{token*100 + i}})
	}

	resp := map[string]any{
		"resultType":    resultType,
		"isQueryResult": true,
		"results": map[string]any{
			"columns": []map[string]any{{"name": "v"}},
			"data":    rows,
		},
	}
	if spec.jobID != "" {
		resp["jobID"] = spec.jobID
	}
	if !spec.isEnd && resultType != "EOS" {
		resp["nextResultUri"] = fmt.Sprintf("/next/%d", token+1)
	}
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeGW) stopped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stoppedJobs...)
}

func (f *fakeGW) closed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closedOps...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture wires a runner, canceller, and tracker against the fake gateway.
func newFixture(t *testing.T, f *fakeGW) (*Runner, *Canceller, *Tracker) {
	t.Helper()
	logger := testLogger()
	client := gateway.NewClient(f.srv.URL)
	owner := session.NewOwner(client, nil, logger)
	tracker := NewTracker(logger)
	return NewRunner(client, owner, tracker, logger),
		NewCanceller(client, owner, tracker, logger),
		tracker
}

// fakeClock advances a simulated time by step on every sleep.
func fakeClock(start time.Time, step time.Duration) clock.Clock {
	var mu sync.Mutex
	now := start
	return clock.Clock{
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		},
		Sleep: func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(step)
			return nil
		},
	}
}

func requireTracked(t *testing.T, tr *Tracker, jobID string) {
	t.Helper()
	_, err := tr.Lookup(jobID)
	require.NoError(t, err)
}
