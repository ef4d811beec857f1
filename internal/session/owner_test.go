// ABOUTME: Tests for the session owner: lazy open, caching, reopen-on-invalid.
// ABOUTME: Uses a scripted httptest gateway and a fake clock for polling bounds.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalane/flink-sql-mcp/internal/clock"
	"github.com/datalane/flink-sql-mcp/internal/gateway"
)

// fakeGateway is a minimal scriptable SQL gateway.
type fakeGateway struct {
	mu         sync.Mutex
	openCount  int
	sessions   map[string]bool
	statuses   []string // successive status poll responses
	statusIdx  int
	execErrors bool // statements reach ERROR status
	srv        *httptest.Server
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	f := &fakeGateway{sessions: map[string]bool{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/v3/sessions":
		f.openCount++
		handle := fmt.Sprintf("session-%d", f.openCount)
		f.sessions[handle] = true
		json.NewEncoder(w).Encode(map[string]string{"sessionHandle": handle})

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/v3/sessions/") && strings.Count(path, "/") == 3:
		handle := strings.TrimPrefix(path, "/v3/sessions/")
		if !f.sessions[handle] {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"errors": []string{fmt.Sprintf("Session '%s' does not exist", handle)}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"properties": map[string]string{"execution.runtime-mode": "streaming"}})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/statements"):
		json.NewEncoder(w).Encode(map[string]string{"operationHandle": "op-1"})

	case strings.HasSuffix(path, "/status"):
		status := "FINISHED"
		if f.execErrors {
			status = "ERROR"
		} else if f.statusIdx < len(f.statuses) {
			status = f.statuses[f.statusIdx]
			f.statusIdx++
		}
		json.NewEncoder(w).Encode(map[string]string{"status": status})

	case strings.Contains(path, "/result/"):
		if f.execErrors {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{"errors": []string{"SQL validation failed: object not found"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"resultType": "EOS"})

	case r.Method == http.MethodDelete:
		json.NewEncoder(w).Encode(map[string]string{"status": "CLOSED"})

	default:
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"errors": []string{"not found"}})
	}
}

func (f *fakeGateway) expireAllSessions() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h := range f.sessions {
		f.sessions[h] = false
	}
}

func (f *fakeGateway) opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openCount
}

func newTestOwner(t *testing.T, f *fakeGateway) *Owner {
	t.Helper()
	return NewOwner(gateway.NewClient(f.srv.URL), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEnsure_OpensOnceAndCaches(t *testing.T) {
	f := newFakeGateway(t)
	o := newTestOwner(t, f)

	h1, err := o.Ensure(context.Background())
	require.NoError(t, err)
	h2, err := o.Ensure(context.Background())
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, f.opens())
}

func TestEnsure_Concurrent_SingleOpen(t *testing.T) {
	f := newFakeGateway(t)
	o := newTestOwner(t, f)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.Ensure(context.Background()); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, f.opens())
}

func TestDo_ReopensOnInvalidSession(t *testing.T) {
	f := newFakeGateway(t)
	o := newTestOwner(t, f)

	_, err := o.Config(context.Background())
	require.NoError(t, err)

	// Gateway expires the session behind our back; next call must reopen
	// transparently and succeed.
	f.expireAllSessions()

	cfg, err := o.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "streaming", cfg["execution.runtime-mode"])
	assert.Equal(t, 2, f.opens())
}

func TestDo_SecondInvalidSurfacesUnreachable(t *testing.T) {
	f := newFakeGateway(t)
	o := newTestOwner(t, f)

	_, err := o.Ensure(context.Background())
	require.NoError(t, err)

	calls := 0
	err = o.Do(context.Background(), func(handle string) error {
		calls++
		return &gateway.Error{StatusCode: 404, Message: "session not found"}
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrUnreachable))
	assert.Equal(t, 2, calls, "exactly one retry after reopen")
}

func TestDo_NonSessionErrorsPropagateWithoutReopen(t *testing.T) {
	f := newFakeGateway(t)
	o := newTestOwner(t, f)

	wantErr := &gateway.Error{StatusCode: 400, Message: "parse error"}
	err := o.Do(context.Background(), func(handle string) error {
		return wantErr
	})
	require.Error(t, err)
	assert.Equal(t, 1, f.opens())

	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, 400, gwErr.StatusCode)
}

func TestApplyConfiguration_Success(t *testing.T) {
	f := newFakeGateway(t)
	o := newTestOwner(t, f)

	err := o.ApplyConfiguration(context.Background(), "SET 'execution.runtime-mode'='streaming'")
	require.NoError(t, err)
}

func TestApplyConfiguration_SurfacesGatewayError(t *testing.T) {
	f := newFakeGateway(t)
	f.execErrors = true
	o := newTestOwner(t, f)

	err := o.ApplyConfiguration(context.Background(), "USE missing_catalog")
	require.Error(t, err)

	var stmtErr *gateway.StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Contains(t, stmtErr.Message, "object not found")
}

func TestApplyConfiguration_TimeoutReturnsLastStatus(t *testing.T) {
	f := newFakeGateway(t)
	f.statuses = []string{"RUNNING", "RUNNING", "RUNNING", "RUNNING"}
	o := newTestOwner(t, f)

	// Fake clock: every sleep advances well past the config timeout, so the
	// loop gives up after the second status poll without real waiting.
	now := time.Now()
	o.clock = clock.Clock{
		Now: func() time.Time { return now },
		Sleep: func(ctx context.Context, d time.Duration) error {
			now = now.Add(configStatementTimeout)
			return nil
		},
	}

	err := o.ApplyConfiguration(context.Background(), "SET 'a'='b'")
	require.Error(t, err)

	var stmtErr *gateway.StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Contains(t, stmtErr.Message, "RUNNING")
}

func TestClose_ReleasesSession(t *testing.T) {
	f := newFakeGateway(t)
	o := newTestOwner(t, f)

	_, err := o.Ensure(context.Background())
	require.NoError(t, err)

	o.Close(context.Background())

	// A later call opens a fresh session.
	_, err = o.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.opens())
}
