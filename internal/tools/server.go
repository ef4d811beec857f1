// ABOUTME: MCP tool server over the SQL gateway tool pack.
// ABOUTME: Implements the go-mcp ToolServer interface for a stdio transport.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MegaGrindStone/go-mcp"
	"github.com/google/uuid"
)

// Server exposes the tool pack over the MCP tools capability. Tool failures
// that a caller can act on are reported in-band as error results; only
// protocol-level problems (unknown tool) become call errors.
type Server struct {
	tools  []*Tool
	byName map[string]*Tool
	logger *slog.Logger
}

// NewServer builds a tool server from a pack.
func NewServer(pack []*Tool, logger *slog.Logger) *Server {
	byName := make(map[string]*Tool, len(pack))
	for _, tool := range pack {
		byName[tool.Name] = tool
	}
	return &Server{
		tools:  pack,
		byName: byName,
		logger: logger,
	}
}

// ListTools returns every tool in one page; the pack is small and static.
func (s *Server) ListTools(ctx context.Context, params mcp.ListToolsParams, _ mcp.ProgressReporter, _ mcp.RequestClientFunc) (mcp.ListToolsResult, error) {
	tools := make([]mcp.Tool, 0, len(s.tools))
	for _, tool := range s.tools {
		tools = append(tools, mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: json.RawMessage(tool.InputSchema),
		})
	}
	return mcp.ListToolsResult{Tools: tools}, nil
}

// CallTool dispatches a tool invocation to its handler.
func (s *Server) CallTool(ctx context.Context, params mcp.CallToolParams, _ mcp.ProgressReporter, _ mcp.RequestClientFunc) (mcp.CallToolResult, error) {
	tool, ok := s.byName[params.Name]
	if !ok {
		return mcp.CallToolResult{}, fmt.Errorf("unknown tool: %s", params.Name)
	}

	requestID := uuid.NewString()
	logger := s.logger.With("tool", params.Name, "request_id", requestID)
	logger.Info("tool call started")

	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	start := time.Now()
	output, err := tool.Handler(ctx, args)
	elapsed := time.Since(start)

	if err != nil {
		errType := classify(err)
		logger.Warn("tool call failed", "error_type", errType, "error", err, "duration", elapsed)
		return errorResult(errType, err), nil
	}

	logger.Info("tool call finished", "duration", elapsed)
	return mcp.CallToolResult{
		Content: []mcp.Content{{Type: mcp.ContentTypeText, Text: string(output)}},
	}, nil
}

// errorResult renders a domain failure as an in-band error payload.
func errorResult(errType string, err error) mcp.CallToolResult {
	payload, merr := json.Marshal(map[string]string{
		"error_type": errType,
		"message":    err.Error(),
	})
	if merr != nil {
		payload = []byte(`{"error_type":"internal_error","message":"failed to encode error"}`)
	}
	return mcp.CallToolResult{
		Content: []mcp.Content{{Type: mcp.ContentTypeText, Text: string(payload)}},
		IsError: true,
	}
}
