package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"dbgateway/internal/gateway"
)

// Server speaks MCP on a reader/writer pair, dispatching tool calls to
// the gateway. It is single-threaded by design: the host sends one
// request at a time and concurrency lives below, in the registry.
type Server struct {
	gw  *gateway.Gateway
	in  io.Reader
	out io.Writer
	log *slog.Logger
}

func NewServer(gw *gateway.Gateway, in io.Reader, out io.Writer, log *slog.Logger) *Server {
	return &Server{gw: gw, in: in, out: out, log: log}
}

// Run reads newline-delimited requests until EOF or ctx cancellation.
func (s *Server) Run(ctx context.Context) error {
	reader := bufio.NewReader(s.in)
	encoder := json.NewEncoder(s.out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading request: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		resp := s.handleMessage(ctx, []byte(line))
		if resp == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			s.log.Error("writing response", "error", err)
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return &Response{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: ParseError, Message: "parse error", Data: err.Error()},
		}
	}

	if req.JSONRPC != "2.0" {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: InvalidRequest, Message: "invalid JSON-RPC version"},
		}
	}

	return s.handleRequest(ctx, &req)
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	var result any
	var rpcErr *RPCError

	switch req.Method {
	case "initialize":
		result = InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
			ServerInfo:      ServerInfo{Name: ServerName, Version: gateway.Version},
		}
	case "initialized", "notifications/initialized":
		// Notifications get no response.
		return nil
	case "tools/list":
		result = ListToolsResult{Tools: toolDefinitions()}
	case "tools/call":
		result, rpcErr = s.handleCallTool(ctx, req.Params)
	case "ping":
		result = map[string]any{}
	default:
		rpcErr = &RPCError{Code: MethodNotFound, Message: "method not found: " + req.Method}
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   rpcErr,
	}
}

func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var call CallToolParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "invalid tool call parameters", Data: err.Error()}
	}

	s.log.Debug("tool call", "tool", call.Name)

	env, err := s.dispatch(ctx, call.Name, call.Arguments)
	if err != nil {
		return nil, err
	}

	text, merr := json.Marshal(env)
	if merr != nil {
		return nil, &RPCError{Code: InternalError, Message: "encoding tool result", Data: merr.Error()}
	}

	return CallToolResult{
		Content: []Content{{Type: "text", Text: string(text)}},
		IsError: !env.Success,
	}, nil
}
