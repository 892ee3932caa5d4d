package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/recalldev/recall/internal/ports"
)

const protocolVersion = "2024-11-05"

// Server implements the MCP protocol over a stdio-style stream pair.
type Server struct {
	service ports.MemoryService
	version string
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer
}

func NewServer(service ports.MemoryService, version string, logger *slog.Logger, in io.Reader, out io.Writer) *Server {
	return &Server{
		service: service,
		version: version,
		logger:  logger,
		in:      in,
		out:     out,
	}
}

// Run reads requests until EOF or context cancellation. Logging goes
// to stderr; stdout carries only protocol frames.
func (s *Server) Run(ctx context.Context) error {
	decoder := json.NewDecoder(s.in)
	encoder := json.NewEncoder(s.out)

	// Announce readiness before touching the input stream so clients
	// waiting on the handshake see the server is alive.
	if err := encoder.Encode(NewNotification("notifications/initialized")); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var request Request
		if err := decoder.Decode(&request); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// The stream is unrecoverable after a framing error.
			s.logger.Error("failed to decode request", "error", err)
			if encErr := encoder.Encode(NewErrorResponse(nil, ErrCodeParseError, "parse error")); encErr != nil {
				return encErr
			}
			return nil
		}

		response := s.handleRequest(ctx, &request)
		if response != nil {
			if err := encoder.Encode(response); err != nil {
				s.logger.Error("failed to encode response", "error", err)
			}
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	s.logger.Info("handling request", "method", req.Method, "id", string(req.ID))

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized", "initialized":
		return nil // Notification, no response
	case "ping":
		return NewResponse(req.ID, map[string]any{})
	case "tools/list":
		return NewResponse(req.ID, ToolsListResult{Tools: s.tools()})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return NewResponse(req.ID, InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{ListChanged: false},
		},
		ServerInfo: ServerInfo{
			Name:    "recall",
			Version: s.version,
		},
	})
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	params, err := DecodeParams(req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, fmt.Sprintf("invalid params: %v", err))
	}

	result, ok := s.callTool(ctx, params.Name, params.Arguments)
	if !ok {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, fmt.Sprintf("unknown tool: %s", params.Name))
	}
	return NewResponse(req.ID, result)
}
