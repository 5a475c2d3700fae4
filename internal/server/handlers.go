package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ironsheep/magick-tools-mcp/internal/magick"
	"github.com/ironsheep/magick-tools-mcp/internal/preview"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "magick_info", "magick_resize").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// ToolErrorData is the data member of a failed tool call.
type ToolErrorData struct {
	Kind    magick.Kind `json:"kind"`
	Message string      `json:"message"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Results that carry a preview get a second item of type "image" holding the
// PNG data. Tool execution errors return a JSON-RPC error response with code
// -32000 and a ToolErrorData whose kind tells callers what went wrong.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	start := time.Now()
	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		kind := magick.KindOf(err)
		s.logger.Warn("tool failed", "tool", params.Name, "kind", kind, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", ToolErrorData{
			Kind:    kind,
			Message: err.Error(),
		})
	}
	s.logger.Debug("tool finished", "tool", params.Name, "duration", time.Since(start))

	content := []map[string]interface{}{
		{
			"type": "text",
			"text": mustMarshalJSON(result),
		},
	}
	if p, ok := result.(previewer); ok {
		if img := p.previewImage(); img != nil {
			content = append(content, map[string]interface{}{
				"type":     "image",
				"data":     img.ImageBase64,
				"mimeType": img.MimeType,
			})
		}
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": content,
		},
	}
}

// previewer is implemented by results that may carry a rendered image.
type previewer interface {
	previewImage() *preview.Result
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Calls the magick client or the preview package
//  4. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Inspection
	case "magick_info":
		return s.handleInfo(ctx, args)
	case "magick_preview":
		return s.handlePreview(args)

	// Write operations
	case "magick_convert":
		return s.handleWrite(ctx, magick.OpConvert, args)
	case "magick_rotate":
		return s.handleWrite(ctx, magick.OpRotate, args)
	case "magick_resize":
		return s.handleWrite(ctx, magick.OpResize, args)
	case "magick_crop":
		return s.handleWrite(ctx, magick.OpCrop, args)
	case "magick_rescrop":
		return s.handleWrite(ctx, magick.OpRescrop, args)
	case "magick_thumbnail":
		return s.handleWrite(ctx, magick.OpThumbnail, args)

	// Raw access and health
	case "magick_exec":
		return s.handleExec(ctx, args)
	case "magick_health":
		return s.handleHealth(ctx)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// unmarshalArgs decodes tool arguments; a call without arguments decodes
// into the zero value.
func unmarshalArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// === Inspection Handlers ===

type infoArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleInfo(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a infoArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	return s.client.Info(ctx, a.Path)
}

type previewArgs struct {
	Path    string `json:"path"`
	MaxSide int    `json:"max_side"`
}

// previewResult is a preview.Result that also renders as an image item.
type previewResult struct {
	*preview.Result
}

func (r previewResult) previewImage() *preview.Result {
	return r.Result
}

func (s *Server) handlePreview(args json.RawMessage) (interface{}, error) {
	var a previewArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, magick.ErrMissingPath
	}
	if a.MaxSide <= 0 {
		a.MaxSide = s.previewMaxSide
	}
	result, err := preview.Generate(s.cache, a.Path, a.MaxSide)
	if err != nil {
		return nil, err
	}
	return previewResult{result}, nil
}

// === Write Operation Handlers ===

type writeArgs struct {
	magick.Options
	Preview bool `json:"preview"`
}

type writeResult struct {
	Operation magick.Operation `json:"operation"`
	Dst       string           `json:"dst"`

	// Preview metadata; the image itself is sent as a separate content item.
	Preview      *previewSummary `json:"preview,omitempty"`
	PreviewError string          `json:"preview_error,omitempty"`

	image *preview.Result
}

type previewSummary struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	PreviewWidth  int    `json:"preview_width"`
	PreviewHeight int    `json:"preview_height"`
	AverageColor  string `json:"average_color,omitempty"`
}

func (r *writeResult) previewImage() *preview.Result {
	return r.image
}

func (s *Server) handleWrite(ctx context.Context, op magick.Operation, args json.RawMessage) (interface{}, error) {
	var a writeArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}

	dst, err := s.client.Apply(ctx, op, a.Options)
	if err != nil {
		return nil, err
	}

	result := &writeResult{Operation: op, Dst: dst}
	if a.Preview {
		// The destination may have been overwritten since it was last cached.
		s.cache.Evict(dst)
		img, err := preview.Generate(s.cache, dst, s.previewMaxSide)
		if err != nil {
			result.PreviewError = err.Error()
		} else {
			result.image = img
			result.Preview = &previewSummary{
				Width:         img.Width,
				Height:        img.Height,
				PreviewWidth:  img.PreviewWidth,
				PreviewHeight: img.PreviewHeight,
				AverageColor:  img.AverageColor,
			}
		}
	}
	return result, nil
}

// === Raw Access and Health Handlers ===

type execArgs struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

type execResult struct {
	Stdout string `json:"stdout"`
}

func (s *Server) handleExec(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a execArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	stdout, err := s.client.Exec(ctx, a.Command, time.Duration(a.Timeout)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return &execResult{Stdout: stdout}, nil
}

type healthResult struct {
	*magick.Health
	Error string `json:"error,omitempty"`
}

func (s *Server) handleHealth(ctx context.Context) (interface{}, error) {
	health, err := s.client.CheckInstalled(ctx)
	result := &healthResult{Health: health}
	if err != nil {
		result.Error = err.Error()
	}
	return result, nil
}
