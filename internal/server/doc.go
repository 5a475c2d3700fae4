// Package server implements the MCP (Model Context Protocol) server for the
// ImageMagick and GraphicsMagick tools.
//
// This package provides a JSON-RPC 2.0 server that exposes the operations of
// the magick package through the MCP protocol, so that MCP clients can
// inspect and transform image files on the host.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// Tool calls run concurrently, each spawning its own process, so a slow
// conversion does not hold up other requests. Responses may therefore arrive
// out of request order; clients match them by id.
//
// # Available Tools
//
// Inspection:
//   - magick_info: identify type, depth, dimensions, size and density
//   - magick_preview: small PNG rendering of a file
//
// Write operations (src and dst required, optional preview of dst):
//   - magick_convert: change format
//   - magick_rotate: rotate by degree
//   - magick_resize: fit into width x height
//   - magick_crop: cut a region
//   - magick_rescrop: resize then crop
//   - magick_thumbnail: orientation-aware cover and crop
//
// Raw access and health:
//   - magick_exec: run an image tool command line without a shell
//   - magick_health: report the configured backend and its version
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: ToolErrorData with the error kind (missing_path,
//     missing_dimension, unsupported_file, restricted, process_failure,
//     directory_creation_failure, unknown) and the Go error string
//
// # Usage
//
//	client := magick.New(magick.ImageMagick)
//	srv := server.New(client)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
