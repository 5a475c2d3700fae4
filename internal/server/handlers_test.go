package server

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ironsheep/magick-tools-mcp/internal/magick"
)

// createTestImageFile creates a PNG test image in dir and returns its path
func createTestImageFile(t *testing.T, dir string, width, height int, c color.Color) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	f, err := os.CreateTemp(dir, "handler-test-*.png")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return f.Name()
}

// fakeMagick installs stand-ins for convert and identify. convert copies its
// first argument to its last one, so a PNG source yields a PNG "result".
func fakeMagick(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	dir := t.TempDir()
	scripts := map[string]string{
		"convert": `if [ "$1" = "-version" ]; then echo "Version: ImageMagick 7.1.1-21 Q16"; exit 0; fi
for last; do :; done
if [ -f "$1" ]; then cp "$1" "$last"; else : > "$last"; fi`,
		"identify": `for last; do :; done
case "$last" in
  *.png) echo "PNG 8 40 20 1.5KB 72 72 $(basename "$last")" ;;
  *) echo "identify: no decode delegate for this image format" >&2; exit 1 ;;
esac`,
	}
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func newTestServer(t *testing.T, binDir string) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := magick.New(magick.ImageMagick, magick.WithBinDir(binDir), magick.WithLogger(logger))
	return New(client, WithLogger(logger), WithPreviewMaxSide(16), WithIO(strings.NewReader(""), io.Discard))
}

// callTool runs a tools/call request and returns the response.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()
	params, _ := json.Marshal(map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  params,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// resultText decodes the JSON text content of a successful tool call into v
// and returns the content items.
func resultText(t *testing.T, resp *MCPResponse, v interface{}) []map[string]interface{} {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Result is not a map: %T", resp.Result)
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) == 0 {
		t.Fatalf("content missing: %v", result)
	}
	text, _ := content[0]["text"].(string)
	if err := json.Unmarshal([]byte(text), v); err != nil {
		t.Fatalf("failed to parse result text: %v\n%s", err, text)
	}
	return content
}

func toolErrorKind(t *testing.T, resp *MCPResponse) magick.Kind {
	t.Helper()
	if resp.Error == nil {
		t.Fatal("expected an error response")
	}
	if resp.Error.Code != -32000 {
		t.Errorf("error code: got %d, want -32000", resp.Error.Code)
	}
	data, ok := resp.Error.Data.(ToolErrorData)
	if !ok {
		t.Fatalf("error data: got %T, want ToolErrorData", resp.Error.Data)
	}
	return data.Kind
}

func TestHandleToolsCall_Info(t *testing.T) {
	s := newTestServer(t, fakeMagick(t))

	var info magick.ImageInfo
	resultText(t, callTool(t, s, "magick_info", map[string]interface{}{"path": "/img/logo.png"}), &info)

	if info.Type != "png" || info.Width != 40 || info.Height != 20 {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.Size != 1500 {
		t.Errorf("Size: got %f, want 1500", info.Size)
	}
	if info.Path != "/img/logo.png" {
		t.Errorf("Path: got %s", info.Path)
	}
}

func TestHandleToolsCall_InfoUnsupported(t *testing.T) {
	s := newTestServer(t, fakeMagick(t))
	resp := callTool(t, s, "magick_info", map[string]interface{}{"path": "/img/file.xyz"})
	if kind := toolErrorKind(t, resp); kind != magick.KindUnsupportedFile {
		t.Errorf("kind: got %s, want unsupported_file", kind)
	}
}

func TestHandleToolsCall_WriteOperations(t *testing.T) {
	s := newTestServer(t, fakeMagick(t))
	dir := t.TempDir()
	src := createTestImageFile(t, dir, 40, 20, color.RGBA{0, 0, 255, 255})

	tests := []struct {
		tool string
		args map[string]interface{}
	}{
		{"magick_convert", map[string]interface{}{}},
		{"magick_rotate", map[string]interface{}{"degree": 0}},
		{"magick_resize", map[string]interface{}{"width": 10, "neverEnlarge": true}},
		{"magick_crop", map[string]interface{}{"cropwidth": 5, "gravity": "NorthWest"}},
		{"magick_rescrop", map[string]interface{}{"width": 10, "fill": true}},
		{"magick_thumbnail", map[string]interface{}{"width": 8}},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			dst := filepath.Join(dir, tt.tool, "out.png")
			tt.args["src"] = src
			tt.args["dst"] = dst

			var result struct {
				Operation string `json:"operation"`
				Dst       string `json:"dst"`
			}
			content := resultText(t, callTool(t, s, tt.tool, tt.args), &result)

			if result.Dst != dst {
				t.Errorf("dst: got %s, want %s", result.Dst, dst)
			}
			if result.Operation != strings.TrimPrefix(tt.tool, "magick_") {
				t.Errorf("operation: got %s", result.Operation)
			}
			if len(content) != 1 {
				t.Errorf("no preview was requested, got %d content items", len(content))
			}
			if _, err := os.Stat(dst); err != nil {
				t.Errorf("dst not written: %v", err)
			}
		})
	}
}

func TestHandleToolsCall_WriteWithPreview(t *testing.T) {
	s := newTestServer(t, fakeMagick(t))
	dir := t.TempDir()
	src := createTestImageFile(t, dir, 64, 32, color.RGBA{255, 0, 0, 255})

	var result struct {
		Preview *struct {
			Width         int    `json:"width"`
			PreviewWidth  int    `json:"preview_width"`
			PreviewHeight int    `json:"preview_height"`
			AverageColor  string `json:"average_color"`
		} `json:"preview"`
	}
	content := resultText(t, callTool(t, s, "magick_convert", map[string]interface{}{
		"src":     src,
		"dst":     filepath.Join(dir, "copy.png"),
		"preview": true,
	}), &result)

	if result.Preview == nil {
		t.Fatal("preview summary missing")
	}
	if result.Preview.Width != 64 || result.Preview.PreviewWidth != 16 || result.Preview.PreviewHeight != 8 {
		t.Errorf("unexpected preview summary: %+v", result.Preview)
	}
	if !strings.HasPrefix(result.Preview.AverageColor, "#f") {
		t.Errorf("AverageColor: got %s", result.Preview.AverageColor)
	}
	if len(content) != 2 {
		t.Fatalf("content items: got %d, want 2", len(content))
	}
	if content[1]["type"] != "image" || content[1]["mimeType"] != "image/png" {
		t.Errorf("image item: got %v", content[1])
	}
}

func TestHandleToolsCall_PreviewOfUndecodableOutput(t *testing.T) {
	s := newTestServer(t, fakeMagick(t))
	dir := t.TempDir()

	// The source does not exist, so the fake convert writes an empty file.
	var result struct {
		PreviewError string `json:"preview_error"`
	}
	content := resultText(t, callTool(t, s, "magick_convert", map[string]interface{}{
		"src":     filepath.Join(dir, "missing.psd"),
		"dst":     filepath.Join(dir, "out.psd"),
		"preview": true,
	}), &result)

	if result.PreviewError == "" {
		t.Error("expected preview_error for an undecodable output")
	}
	if len(content) != 1 {
		t.Errorf("content items: got %d, want 1", len(content))
	}
}

func TestHandleToolsCall_ValidationErrors(t *testing.T) {
	s := newTestServer(t, fakeMagick(t))

	tests := []struct {
		tool string
		args map[string]interface{}
		want magick.Kind
	}{
		{"magick_resize", map[string]interface{}{"src": "a.png"}, magick.KindMissingPath},
		{"magick_resize", map[string]interface{}{"src": "a.png", "dst": "b.png"}, magick.KindMissingDimension},
		{"magick_rotate", map[string]interface{}{"src": "a.png", "dst": "b.png"}, magick.KindMissingDimension},
		{"magick_info", map[string]interface{}{}, magick.KindMissingPath},
		{"magick_preview", map[string]interface{}{}, magick.KindMissingPath},
		{"magick_exec", map[string]interface{}{"command": "rm -rf /"}, magick.KindRestricted},
	}
	for _, tt := range tests {
		resp := callTool(t, s, tt.tool, tt.args)
		if kind := toolErrorKind(t, resp); kind != tt.want {
			t.Errorf("%s %v: kind %s, want %s", tt.tool, tt.args, kind, tt.want)
		}
	}
}

func TestHandleToolsCall_DirectoryFailure(t *testing.T) {
	s := newTestServer(t, fakeMagick(t))
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	resp := callTool(t, s, "magick_convert", map[string]interface{}{
		"src": "a.png",
		"dst": filepath.Join(blocker, "out.png"),
	})
	if kind := toolErrorKind(t, resp); kind != magick.KindDirectoryCreation {
		t.Errorf("kind: got %s", kind)
	}
}

func TestHandleToolsCall_Preview(t *testing.T) {
	s := newTestServer(t, fakeMagick(t))
	path := createTestImageFile(t, t.TempDir(), 100, 50, color.White)

	var result struct {
		Width        int    `json:"width"`
		PreviewWidth int    `json:"preview_width"`
		ImageBase64  string `json:"image_base64"`
	}
	content := resultText(t, callTool(t, s, "magick_preview", map[string]interface{}{
		"path":     path,
		"max_side": 50,
	}), &result)

	if result.Width != 100 || result.PreviewWidth != 50 {
		t.Errorf("unexpected preview: width %d, preview width %d", result.Width, result.PreviewWidth)
	}
	if len(content) != 2 || content[1]["data"] != result.ImageBase64 {
		t.Error("preview should be attached as an image item")
	}
}

func TestHandleToolsCall_Exec(t *testing.T) {
	s := newTestServer(t, fakeMagick(t))

	var result struct {
		Stdout string `json:"stdout"`
	}
	resultText(t, callTool(t, s, "magick_exec", map[string]interface{}{
		"command": "identify -format '%w' /tmp/pic.png",
	}), &result)

	if !strings.HasPrefix(result.Stdout, "PNG 8 40 20") {
		t.Errorf("stdout: got %q", result.Stdout)
	}
}

func TestHandleToolsCall_Health(t *testing.T) {
	s := newTestServer(t, fakeMagick(t))

	var result struct {
		Backend   string `json:"backend"`
		Installed bool   `json:"installed"`
		Version   string `json:"version"`
		Error     string `json:"error"`
	}
	resultText(t, callTool(t, s, "magick_health", nil), &result)
	if !result.Installed || result.Backend != "imagemagick" || result.Version != "ImageMagick 7.1.1-21 Q16" {
		t.Errorf("unexpected health: %+v", result)
	}

	missing := newTestServer(t, t.TempDir())
	resultText(t, callTool(t, missing, "magick_health", nil), &result)
	if result.Installed || result.Error == "" {
		t.Errorf("missing tools should be reported: %+v", result)
	}
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t, fakeMagick(t))
	resp := callTool(t, s, "image_ocr_full", map[string]interface{}{})
	if kind := toolErrorKind(t, resp); kind != magick.KindUnknown {
		t.Errorf("kind: got %s", kind)
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t, fakeMagick(t))
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("expected -32602, got %+v", resp.Error)
	}

	bad := callToolRaw(s, `{"name":"magick_resize","arguments":{"width":"wide"}}`)
	if kind := toolErrorKind(t, bad); kind != magick.KindUnknown {
		t.Errorf("kind: got %s", kind)
	}
}

func callToolRaw(s *Server, params string) *MCPResponse {
	return s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  json.RawMessage(params),
	})
}
