package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ironsheep/magick-tools-mcp/internal/magick"
	"github.com/ironsheep/magick-tools-mcp/internal/preview"
)

func TestNew(t *testing.T) {
	s := New(magick.New(magick.ImageMagick))
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.cache == nil {
		t.Fatal("New() did not initialize cache")
	}
	if s.previewMaxSide != preview.DefaultMaxSide {
		t.Errorf("previewMaxSide: got %d, want %d", s.previewMaxSide, preview.DefaultMaxSide)
	}
	if s.version != "dev" {
		t.Errorf("version: got %s, want dev", s.version)
	}
}

func TestNew_Options(t *testing.T) {
	var out bytes.Buffer
	s := New(magick.New(magick.ImageMagick),
		WithPreviewMaxSide(64),
		WithVersion("1.2.3"),
		WithIO(strings.NewReader(""), &out),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if s.previewMaxSide != 64 {
		t.Errorf("previewMaxSide: got %d, want 64", s.previewMaxSide)
	}
	if s.version != "1.2.3" {
		t.Errorf("version: got %s", s.version)
	}
	if s.out != &out {
		t.Error("WithIO did not replace the output")
	}
}

func TestMCPRequest_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantID     interface{}
		wantMethod string
	}{
		{
			"string id",
			`{"jsonrpc":"2.0","id":"test-1","method":"tools/list"}`,
			"test-1",
			"tools/list",
		},
		{
			"number id",
			`{"jsonrpc":"2.0","id":42,"method":"ping"}`,
			float64(42), // JSON numbers decode as float64
			"ping",
		},
		{
			"null id",
			`{"jsonrpc":"2.0","id":null,"method":"initialize"}`,
			nil,
			"initialize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req MCPRequest
			if err := json.Unmarshal([]byte(tt.json), &req); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}

			if req.ID != tt.wantID {
				t.Errorf("ID: got %v (%T), want %v (%T)", req.ID, req.ID, tt.wantID, tt.wantID)
			}
			if req.Method != tt.wantMethod {
				t.Errorf("Method: got %s, want %s", req.Method, tt.wantMethod)
			}
		})
	}
}

func TestMCPResponse_ErrorData(t *testing.T) {
	resp := MCPResponse{
		JSONRPC: "2.0",
		ID:      1,
		Error: &MCPError{
			Code:    -32000,
			Message: "Tool execution failed",
			Data:    ToolErrorData{Kind: magick.KindMissingPath, Message: "missing path"},
		},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var decoded struct {
		Error struct {
			Code int `json:"code"`
			Data struct {
				Kind string `json:"kind"`
			} `json:"data"`
		} `json:"error"`
		Result interface{} `json:"result"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if decoded.Error.Code != -32000 {
		t.Errorf("Error.Code: got %d", decoded.Error.Code)
	}
	if decoded.Error.Data.Kind != "missing_path" {
		t.Errorf("Error.Data.Kind: got %s", decoded.Error.Data.Kind)
	}
	if decoded.Result != nil {
		t.Error("result should be omitted on error")
	}
}

func TestHandleRequest_Initialize(t *testing.T) {
	s := New(magick.New(magick.ImageMagick), WithVersion("0.3.0"))
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      "init-1",
		Method:  "initialize",
	})

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if resp.ID != "init-1" {
		t.Errorf("ID: got %v, want init-1", resp.ID)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	if result["protocolVersion"] != "2024-11-05" {
		t.Errorf("protocolVersion: got %v", result["protocolVersion"])
	}

	serverInfo, ok := result["serverInfo"].(map[string]interface{})
	if !ok {
		t.Fatal("serverInfo should be a map")
	}
	if serverInfo["name"] != "magick-tools-mcp" {
		t.Errorf("serverInfo.name: got %v", serverInfo["name"])
	}
	if serverInfo["version"] != "0.3.0" {
		t.Errorf("serverInfo.version: got %v", serverInfo["version"])
	}
}

func TestHandleRequest_Ping(t *testing.T) {
	s := New(magick.New(magick.ImageMagick))
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      "ping-1",
		Method:  "ping",
	})

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if resp.ID != "ping-1" {
		t.Errorf("ID: got %v, want ping-1", resp.ID)
	}
}

func TestHandleRequest_NotificationsInitialized(t *testing.T) {
	s := New(magick.New(magick.ImageMagick))
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})

	// Notifications don't get responses
	if resp != nil {
		t.Error("notifications/initialized should return nil response")
	}
}

func TestHandleRequest_MethodNotFound(t *testing.T) {
	s := New(magick.New(magick.ImageMagick))
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "resources/list",
	})

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error == nil {
		t.Fatal("Expected error for unknown method")
	}
	if resp.Error.Code != -32601 {
		t.Errorf("Error code: got %d, want -32601", resp.Error.Code)
	}
}

// runServer feeds input to Run and returns the decoded responses keyed by id.
func runServer(t *testing.T, s *Server, input string) (map[string]map[string]interface{}, []map[string]interface{}) {
	t.Helper()
	var out bytes.Buffer
	s.in = strings.NewReader(input)
	s.out = &out
	s.encoder = json.NewEncoder(&out)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	byID := make(map[string]map[string]interface{})
	var all []map[string]interface{}
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var resp map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("invalid response line %q: %v", scanner.Text(), err)
		}
		all = append(all, resp)
		if id, ok := resp["id"].(string); ok {
			byID[id] = resp
		}
	}
	return byID, all
}

func TestRun_Requests(t *testing.T) {
	s := newTestServer(t, fakeMagick(t))
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":"a","method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":"b","method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":"c","method":"tools/call","params":{"name":"magick_info","arguments":{"path":"/x/a.png"}}}`,
		`{"jsonrpc":"2.0","id":"d","method":"tools/call","params":{"name":"magick_info","arguments":{"path":"/x/b.png"}}}`,
		`{"jsonrpc":"2.0","id":"e","method":"ping"}`,
	}, "\n")

	byID, all := runServer(t, s, input)

	if len(all) != 5 {
		t.Fatalf("responses: got %d, want 5", len(all))
	}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		resp, ok := byID[id]
		if !ok {
			t.Errorf("no response for %s", id)
			continue
		}
		if resp["error"] != nil {
			t.Errorf("%s: unexpected error %v", id, resp["error"])
		}
	}

	result := byID["d"]["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)
	if !strings.Contains(text, `"path": "/x/b.png"`) {
		t.Errorf("d answered with the wrong result: %s", text)
	}
}

func TestRun_ParseError(t *testing.T) {
	s := newTestServer(t, fakeMagick(t))
	_, all := runServer(t, s, "{not json\n"+`{"jsonrpc":"2.0","id":"p","method":"ping"}`+"\n")

	if len(all) != 2 {
		t.Fatalf("responses: got %d, want 2", len(all))
	}
	errObj, ok := all[0]["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("first response should be an error: %v", all[0])
	}
	if errObj["code"] != float64(-32700) {
		t.Errorf("code: got %v, want -32700", errObj["code"])
	}
	if all[0]["id"] != nil {
		t.Errorf("id: got %v, want null", all[0]["id"])
	}
	if all[1]["id"] != "p" {
		t.Errorf("server should keep serving after a parse error: %v", all[1])
	}
}
