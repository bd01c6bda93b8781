package editor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "diagrammer-test", Version: "0.1.0"}

func mcpSession(t *testing.T) (*mcp.ClientSession, *fixture) {
	t.Helper()
	f := newFixture(t, nil)
	if err := f.ws.Open(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	srv := mcp.NewServer(testMCPImpl, nil)
	RegisterMCP(srv, f.ws, nil)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session, f
}

func mcpCall(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	text, isErr := mcpCall(t, session, name, args)
	if isErr {
		t.Fatalf("CallTool(%s) tool error: %s", name, text)
	}
	return text
}

func TestMCP_ListTools(t *testing.T) {
	session, _ := mcpSession(t)
	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"diagram_render": true, "diagram_export": true, "diagram_share_link": true,
		"diagram_decode_share": true, "diagram_samples": true,
	}
	for _, tool := range res.Tools {
		delete(want, tool.Name)
	}
	if len(want) != 0 {
		t.Fatalf("missing tools: %v", want)
	}
}

func TestMCP_Render(t *testing.T) {
	session, f := mcpSession(t)

	text := mcpCallTool(t, session, "diagram_render", map[string]any{"source": "graph TD\nA-->B"})
	var resp renderResp
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Engine != "mermaid" || !strings.HasPrefix(resp.SVG, "<svg") || resp.Error != "" {
		t.Fatalf("resp = %+v", resp)
	}
	if f.ws.Source() != "graph TD\nA-->B" {
		t.Fatalf("source = %q", f.ws.Source())
	}

	text = mcpCallTool(t, session, "diagram_render", map[string]any{"source": "graph TD\nbad"})
	resp = renderResp{}
	_ = json.Unmarshal([]byte(text), &resp)
	if resp.Error != "Parse error on line 1" || resp.SVG != "" {
		t.Fatalf("syntax error resp = %+v", resp)
	}
}

func TestMCP_Export(t *testing.T) {
	session, f := mcpSession(t)

	text := mcpCallTool(t, session, "diagram_export", map[string]any{"format": "png"})
	var resp exportResp
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp.DataURI, "data:image/png;base64,") || resp.Width != 240 || resp.Height != 140 {
		t.Fatalf("resp = %.60s %dx%d", resp.DataURI, resp.Width, resp.Height)
	}

	text = mcpCallTool(t, session, "diagram_export", map[string]any{"format": "pdf", "path": "out.pdf"})
	resp = exportResp{}
	_ = json.Unmarshal([]byte(text), &resp)
	if resp.Path != filepath.Join(f.dir, "out.pdf") || resp.DataURI != "" {
		t.Fatalf("resp = %+v", resp)
	}
	data, err := os.ReadFile(resp.Path)
	if err != nil || !strings.HasPrefix(string(data), "%PDF") {
		t.Fatalf("pdf = %.8q %v", data, err)
	}

	if _, isErr := mcpCall(t, session, "diagram_export", map[string]any{"format": "png", "path": "../out.png"}); !isErr {
		t.Fatal("path outside the workspace accepted")
	}
	text, isErr := mcpCall(t, session, "diagram_export", map[string]any{"format": "gif"})
	if !isErr || !strings.Contains(text, "Unsupported export format.") {
		t.Fatalf("gif = %v %s", isErr, text)
	}
}

func TestMCP_ShareRoundTrip(t *testing.T) {
	session, _ := mcpSession(t)

	text := mcpCallTool(t, session, "diagram_share_link", map[string]any{"source": "graph LR\nA & B"})
	var link struct {
		URL  string `json:"url"`
		Code string `json:"code"`
	}
	_ = json.Unmarshal([]byte(text), &link)
	if !strings.HasPrefix(link.URL, "http://localhost:8086/?code=") {
		t.Fatalf("url = %q", link.URL)
	}

	for _, args := range []map[string]any{{"url": link.URL}, {"code": link.Code}} {
		text := mcpCallTool(t, session, "diagram_decode_share", args)
		var dec struct {
			Source string `json:"source"`
		}
		_ = json.Unmarshal([]byte(text), &dec)
		if dec.Source != "graph LR\nA & B" {
			t.Fatalf("%v: decoded %q", args, dec.Source)
		}
	}

	text, isErr := mcpCall(t, session, "diagram_decode_share", map[string]any{"code": "***"})
	if !isErr || !strings.Contains(text, "Failed to load code from URL.") {
		t.Fatalf("bad code = %v %s", isErr, text)
	}
}

func TestMCP_Samples(t *testing.T) {
	session, f := mcpSession(t)

	text := mcpCallTool(t, session, "diagram_samples", map[string]any{})
	var list struct {
		Samples []Sample `json:"samples"`
	}
	_ = json.Unmarshal([]byte(text), &list)
	if len(list.Samples) != len(Samples()) {
		t.Fatalf("samples = %d", len(list.Samples))
	}

	mcpCallTool(t, session, "diagram_samples", map[string]any{"load": "gantt"})
	if !strings.HasPrefix(f.ws.Source(), "gantt") {
		t.Fatalf("source = %q", f.ws.Source())
	}
	if _, isErr := mcpCall(t, session, "diagram_samples", map[string]any{"load": "nope"}); !isErr {
		t.Fatal("unknown sample accepted")
	}
}
