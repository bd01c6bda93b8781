package mcpquic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/diagrammer/kit"
)

func TestMagicBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := SendMagicBytes(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != MagicBytesMCP {
		t.Fatalf("magic = %q", buf.String())
	}
	if err := ValidateMagicBytes(&buf); err != nil {
		t.Fatal(err)
	}

	if err := ValidateMagicBytes(strings.NewReader("HTTP")); !errors.Is(err, ErrInvalidMagicBytes) {
		t.Fatalf("HTTP preamble: %v", err)
	}
	if err := ValidateMagicBytes(strings.NewReader("MC")); err == nil {
		t.Fatal("short preamble accepted")
	}
}

func TestTLSConfigs(t *testing.T) {
	srv, err := SelfSignedTLSConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(srv.Certificates) != 1 || srv.NextProtos[0] != ALPNProtocolMCP {
		t.Fatalf("server tls = %+v", srv)
	}

	h3 := H3TLSConfig(srv)
	if h3.NextProtos[0] != "h3" || srv.NextProtos[0] != ALPNProtocolMCP {
		t.Fatal("H3TLSConfig must not alias the base config")
	}

	if !ClientTLSConfig(true).InsecureSkipVerify || ClientTLSConfig(false).InsecureSkipVerify {
		t.Fatal("insecure flag not honoured")
	}
	if c := NewClient("localhost:1", nil); c.tlsCfg.InsecureSkipVerify {
		t.Fatal("default client must verify certificates")
	}
	if cfg := ProductionQUICConfig(); cfg.Allow0RTT || cfg.MaxIdleTimeout != DefaultIdleTimeout {
		t.Fatalf("quic config = %+v", cfg)
	}
}

func TestConnectionError(t *testing.T) {
	err := &ConnectionError{RemoteAddr: "10.0.0.1:4433", Code: ConnErrorProtocolViolation, Err: ErrInvalidMagicBytes}
	if !errors.Is(err, ErrInvalidMagicBytes) {
		t.Fatal("Unwrap lost the cause")
	}
	if !strings.Contains(err.Error(), "10.0.0.1:4433") || !strings.Contains(err.Error(), "0x03") {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestClientNotConnected(t *testing.T) {
	c := NewClient("localhost:1", nil)
	ctx := context.Background()
	if _, err := c.ListTools(ctx); err == nil {
		t.Fatal("ListTools before Connect")
	}
	if _, err := c.CallTool(ctx, "x", nil); err == nil {
		t.Fatal("CallTool before Connect")
	}
	if err := c.Ping(ctx); err == nil {
		t.Fatal("Ping before Connect")
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

type echoReq struct {
	Source string `json:"source"`
}

func TestRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := mcp.NewServer(&mcp.Implementation{Name: "diagrammer", Version: "test"}, nil)
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name: "echo_source",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"source": map[string]any{"type": "string"}},
		},
	}, func(ctx context.Context, req any) (any, error) {
		return map[string]string{"source": req.(*echoReq).Source}, nil
	}, kit.DecodeArgs[echoReq]())

	tlsCfg, err := SelfSignedTLSConfig()
	if err != nil {
		t.Fatal(err)
	}
	ln, err := NewListener("127.0.0.1:0", tlsCfg, srv, nil)
	if err != nil {
		t.Skipf("udp listen unavailable: %v", err)
	}
	defer ln.Close()
	go ln.Serve(ctx)

	c := NewClient(ln.Addr(), ClientTLSConfig(true))
	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	tools, err := c.ListTools(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tools.Tools) != 1 || tools.Tools[0].Name != "echo_source" {
		t.Fatalf("tools = %+v", tools.Tools)
	}
	res, err := c.CallTool(ctx, "echo_source", map[string]any{"source": "graph TD\nA-->B"})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError || len(res.Content) != 1 {
		t.Fatalf("result = %+v", res)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(res.Content[0].(*mcp.TextContent).Text), &got); err != nil {
		t.Fatal(err)
	}
	if got["source"] != "graph TD\nA-->B" {
		t.Fatalf("source = %q", got["source"])
	}
}
