package editor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/diagrammer/export"
	"github.com/hazyhaar/diagrammer/horosafe"
	"github.com/hazyhaar/diagrammer/kit"
	"github.com/hazyhaar/diagrammer/render"
	"github.com/hazyhaar/diagrammer/share"
)

// RegisterMCP registers the diagram tools on srv. Every tool works on the
// workspace document.
func RegisterMCP(srv *mcp.Server, ws *Workspace, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &mcpTools{ws: ws, logger: logger}
	t.registerRender(srv)
	t.registerExport(srv)
	t.registerShareLink(srv)
	t.registerDecodeShare(srv)
	t.registerSamples(srv)
}

type mcpTools struct {
	ws     *Workspace
	logger *slog.Logger
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (t *mcpTools) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Logging(t.logger, tool.Name)(endpoint), decode)
}

// setAndRender replaces the source when one is given and renders it.
func (t *mcpTools) setAndRender(ctx context.Context, src *string) error {
	if src == nil {
		return nil
	}
	if err := t.ws.SetSource(ctx, *src); err != nil {
		return err
	}
	return t.ws.RenderNow(ctx)
}

// --- diagram_render ---

type renderReq struct {
	Source *string `json:"source"`
}

type renderResp struct {
	Engine     string `json:"engine"`
	SVG        string `json:"svg,omitempty"`
	Error      string `json:"error,omitempty"`
	Generation uint64 `json:"generation"`
}

func (t *mcpTools) registerRender(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "diagram_render",
		Description: "Render diagram source (Mermaid or D2) to SVG. Omit source to re-render the current document. Syntax errors are returned in the error field.",
		InputSchema: inputSchema(map[string]any{
			"source": map[string]any{"type": "string", "description": "Diagram source; replaces the current document"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*renderReq)
		var err error
		if r.Source != nil {
			err = t.setAndRender(ctx, r.Source)
		} else {
			err = t.ws.RenderNow(ctx)
		}
		if err != nil && !render.IsSyntaxError(err) {
			return nil, errors.New(NoticeFor(err).Message)
		}
		s := t.ws.Snapshot()
		resp := renderResp{Engine: s.Engine, SVG: s.SVG, Generation: s.Generation}
		var se *render.SyntaxError
		if errors.As(err, &se) {
			resp.Error = se.Message
		}
		return resp, nil
	}
	t.register(srv, tool, endpoint, kit.DecodeArgs[renderReq]())
}

// --- diagram_export ---

type exportReq struct {
	Format string  `json:"format"`
	Source *string `json:"source"`
	Path   string  `json:"path"`
}

type exportResp struct {
	ID       string `json:"id"`
	Format   string `json:"format"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Path     string `json:"path,omitempty"`
	DataURI  string `json:"data_uri,omitempty"`
}

func (t *mcpTools) registerExport(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "diagram_export",
		Description: "Export the diagram as png, jpg or pdf with a 20px white margin. With path, the file is written inside the workspace directory; otherwise the data URI is returned.",
		InputSchema: inputSchema(map[string]any{
			"format": map[string]any{"type": "string", "enum": []string{"png", "jpg", "jpeg", "pdf"}},
			"source": map[string]any{"type": "string", "description": "Diagram source; replaces the current document"},
			"path":   map[string]any{"type": "string", "description": "File name inside the workspace directory"},
		}, []string{"format"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*exportReq)
		format, err := export.ParseFormat(r.Format)
		if err != nil {
			return nil, errors.New(NoticeFor(err).Message)
		}
		if err := t.setAndRender(ctx, r.Source); err != nil {
			return nil, errors.New(NoticeFor(err).Message)
		}
		art, err := t.ws.Export(ctx, format)
		if err != nil {
			return nil, errors.New(NoticeFor(err).Message)
		}
		resp := exportResp{
			ID: art.ID, Format: string(art.Format), MIMEType: art.MIMEType,
			Width: art.Width, Height: art.Height,
		}
		if r.Path == "" {
			resp.DataURI = art.DataURI
			return resp, nil
		}
		if err := horosafe.ValidateFileName(filepath.Base(r.Path)); err != nil {
			return nil, err
		}
		dest, err := horosafe.SafePath(t.ws.FilesDir(), r.Path)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, err
		}
		if resp.Path, err = export.WriteFile(dest, art); err != nil {
			return nil, err
		}
		return resp, nil
	}
	t.register(srv, tool, endpoint, kit.DecodeArgs[exportReq]())
}

// --- diagram_share_link ---

type shareLinkReq struct {
	Base   string  `json:"base"`
	Source *string `json:"source"`
}

func (t *mcpTools) registerShareLink(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "diagram_share_link",
		Description: "Build a share link that reopens the diagram in the editor. Defaults to the current document and http://localhost:8086/.",
		InputSchema: inputSchema(map[string]any{
			"base":   map[string]any{"type": "string", "description": "Editor URL"},
			"source": map[string]any{"type": "string", "description": "Diagram source to share instead of the current document"},
		}, nil),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*shareLinkReq)
		base := r.Base
		if base == "" {
			base = "http://localhost:8086/"
		}
		src := t.ws.Source()
		if r.Source != nil {
			src = *r.Source
		}
		url, err := share.URL(base, src)
		if err != nil {
			return nil, err
		}
		return map[string]string{"url": url, "code": share.Encode(src)}, nil
	}
	t.register(srv, tool, endpoint, kit.DecodeArgs[shareLinkReq]())
}

// --- diagram_decode_share ---

type decodeShareReq struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}

func (t *mcpTools) registerDecodeShare(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "diagram_decode_share",
		Description: "Decode a share link (url) or its code parameter (code) back to diagram source.",
		InputSchema: inputSchema(map[string]any{
			"code": map[string]any{"type": "string"},
			"url":  map[string]any{"type": "string"},
		}, nil),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*decodeShareReq)
		var (
			src string
			err error
		)
		if r.URL != "" {
			var ok bool
			src, ok, err = share.FromURL(r.URL)
			if err == nil && !ok {
				err = share.ErrURLDecodeFailed
			}
		} else {
			src, err = share.Decode(r.Code)
		}
		if err != nil {
			return nil, errors.New(share.MsgURLDecodeFailed)
		}
		return map[string]string{"source": src}, nil
	}
	t.register(srv, tool, endpoint, kit.DecodeArgs[decodeShareReq]())
}

// --- diagram_samples ---

type samplesReq struct {
	Load string `json:"load"`
}

func (t *mcpTools) registerSamples(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "diagram_samples",
		Description: "List the sample diagrams, or load one into the document with load=<name>.",
		InputSchema: inputSchema(map[string]any{
			"load": map[string]any{"type": "string", "description": "Sample name to load"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*samplesReq)
		if r.Load == "" {
			return map[string]any{"samples": Samples(), "default": DefaultSample}, nil
		}
		if err := t.ws.LoadSample(ctx, r.Load); err != nil {
			return nil, errors.New(NoticeFor(err).Message)
		}
		s := t.ws.Snapshot()
		return map[string]any{"loaded": r.Load, "engine": s.Engine, "error": s.Error}, nil
	}
	t.register(srv, tool, endpoint, kit.DecodeArgs[samplesReq]())
}
