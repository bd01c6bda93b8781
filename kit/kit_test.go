package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}
	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"), mw("c"))(base)(context.Background(), nil)
	if err != nil || resp != "ok" {
		t.Fatalf("resp = %v, err = %v", resp, err)
	}
	want := []string{"a_before", "b_before", "c_before", "endpoint", "c_after", "b_after", "a_after"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestLoggingPropagatesError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	errFail := errors.New("render failed")
	base := func(_ context.Context, _ any) (any, error) { return nil, errFail }

	ctx := WithTraceID(WithTransport(context.Background(), "mcp"), "trc_1")
	_, err := Logging(logger, "diagram_render")(base)(ctx, nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("err = %v", err)
	}
	for _, want := range []string{"endpoint=diagram_render", "transport=mcp", "trace_id=trc_1", "render failed"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log missing %q:\n%s", want, buf.String())
		}
	}
}

func TestContextDefaults(t *testing.T) {
	ctx := context.Background()
	if v := GetTransport(ctx); v != "http" {
		t.Fatalf("default transport = %q", v)
	}
	if v := GetTraceID(ctx); v != "" {
		t.Fatalf("default trace id = %q", v)
	}
}
