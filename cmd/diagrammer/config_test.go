package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diagrammer.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigFile("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":8086" || cfg.DB != "diagrammer.db" || cfg.FilesDir != "diagrams" {
		t.Fatalf("cfg = %+v", cfg)
	}
	want := ExportConfig{
		Padding:      20,
		MaxDimension: 16384,
		LoadTimeout:  10 * time.Second,
		JPEGQuality:  92,
		Decoder:      DecoderAuto,
	}
	if diff := cmp.Diff(want, cfg.Export); diff != "" {
		t.Fatalf("export (-want +got):\n%s", diff)
	}
	if cfg.Render.FallbackEngine != "d2" {
		t.Fatalf("fallback = %q", cfg.Render.FallbackEngine)
	}
	if cfg.Editor.AutosaveTTL != time.Hour || cfg.Editor.Debounce != 300*time.Millisecond ||
		cfg.Editor.ResizeDebounce != 300*time.Millisecond || cfg.Editor.Toast != 3*time.Second {
		t.Fatalf("editor = %+v", cfg.Editor)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
addr: ":9000"
render:
  fallback_engine: Mermaid
export:
  padding: 8
  decoder: native
editor:
  debounce: 150ms
browser:
  remote: ws://from-file
`)
	t.Setenv("CHROME_REMOTE", "ws://from-env")
	t.Setenv("DIAGRAMMER_DB", "/tmp/x.db")

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9000" || cfg.DB != "/tmp/x.db" || cfg.Browser.Remote != "ws://from-env" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Render.FallbackEngine != "mermaid" || cfg.Export.Padding != 8 || cfg.Export.Decoder != DecoderNative {
		t.Fatalf("render/export = %+v %+v", cfg.Render, cfg.Export)
	}
	if cfg.Editor.Debounce != 150*time.Millisecond || cfg.Editor.ResizeDebounce != 300*time.Millisecond {
		t.Fatalf("editor = %+v", cfg.Editor)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	for _, body := range []string{
		"render:\n  fallback_engine: plantuml\n",
		"export:\n  decoder: gpu\n",
		"export:\n  decoder: browser\nbrowser:\n  disabled: true\n",
		"addr: [1, 2\n",
		"mcp_quic:\n  addr: :8087\n  cert_file: cert.pem\n",
	} {
		if _, err := LoadConfigFile(writeConfig(t, body)); err == nil {
			t.Errorf("accepted %q", body)
		}
	}
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
