package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/diagrammer/export"
	"github.com/hazyhaar/diagrammer/render"
	"github.com/hazyhaar/diagrammer/store"
)

// Config is the diagrammer configuration file.
type Config struct {
	Addr     string `yaml:"addr"`
	DB       string `yaml:"db"`
	LogLevel string `yaml:"log_level"`
	FilesDir string `yaml:"files_dir"`

	Render  RenderConfig  `yaml:"render"`
	Browser BrowserConfig `yaml:"browser"`
	Export  ExportConfig  `yaml:"export"`
	Editor  EditorConfig  `yaml:"editor"`
	Watch   WatchConfig   `yaml:"watch"`
	Metrics MetricsConfig `yaml:"metrics"`
	MCPQuic MCPQuicConfig `yaml:"mcp_quic"`
}

// RenderConfig selects the engines.
type RenderConfig struct {
	// FallbackEngine renders sources that do not start with a Mermaid
	// keyword: d2 | mermaid.
	FallbackEngine string `yaml:"fallback_engine"`
	// MermaidScript is a URL or a local file with mermaid.min.js.
	MermaidScript string        `yaml:"mermaid_script"`
	Timeout       time.Duration `yaml:"timeout"`
}

// BrowserConfig controls the headless Chrome used for Mermaid.
type BrowserConfig struct {
	Disabled        bool          `yaml:"disabled"`
	Remote          string        `yaml:"remote"`
	Bin             string        `yaml:"bin"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
}

// ExportConfig tunes the raster export.
type ExportConfig struct {
	Padding      int           `yaml:"padding"`
	MaxDimension float64       `yaml:"max_dimension"`
	LoadTimeout  time.Duration `yaml:"load_timeout"`
	JPEGQuality  int           `yaml:"jpeg_quality"`
	// Decoder is auto | native | browser. auto uses Chrome when it started.
	Decoder string `yaml:"decoder"`
}

// EditorConfig holds the editor timings.
type EditorConfig struct {
	AutosaveTTL    time.Duration `yaml:"autosave_ttl"`
	Debounce       time.Duration `yaml:"debounce"`
	ResizeDebounce time.Duration `yaml:"resize_debounce"`
	Toast          time.Duration `yaml:"toast"`
}

// WatchConfig controls the store watcher of a running server.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval"`
	Debounce time.Duration `yaml:"debounce"`
}

// MetricsConfig controls the metrics table.
type MetricsConfig struct {
	Disabled      bool          `yaml:"disabled"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Retention     time.Duration `yaml:"retention"`
}

// MCPQuicConfig enables the MCP listener over QUIC. Without a certificate
// pair a self-signed one is generated at startup.
type MCPQuicConfig struct {
	Addr     string `yaml:"addr"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Decoder choices.
const (
	DecoderAuto    = "auto"
	DecoderNative  = "native"
	DecoderBrowser = "browser"
)

// LoadConfigFile reads a YAML configuration file. An empty path yields the
// defaults. Environment overrides are applied after the file.
func LoadConfigFile(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	for _, e := range []struct {
		key string
		dst *string
	}{
		{"DIAGRAMMER_ADDR", &c.Addr},
		{"DIAGRAMMER_DB", &c.DB},
		{"DIAGRAMMER_FILES_DIR", &c.FilesDir},
		{"LOG_LEVEL", &c.LogLevel},
		{"CHROME_REMOTE", &c.Browser.Remote},
		{"CHROME_BIN", &c.Browser.Bin},
		{"MERMAID_SCRIPT", &c.Render.MermaidScript},
		{"MCP_QUIC_ADDR", &c.MCPQuic.Addr},
	} {
		if v := getenv(e.key); v != "" {
			*e.dst = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8086"
	}
	if c.DB == "" {
		c.DB = "diagrammer.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.FilesDir == "" {
		c.FilesDir = "diagrams"
	}
	if c.Render.FallbackEngine == "" {
		c.Render.FallbackEngine = render.EngineD2
	}
	if c.Render.MermaidScript == "" {
		c.Render.MermaidScript = render.DefaultMermaidScript
	}
	if c.Render.Timeout <= 0 {
		c.Render.Timeout = 30 * time.Second
	}
	if c.Export.Padding <= 0 {
		c.Export.Padding = export.DefaultPadding
	}
	if c.Export.MaxDimension <= 0 {
		c.Export.MaxDimension = export.DefaultMaxDimension
	}
	if c.Export.LoadTimeout <= 0 {
		c.Export.LoadTimeout = export.DefaultLoadTimeout
	}
	if c.Export.JPEGQuality <= 0 {
		c.Export.JPEGQuality = export.DefaultJPEGQuality
	}
	if c.Export.Decoder == "" {
		c.Export.Decoder = DecoderAuto
	}
	if c.Editor.AutosaveTTL <= 0 {
		c.Editor.AutosaveTTL = store.DefaultTTL
	}
	if c.Editor.Debounce <= 0 {
		c.Editor.Debounce = 300 * time.Millisecond
	}
	if c.Editor.ResizeDebounce <= 0 {
		c.Editor.ResizeDebounce = 300 * time.Millisecond
	}
	if c.Editor.Toast <= 0 {
		c.Editor.Toast = 3 * time.Second
	}
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = time.Second
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = 200 * time.Millisecond
	}
	if c.Metrics.FlushInterval <= 0 {
		c.Metrics.FlushInterval = 5 * time.Second
	}
	if c.Metrics.Retention <= 0 {
		c.Metrics.Retention = 7 * 24 * time.Hour
	}
}

func (c *Config) validate() error {
	c.Render.FallbackEngine = strings.ToLower(c.Render.FallbackEngine)
	switch c.Render.FallbackEngine {
	case render.EngineD2, render.EngineMermaid:
	default:
		return fmt.Errorf("config: unknown fallback engine %q", c.Render.FallbackEngine)
	}
	c.Export.Decoder = strings.ToLower(c.Export.Decoder)
	switch c.Export.Decoder {
	case DecoderAuto, DecoderNative, DecoderBrowser:
	default:
		return fmt.Errorf("config: unknown decoder %q", c.Export.Decoder)
	}
	if c.Export.Decoder == DecoderBrowser && c.Browser.Disabled {
		return fmt.Errorf("config: decoder %q needs the browser", DecoderBrowser)
	}
	if (c.MCPQuic.CertFile == "") != (c.MCPQuic.KeyFile == "") {
		return fmt.Errorf("config: mcp_quic needs both cert_file and key_file")
	}
	return nil
}
