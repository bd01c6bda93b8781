// Package files saves and loads diagram source as plain text, either inside
// a workspace directory or as a browser download/upload.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hazyhaar/diagrammer/horosafe"
)

// DefaultFilename is suggested when the user does not name the file.
const DefaultFilename = "mermaid-diagram.txt"

// Notices shown after a save or load.
const (
	MsgFileSaved      = "File saved successfully!"
	MsgFileSaveFailed = "Failed to save file."
	MsgFileLoaded     = "File loaded successfully!"
	MsgFileLoadFailed = "Failed to read file."
)

var (
	// ErrFileSaveFailed wraps every save failure.
	ErrFileSaveFailed = errors.New("files: save failed")
	// ErrFileLoadFailed wraps every load failure.
	ErrFileLoadFailed = errors.New("files: load failed")
)

// Extensions accepted for saved and listed files.
var Extensions = []string{".txt", ".mmd", ".d2"}

func allowedExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Saver stores diagram source. saved is false when the user backed out,
// which is not an error.
type Saver interface {
	Save(ctx context.Context, name, content string) (saved bool, location string, err error)
}

// DirSaver writes files into a directory.
type DirSaver struct {
	Dir string
}

// Save writes content to Dir/name. An empty name uses DefaultFilename. The
// write goes through a temporary file so a failed save never truncates an
// existing diagram.
func (s DirSaver) Save(ctx context.Context, name, content string) (bool, string, error) {
	if ctx.Err() != nil {
		return false, "", nil
	}
	path, err := s.resolve(name)
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrFileSaveFailed, err)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrFileSaveFailed, err)
	}
	tmp, err := os.CreateTemp(s.Dir, ".save-*")
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrFileSaveFailed, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.WriteString(tmp, content); err != nil {
		tmp.Close()
		return false, "", fmt.Errorf("%w: %v", ErrFileSaveFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrFileSaveFailed, err)
	}
	if ctx.Err() != nil {
		return false, "", nil
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrFileSaveFailed, err)
	}
	return true, path, nil
}

func (s DirSaver) resolve(name string) (string, error) {
	if name == "" {
		name = DefaultFilename
	}
	if err := horosafe.ValidateFileName(name); err != nil {
		return "", err
	}
	if !allowedExt(name) {
		return "", fmt.Errorf("extension %q not one of %v", filepath.Ext(name), Extensions)
	}
	return horosafe.SafePath(s.Dir, name)
}

// Load reads Dir/name.
func (s DirSaver) Load(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: no file name", ErrFileLoadFailed)
	}
	if err := horosafe.ValidateFileName(name); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileLoadFailed, err)
	}
	path, err := horosafe.SafePath(s.Dir, name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileLoadFailed, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileLoadFailed, err)
	}
	defer f.Close()
	return Read(f)
}

// List returns the saveable files in Dir, sorted by name. A missing
// directory lists as empty.
func (s DirSaver) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("files: list: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && allowedExt(e.Name()) && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// DownloadSaver streams the file to an HTTP client as an attachment.
type DownloadSaver struct {
	W http.ResponseWriter
}

// Save writes the attachment. name defaults to DefaultFilename.
func (s DownloadSaver) Save(ctx context.Context, name, content string) (bool, string, error) {
	if ctx.Err() != nil {
		return false, "", nil
	}
	if name == "" || horosafe.ValidateFileName(name) != nil {
		name = DefaultFilename
	}
	h := s.W.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := io.WriteString(s.W, content); err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrFileSaveFailed, err)
	}
	return true, name, nil
}

// Read reads at most horosafe.MaxUpload bytes of text. A byte order mark is
// dropped and invalid UTF-8 is replaced with U+FFFD, as a browser text
// reader does.
func Read(r io.Reader) (string, error) {
	data, err := horosafe.LimitedReadAll(r, horosafe.MaxUpload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileLoadFailed, err)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	return strings.ToValidUTF8(text, "\ufffd"), nil
}
