package export

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

// Deliver sends the artifact as a download under its fixed filename.
func Deliver(w http.ResponseWriter, art *Artifact) error {
	data, err := art.Bytes()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", art.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	_, err = w.Write(data)
	return err
}

// WriteFile materializes the artifact at path. When path is a directory the
// artifact's filename is used inside it. It returns the written path.
func WriteFile(path string, art *Artifact) (string, error) {
	data, err := art.Bytes()
	if err != nil {
		return "", err
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, art.Filename)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("export: write %s: %w", path, err)
	}
	return path, nil
}
