// Package horosafe guards user-supplied input that reaches the filesystem:
// file names chosen in the editor, paths under the diagrams directory and
// uploaded file bodies.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// MaxUpload is the default cap for uploaded or loaded text (1 MiB).
const MaxUpload int64 = 1 << 20

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrTooLarge is returned by LimitedReadAll when the input exceeds the cap.
var ErrTooLarge = errors.New("horosafe: input too large")

// SafePath validates that joining base and userInput does not escape base.
// Returns the cleaned path or ErrPathTraversal.
func SafePath(base, userInput string) (string, error) {
	if strings.Contains(userInput, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+userInput))
	root := filepath.Clean(base)
	if cleaned == root || !strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// ValidateFileName rejects names that are empty, too long, or contain
// anything besides letters, digits, underscore, hyphen, dot and space.
// Directory separators are never allowed.
func ValidateFileName(s string) error {
	if s == "" || strings.Trim(s, ". ") == "" {
		return fmt.Errorf("horosafe: file name must not be empty")
	}
	if len(s) > 255 {
		return fmt.Errorf("horosafe: file name too long (max 255)")
	}
	for _, r := range s {
		if !isNameChar(r) {
			return fmt.Errorf("horosafe: invalid character %q in file name", r)
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r. It returns ErrTooLarge if
// the limit is exceeded.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

func isNameChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.' || r == ' '
}
