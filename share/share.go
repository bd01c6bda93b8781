// Package share encodes diagram source into share links and back. The
// encoding is base64 over the percent-encoded UTF-8 source, which is what
// btoa(encodeURIComponent(code)) produces in a browser, so links made by
// either side open in the other.
package share

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Param is the query parameter carrying the encoded source.
const Param = "code"

// ErrURLDecodeFailed is returned for links whose payload cannot be decoded.
var ErrURLDecodeFailed = errors.New("share: cannot decode code parameter")

// MsgURLDecodeFailed is the notice shown when a share link does not decode.
const MsgURLDecodeFailed = "Failed to load code from URL."

const upperhex = "0123456789ABCDEF"

// unreserved reports the characters encodeURIComponent leaves alone.
func unreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}

// EscapeComponent percent-encodes s with encodeURIComponent rules. Invalid
// UTF-8 sequences are encoded as U+FFFD.
func EscapeComponent(s string) string {
	s = strings.ToValidUTF8(s, "\ufffd")
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

// Encode returns the share payload for source.
func Encode(source string) string {
	return base64.StdEncoding.EncodeToString([]byte(EscapeComponent(source)))
}

// Decode reverses Encode. Like atob it tolerates missing padding and
// whitespace; a space is read as '+', which is what an unescaped '+' in a
// query string turns into.
func Decode(param string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(param); i++ {
		switch c := param[i]; c {
		case ' ':
			b.WriteByte('+')
		case '\t', '\n', '\f', '\r':
		default:
			b.WriteByte(c)
		}
	}
	payload := strings.TrimRight(b.String(), "=")
	raw, err := base64.RawStdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: base64: %v", ErrURLDecodeFailed, err)
	}
	src, err := url.PathUnescape(string(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrURLDecodeFailed, err)
	}
	if !utf8.ValidString(src) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrURLDecodeFailed)
	}
	return src, nil
}

// URL builds the share link: base's origin and path with ?code=<payload>.
// Any query or fragment on base is dropped.
func URL(base, source string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("share: base url: %w", err)
	}
	u.RawQuery = url.Values{Param: {Encode(source)}}.Encode()
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// FromURL extracts and decodes the payload of a share link. raw may also be
// the bare payload. ok is false when raw is a URL without a code parameter.
func FromURL(raw string) (source string, ok bool, err error) {
	raw = strings.TrimSpace(raw)
	if u, perr := url.Parse(raw); perr == nil && (u.Scheme != "" || strings.Contains(raw, "?")) {
		q := u.Query()
		if !q.Has(Param) {
			return "", false, nil
		}
		src, err := Decode(q.Get(Param))
		return src, true, err
	}
	src, err := Decode(raw)
	return src, true, err
}
