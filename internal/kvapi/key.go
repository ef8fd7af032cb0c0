package kvapi

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// KeySeparator joins encoded key segments on the wire.
const KeySeparator = ":"

const upperhex = "0123456789ABCDEF"

// EncodeKey percent-encodes every segment and joins them with KeySeparator.
// Only unreserved characters (letters, digits, "-", "_", ".", "~") stay raw,
// so "/" never leaks into the route and the separator is always escaped.
// A segment made only of dots is escaped entirely; otherwise URL resolution
// would treat it as a dot segment and drop it from the path.
func EncodeKey(segments []string) string {
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = escapeSegment(s)
	}
	return strings.Join(parts, KeySeparator)
}

func escapeSegment(s string) string {
	dotsOnly := strings.Trim(s, ".") == ""
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) && !(dotsOnly && c == '.') {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '~':
		return true
	}
	return false
}

// DecodeKey reverses EncodeKey. The input must still be in escaped form.
func DecodeKey(raw string) ([]string, error) {
	if raw == "" {
		return nil, errors.New("kvapi: empty key")
	}
	parts := strings.Split(raw, KeySeparator)
	segments := make([]string, len(parts))
	for i, p := range parts {
		s, err := url.PathUnescape(p)
		if err != nil {
			return nil, errors.Wrapf(err, "kvapi: decode key segment %d", i)
		}
		segments[i] = s
	}
	return segments, nil
}
