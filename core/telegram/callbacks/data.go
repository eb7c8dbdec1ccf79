// Package callbacks builds callback data strings in the "/path/segments?key=value"
// form the router parses.
package callbacks

import (
	"net/url"
	"strings"
)

// MaxDataLen is the Telegram limit for callback data, in bytes.
const MaxDataLen = 64

// Path joins segments into a command path: Path("delete", "42") is "/delete/42".
func Path(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(s)
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// WithQuery appends key/value pairs to path as a query string. A trailing key
// without a value is ignored.
func WithQuery(path string, kv ...string) string {
	if len(kv) < 2 {
		return path
	}
	values := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		values = append(values, url.QueryEscape(kv[i])+"="+url.QueryEscape(kv[i+1]))
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(values, "&")
}

// Fits reports whether data is short enough to be sent as callback data.
func Fits(data string) bool {
	return len(data) > 0 && len(data) <= MaxDataLen
}
