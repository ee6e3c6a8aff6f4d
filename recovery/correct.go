package recovery

import (
	"net/url"
	"strings"
)

// CorrectURL fixes common mistakes in hand-written URLs: one leading space,
// a missing slash after "http:/", and unescaped path segments. It returns
// rawurl unchanged when nothing applies.
func CorrectURL(rawurl string) string {
	u := strings.TrimPrefix(rawurl, " ")
	if strings.HasPrefix(u, "http:/") && !strings.HasPrefix(u, "http://") {
		u = "http://" + u[len("http:/"):]
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		u = escapePath(u)
	}
	return u
}

// escapePath escapes every path segment after the authority that is not
// already escaped. The query and fragment are left alone.
func escapePath(u string) string {
	end := strings.IndexAny(u, "?#")
	if end == -1 {
		end = len(u)
	}
	segments := strings.Split(u[:end], "/")
	// segments[0] is the scheme, segments[2] the authority
	for i := 3; i < len(segments); i++ {
		if !isEscaped(segments[i]) {
			segments[i] = url.PathEscape(segments[i])
		}
	}
	return strings.Join(segments, "/") + u[end:]
}

func isEscaped(segment string) bool {
	unescaped, err := url.PathUnescape(segment)
	return err == nil && unescaped != segment
}
