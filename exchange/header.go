package exchange

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ResponseHeader is a header block captured from a raw response. The Link
// header is decoded into Links, keyed by relation type.
type ResponseHeader struct {
	Fields map[string]string
	Links  map[string]string
}

func (h ResponseHeader) Get(name string) (string, bool) {
	v, ok := h.Fields[name]
	return v, ok
}

// ParseHeaderBlock parses "Name: value" lines. Lines without a colon, such
// as the status line, are skipped. A repeated name keeps the last value.
func ParseHeaderBlock(block string) ResponseHeader {
	h := ResponseHeader{Fields: make(map[string]string)}
	for _, line := range strings.Split(block, "\n") {
		pos := strings.Index(line, ":")
		if pos == -1 {
			continue
		}
		name := line[:pos]
		value := strings.TrimSpace(line[pos+1:])
		if name == "Link" {
			h.Links = ParseLinks(value)
		}
		h.Fields[name] = value
	}
	return h
}

// ParseLinks decodes a comma-separated Link header value such as
// `<https://a/?page=2>; rel="next", <https://a/?page=1>; rel="prev"`.
func ParseLinks(value string) map[string]string {
	links := make(map[string]string)
	for _, link := range strings.Split(value, ",") {
		relPos := strings.Index(link, `rel="`)
		urlPos := strings.Index(link, "<")
		if relPos == -1 || urlPos == -1 {
			continue
		}
		rel := link[relPos+len(`rel="`):]
		end := strings.Index(rel, `"`)
		if end == -1 {
			continue
		}
		rel = rel[:end]
		target := link[urlPos+1:]
		end = strings.Index(target, ">")
		if end == -1 {
			continue
		}
		links[rel] = target[:end]
	}
	return links
}

// EncodeLinks is the inverse of ParseLinks. Relations are emitted in
// lexical order.
func EncodeLinks(links map[string]string) string {
	rels := make([]string, 0, len(links))
	for rel := range links {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	parts := make([]string, 0, len(rels))
	for _, rel := range rels {
		parts = append(parts, fmt.Sprintf(`<%s>; rel="%s"`, links[rel], rel))
	}
	return strings.Join(parts, ", ")
}

// headerBlock renders the status line and header of resp the way it came
// over the wire, terminated by an empty line.
func headerBlock(resp *http.Response) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s\r\n", resp.Proto, resp.Status)
	resp.Header.Write(&buf)
	buf.WriteString("\r\n")
	return buf.Bytes()
}
