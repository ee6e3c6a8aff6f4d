// Package transform post-processes fetched content through an ordered list
// of transformations.
package transform

import (
	"bytes"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	xhtml "golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"
)

// Transform rewrites content. Implementations must not retain b.
type Transform interface {
	Apply(b []byte) []byte
}

// Func adapts a plain function to Transform.
type Func func([]byte) []byte

func (f Func) Apply(b []byte) []byte {
	return f(b)
}

// Named refers to a built-in transformation by name. Unknown names leave
// the content untouched.
type Named string

func (n Named) Apply(b []byte) []byte {
	f, ok := builtins[string(n)]
	if !ok {
		return b
	}
	return f(b)
}

// Known reports whether n names a built-in.
func (n Named) Known() bool {
	_, ok := builtins[string(n)]
	return ok
}

// Chain applies its transforms left to right.
type Chain []Transform

func (c Chain) Apply(b []byte) []byte {
	for _, t := range c {
		if t == nil {
			continue
		}
		b = t.Apply(b)
	}
	return b
}

// Parse builds a chain of named built-ins from a comma-separated list such
// as "strip_tags,trim".
func Parse(list string) Chain {
	var c Chain
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		c = append(c, Named(name))
	}
	return c
}

// Names returns the built-in names.
func Names() []string {
	return []string{"html_unescape", "lower", "strip_tags", "trim", "upper", "utf8_decode", "utf8_encode", "utf8_encode_once"}
}

var builtins = map[string]func([]byte) []byte{
	"trim":             bytes.TrimSpace,
	"lower":            bytes.ToLower,
	"upper":            bytes.ToUpper,
	"html_unescape":    htmlUnescape,
	"strip_tags":       stripTags,
	"utf8_encode":      latin1ToUTF8,
	"utf8_encode_once": latin1ToUTF8Once,
	"utf8_decode":      utf8ToLatin1,
}

func htmlUnescape(b []byte) []byte {
	return []byte(html.UnescapeString(string(b)))
}

// stripTags keeps the text nodes of an HTML document, dropping script and
// style contents.
func stripTags(b []byte) []byte {
	var out bytes.Buffer
	z := xhtml.NewTokenizer(bytes.NewReader(b))
	skip := 0
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return out.Bytes()
		case xhtml.StartTagToken:
			if name, _ := z.TagName(); isRawText(name) {
				skip++
			}
		case xhtml.EndTagToken:
			if name, _ := z.TagName(); isRawText(name) && skip > 0 {
				skip--
			}
		case xhtml.TextToken:
			if skip == 0 {
				out.Write(z.Text())
			}
		}
	}
}

func isRawText(name []byte) bool {
	return string(name) == "script" || string(name) == "style"
}

func latin1ToUTF8(b []byte) []byte {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return b
	}
	return out
}

// latin1ToUTF8Once converts only content that is not already valid UTF-8.
func latin1ToUTF8Once(b []byte) []byte {
	if utf8.Valid(b) {
		return b
	}
	return latin1ToUTF8(b)
}

func utf8ToLatin1(b []byte) []byte {
	out, err := charmap.ISO8859_1.NewEncoder().Bytes(b)
	if err != nil {
		return b
	}
	return out
}

// Validate returns an error naming the first unknown built-in in c.
func Validate(c Chain) error {
	for _, t := range c {
		if n, ok := t.(Named); ok && !n.Known() {
			return errors.Errorf("unknown transform '%s' (known: %s)", string(n), strings.Join(Names(), ", "))
		}
	}
	return nil
}
