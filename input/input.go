package input

import (
	"net/url"

	"github.com/nojima/fetchie-go/source"
)

// Input is a parsed command line.
type Input struct {
	Mode source.Mode
	// URL is the location. File locations keep the path in URL.Path.
	URL        *url.URL
	Parameters []Field
	Header     Header
	Body       Body
}

type Header struct {
	Fields []Field
}

type BodyType int

const (
	EmptyBody BodyType = iota
	FormBody
	RawBody
)

type Body struct {
	BodyType BodyType
	Fields   []Field
	Raw      []byte // used only when BodyType == RawBody
}

type Field struct {
	Name   string
	Value  string
	IsFile bool
}

type Options struct {
	ReadStdin bool
}
