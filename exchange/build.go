package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nojima/fetchie-go/version"
	"github.com/pkg/errors"
)

// Request describes one transport attempt. A retry derives a new Request
// with WithURL or WithOptions instead of mutating the one already issued.
type Request struct {
	URL string
	// Form is sent as the POST body. A value of the form "@path" naming an
	// existing file switches the encoding to multipart/form-data.
	Form url.Values
	// Raw is sent verbatim as the POST body when Form is empty.
	Raw         []byte
	ContentType string
	Options     *Options
}

func (r *Request) IsPost() bool {
	return len(r.Form) > 0 || r.Raw != nil
}

func (r *Request) WithURL(rawurl string) *Request {
	c := *r
	c.URL = rawurl
	return &c
}

func (r *Request) WithOptions(options *Options) *Request {
	c := *r
	c.Options = options
	return &c
}

func (r *Request) options() *Options {
	if r.Options == nil {
		return NewOptions()
	}
	return r.Options
}

// DefaultUserAgent is sent when the userAgent option is not set.
func DefaultUserAgent() string {
	return fmt.Sprintf("fetchie-go/%s", version.Current())
}

func BuildHTTPRequest(ctx context.Context, r *Request) (*http.Request, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing URL '%s'", r.URL)
	}

	bodyTuple, err := buildHTTPBody(r)
	if err != nil {
		return nil, err
	}

	method := http.MethodGet
	if r.IsPost() {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyTuple.body)
	if err != nil {
		return nil, errors.Wrap(err, "building HTTP request")
	}
	req.ContentLength = bodyTuple.contentLength
	req.Header = buildHTTPHeader(r.options())
	if req.Header.Get("Content-Type") == "" && bodyTuple.contentType != "" {
		req.Header.Set("Content-Type", bodyTuple.contentType)
	}
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
	}
	return req, nil
}

func buildHTTPHeader(options *Options) http.Header {
	header := make(http.Header)
	userAgent := options.String(UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent()
	}
	header.Set("User-Agent", userAgent)
	if referer := options.String(Referer); referer != "" {
		header.Set("Referer", referer)
	}
	headers := options.Headers()
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		header.Set(name, headers[name])
	}
	return header
}

type bodyTuple struct {
	body          io.ReadCloser
	contentLength int64
	contentType   string
}

func buildHTTPBody(r *Request) (bodyTuple, error) {
	switch {
	case len(r.Form) > 0 && hasFileField(r.Form):
		return buildMultipartBody(r.Form)
	case len(r.Form) > 0:
		return buildFormBody(r.Form), nil
	case r.Raw != nil:
		return buildRawBody(r), nil
	default:
		return bodyTuple{}, nil
	}
}

func buildFormBody(form url.Values) bodyTuple {
	body := form.Encode()
	return bodyTuple{
		body:          ioutil.NopCloser(strings.NewReader(body)),
		contentLength: int64(len(body)),
		contentType:   "application/x-www-form-urlencoded; charset=utf-8",
	}
}

func buildRawBody(r *Request) bodyTuple {
	contentType := r.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return bodyTuple{
		body:          ioutil.NopCloser(bytes.NewReader(r.Raw)),
		contentLength: int64(len(r.Raw)),
		contentType:   contentType,
	}
}

// fileFieldPath returns the path of an "@path" form value that names an
// existing regular file.
func fileFieldPath(value string) (string, bool) {
	if !strings.HasPrefix(value, "@") || len(value) == 1 {
		return "", false
	}
	path := value[1:]
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

func hasFileField(form url.Values) bool {
	for _, values := range form {
		for _, value := range values {
			if _, ok := fileFieldPath(value); ok {
				return true
			}
		}
	}
	return false
}

func buildMultipartBody(form url.Values) (bodyTuple, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	names := make([]string, 0, len(form))
	for name := range form {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, value := range form[name] {
			path, ok := fileFieldPath(value)
			if !ok {
				if err := w.WriteField(name, value); err != nil {
					return bodyTuple{}, errors.Wrapf(err, "writing form field '%s'", name)
				}
				continue
			}
			if err := writeFilePart(w, name, path); err != nil {
				return bodyTuple{}, err
			}
		}
	}
	if err := w.Close(); err != nil {
		return bodyTuple{}, errors.Wrap(err, "closing multipart writer")
	}
	return bodyTuple{
		body:          ioutil.NopCloser(bytes.NewReader(buf.Bytes())),
		contentLength: int64(buf.Len()),
		contentType:   w.FormDataContentType(),
	}, nil
}

func writeFilePart(w *multipart.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "reading field value of '%s'", name)
	}
	defer f.Close()

	part, err := w.CreateFormFile(name, filepath.Base(path))
	if err != nil {
		return errors.Wrapf(err, "creating form file '%s'", name)
	}
	if _, err := io.Copy(part, f); err != nil {
		return errors.Wrapf(err, "copying '%s'", path)
	}
	return nil
}
