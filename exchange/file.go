package exchange

import (
	"fmt"
	"io/ioutil"
	"net/url"
	"os"
	"strings"
)

// LocalPath converts a file URL to a filesystem path. Anything that is not a
// file URL is returned unchanged.
func LocalPath(rawurl string) string {
	if !strings.HasPrefix(rawurl, "file://") {
		return rawurl
	}
	path := strings.TrimPrefix(rawurl, "file://")
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// ReadFile reads path and classifies the failure.
func ReadFile(path string) ([]byte, error) {
	data, err := ioutil.ReadFile(path)
	if err == nil {
		return data, nil
	}
	switch {
	case os.IsNotExist(err):
		return nil, &Error{Kind: FileNotFound, Code: FileNotFound.Code(), Message: fmt.Sprintf("Couldn't open file %s", path), cause: err}
	default:
		return nil, &Error{Kind: FileUnreadable, Code: FileUnreadable.Code(), Message: fmt.Sprintf("Couldn't read file %s", path), cause: err}
	}
}

// ReadLocal reads a file URL straight from the filesystem, bypassing the
// transport.
func (f *Fetcher) ReadLocal(rawurl string) (*Outcome, error) {
	path := LocalPath(rawurl)
	data, err := ReadFile(path)
	if err != nil {
		return nil, f.fail(err)
	}
	f.logger().Debug("read local file", "path", path, "bytes", len(data))
	return &Outcome{
		Body: data,
		Info: Info{URL: rawurl, ContentLength: int64(len(data))},
	}, nil
}
