package exchange

import (
	"context"
	"io/ioutil"
	"mime"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHTTPRequest(t *testing.T) {
	// Setup
	options := NewOptions()
	require.NoError(t, options.Set(UserAgent, "crawler/1.0"))
	require.NoError(t, options.Set(Referer, "https://example.com/prev"))
	require.NoError(t, options.Set(HeaderPrefix+"X-Foo", "fizz buzz"))
	require.NoError(t, options.Set(HeaderPrefix+"Host", "example.com:8080"))
	r := &Request{
		URL:     "https://localhost:4000/foo?q=hello+world",
		Form:    url.Values{"hoge": []string{"fuga"}},
		Options: options,
	}

	// Exercise
	actual, err := BuildHTTPRequest(context.Background(), r)
	require.NoError(t, err)

	// Verify
	assert.Equal(t, "POST", actual.Method)
	assert.Equal(t, "https://localhost:4000/foo?q=hello+world", actual.URL.String())
	assert.Equal(t, "crawler/1.0", actual.Header.Get("User-Agent"))
	assert.Equal(t, "https://example.com/prev", actual.Header.Get("Referer"))
	assert.Equal(t, "fizz buzz", actual.Header.Get("X-Foo"))
	assert.Equal(t, "example.com:8080", actual.Host)
	assert.Equal(t, "application/x-www-form-urlencoded; charset=utf-8", actual.Header.Get("Content-Type"))
	body, err := ioutil.ReadAll(actual.Body)
	require.NoError(t, err)
	assert.Equal(t, "hoge=fuga", string(body))
	assert.Equal(t, int64(len("hoge=fuga")), actual.ContentLength)
}

func TestBuildHTTPRequest_Get(t *testing.T) {
	// Exercise
	actual, err := BuildHTTPRequest(context.Background(), &Request{URL: "http://example.com/"})
	require.NoError(t, err)

	// Verify
	assert.Equal(t, "GET", actual.Method)
	assert.Equal(t, DefaultUserAgent(), actual.Header.Get("User-Agent"))
	assert.Empty(t, actual.Header.Get("Referer"))
	assert.Empty(t, actual.Header.Get("Content-Type"))
}

func TestBuildHTTPRequest_Raw(t *testing.T) {
	testCases := []struct {
		title               string
		contentType         string
		expectedContentType string
	}{
		{title: "default content type", contentType: "", expectedContentType: "application/octet-stream"},
		{title: "explicit content type", contentType: "text/xml", expectedContentType: "text/xml"},
	}
	for _, tt := range testCases {
		t.Run(tt.title, func(t *testing.T) {
			// Setup
			r := &Request{URL: "http://example.com/", Raw: []byte("<a/>"), ContentType: tt.contentType}

			// Exercise
			actual, err := BuildHTTPRequest(context.Background(), r)
			require.NoError(t, err)

			// Verify
			assert.Equal(t, "POST", actual.Method)
			assert.Equal(t, tt.expectedContentType, actual.Header.Get("Content-Type"))
			body, err := ioutil.ReadAll(actual.Body)
			require.NoError(t, err)
			assert.Equal(t, "<a/>", string(body))
		})
	}
}

func TestBuildHTTPRequest_Multipart(t *testing.T) {
	// Setup
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.txt")
	require.NoError(t, os.WriteFile(path, []byte("file content"), 0644))
	r := &Request{
		URL: "http://example.com/upload",
		Form: url.Values{
			"file":  []string{"@" + path},
			"title": []string{"report"},
			"email": []string{"@not-a-file"},
		},
	}

	// Exercise
	actual, err := BuildHTTPRequest(context.Background(), r)
	require.NoError(t, err)

	// Verify
	mediaType, params, err := mime.ParseMediaType(actual.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)

	reader := multipart.NewReader(actual.Body, params["boundary"])
	form, err := reader.ReadForm(1 << 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"report"}, form.Value["title"])
	assert.Equal(t, []string{"@not-a-file"}, form.Value["email"])
	require.Len(t, form.File["file"], 1)
	assert.Equal(t, "upload.txt", form.File["file"][0].Filename)
	f, err := form.File["file"][0].Open()
	require.NoError(t, err)
	defer f.Close()
	content, err := ioutil.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "file content", string(content))
}

func TestRequest_WithURL(t *testing.T) {
	// Setup
	original := &Request{URL: "http://a/", Form: url.Values{"k": []string{"v"}}}

	// Exercise
	derived := original.WithURL("http://b/")

	// Verify
	assert.Equal(t, "http://a/", original.URL)
	assert.Equal(t, "http://b/", derived.URL)
	assert.Equal(t, original.Form, derived.Form)
}
