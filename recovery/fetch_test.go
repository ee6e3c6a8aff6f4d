package recovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/nojima/fetchie-go/exchange"
	"github.com/nojima/fetchie-go/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	// Setup
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
		}
		fmt.Fprintf(w, "  <p>%s</p>  ", r.Header.Get("User-Agent"))
	}))
	defer server.Close()
	config := DefaultConfig()
	config.CookieDir = filepath.Join(t.TempDir(), "missing")
	options := exchange.NewOptions()
	require.NoError(t, options.Set(exchange.UserAgent, "agent"))
	require.NoError(t, options.Set(exchange.AutoReferer, true))

	// Exercise
	result := Fetch(context.Background(), config, server.URL+"/page", Body{}, options, transform.Parse("strip_tags,trim"))
	failed := Fetch(context.Background(), config, "http://127.0.0.1:1/", Body{}, nil, nil)

	// Verify
	require.NoError(t, result.Err)
	assert.Equal(t, "agent", string(result.Body))
	assert.Equal(t, http.StatusOK, result.Info.StatusCode)
	assert.Equal(t, exchange.ConnectFailure, exchange.KindOf(failed.Err))
	assert.Nil(t, failed.Body)
}

func TestFetch_MissingFile(t *testing.T) {
	// Setup
	options := exchange.NewOptions()
	require.NoError(t, options.Set(exchange.TLSCAFile, false))
	config := DefaultConfig()
	config.CookieDir = filepath.Join(t.TempDir(), "missing")

	// Exercise
	result := Fetch(context.Background(), config, "file:///nonexistent/fetchie", Body{}, options, nil)

	// Verify
	assert.Equal(t, exchange.FileNotFound, exchange.KindOf(result.Err))
}
