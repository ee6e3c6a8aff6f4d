package exchange

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPath(t *testing.T) {
	testCases := []struct {
		title    string
		url      string
		expected string
	}{
		{title: "absolute", url: "file:///var/data/a.txt", expected: "/var/data/a.txt"},
		{title: "missing slash", url: "file://var/data/a.txt", expected: "/var/data/a.txt"},
		{title: "escaped", url: "file:///var/my%20data/a.txt", expected: "/var/my data/a.txt"},
		{title: "bare path", url: "data/a.txt", expected: "data/a.txt"},
	}
	for _, tt := range testCases {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.expected, LocalPath(tt.url))
		})
	}
}

func TestFetcher_ReadLocal(t *testing.T) {
	// Setup
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("local"), 0644))
	f := newTestFetcher(true)

	// Exercise
	outcome, err := f.ReadLocal("file://" + path)
	require.NoError(t, err)
	_, missingErr := f.ReadLocal("file://" + filepath.Join(dir, "missing.txt"))

	// Verify
	assert.Equal(t, "local", string(outcome.Body))
	assert.Equal(t, FileNotFound, KindOf(missingErr))
	assert.Equal(t, 1, f.Errors.Len())
}

func TestPersistentJar_SaveAndOpen(t *testing.T) {
	// Setup
	path := filepath.Join(t.TempDir(), "temp", "cookie.txt")
	jar, err := OpenJar(path)
	require.NoError(t, err)
	u, _ := url.Parse("http://example.com/login")
	jar.SetCookies(u, []*http.Cookie{{Name: "session", Value: "abc"}})

	// Exercise
	require.NoError(t, jar.Save())
	reopened, err := OpenJar(path)
	require.NoError(t, err)

	// Verify
	cookies := reopened.Cookies(u)
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.Equal(t, path, reopened.Path())
}

func TestPersistentJar_KeepsAttributes(t *testing.T) {
	testCases := []struct {
		title     string
		setURL    string
		cookie    *http.Cookie
		lookupURL string
		expected  []string
	}{
		{
			title:     "path scoped cookie",
			setURL:    "http://example.com/app/login",
			cookie:    &http.Cookie{Name: "sid", Value: "s1", Path: "/app"},
			lookupURL: "http://example.com/app/page",
			expected:  []string{"sid=s1"},
		},
		{
			title:     "path scoped cookie outside its path",
			setURL:    "http://example.com/app/login",
			cookie:    &http.Cookie{Name: "sid", Value: "s1", Path: "/app"},
			lookupURL: "http://example.com/other",
			expected:  nil,
		},
		{
			title:     "default path",
			setURL:    "http://example.com/shop/cart/add",
			cookie:    &http.Cookie{Name: "cart", Value: "3"},
			lookupURL: "http://example.com/shop/cart/view",
			expected:  []string{"cart=3"},
		},
		{
			title:     "domain cookie",
			setURL:    "http://www.example.com/",
			cookie:    &http.Cookie{Name: "pref", Value: "dark", Domain: "example.com"},
			lookupURL: "http://api.example.com/",
			expected:  []string{"pref=dark"},
		},
		{
			title:     "secure cookie",
			setURL:    "https://example.com/",
			cookie:    &http.Cookie{Name: "tok", Value: "t", Secure: true},
			lookupURL: "http://example.com/",
			expected:  nil,
		},
		{
			title:     "persistent cookie",
			setURL:    "http://example.com/",
			cookie:    &http.Cookie{Name: "keep", Value: "1", MaxAge: 3600},
			lookupURL: "http://example.com/",
			expected:  []string{"keep=1"},
		},
		{
			title:     "expired cookie",
			setURL:    "http://example.com/",
			cookie:    &http.Cookie{Name: "old", Value: "1", Expires: time.Now().Add(-time.Hour)},
			lookupURL: "http://example.com/",
			expected:  nil,
		},
	}
	for _, tt := range testCases {
		t.Run(tt.title, func(t *testing.T) {
			// Setup
			path := filepath.Join(t.TempDir(), "cookie.txt")
			jar, err := OpenJar(path)
			require.NoError(t, err)
			setURL, _ := url.Parse(tt.setURL)
			jar.SetCookies(setURL, []*http.Cookie{tt.cookie})

			// Exercise
			require.NoError(t, jar.Save())
			reopened, err := OpenJar(path)
			require.NoError(t, err)

			// Verify
			lookupURL, _ := url.Parse(tt.lookupURL)
			var got []string
			for _, c := range reopened.Cookies(lookupURL) {
				got = append(got, c.Name+"="+c.Value)
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestPersistentJar_DeletedCookieIsNotSaved(t *testing.T) {
	// Setup
	path := filepath.Join(t.TempDir(), "cookie.txt")
	jar, err := OpenJar(path)
	require.NoError(t, err)
	u, _ := url.Parse("http://example.com/app/login")
	jar.SetCookies(u, []*http.Cookie{{Name: "sid", Value: "s1", Path: "/app"}})
	jar.SetCookies(u, []*http.Cookie{{Name: "sid", Path: "/app", MaxAge: -1}})

	// Exercise
	require.NoError(t, jar.Save())
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Verify
	assert.JSONEq(t, "[]", string(data))
}
