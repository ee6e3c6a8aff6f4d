package recovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nojima/fetchie-go/ban"
	"github.com/nojima/fetchie-go/exchange"
	"github.com/nojima/fetchie-go/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step func(r *exchange.Request) (*exchange.Outcome, error)

// fakeExecutor replays scripted outcomes and records every request.
type fakeExecutor struct {
	t          *testing.T
	log        *exchange.ErrorLog
	steps      []step
	requests   []*exchange.Request
	localReads []string
}

func (f *fakeExecutor) Execute(ctx context.Context, r *exchange.Request) (*exchange.Outcome, error) {
	f.requests = append(f.requests, r)
	i := len(f.requests) - 1
	if i >= len(f.steps) {
		f.t.Fatalf("unexpected request #%d to %s", i+1, r.URL)
	}
	outcome, err := f.steps[i](r)
	if err != nil {
		f.log.Add(err)
	}
	return outcome, err
}

func (f *fakeExecutor) ReadLocal(rawurl string) (*exchange.Outcome, error) {
	f.localReads = append(f.localReads, rawurl)
	return &exchange.Outcome{Body: []byte("local"), Info: exchange.Info{URL: rawurl}}, nil
}

func fail(kind exchange.Kind, message string) step {
	return func(r *exchange.Request) (*exchange.Outcome, error) {
		return nil, exchange.NewError(kind, message)
	}
}

func ok(body string) step {
	return func(r *exchange.Request) (*exchange.Outcome, error) {
		return &exchange.Outcome{Body: []byte(body), Info: exchange.Info{URL: r.URL, StatusCode: 200}}, nil
	}
}

func landedAt(finalURL, body string) step {
	return func(r *exchange.Request) (*exchange.Outcome, error) {
		return &exchange.Outcome{Body: []byte(body), Info: exchange.Info{URL: finalURL, StatusCode: 200}}, nil
	}
}

func redirectTo(target string) step {
	return func(r *exchange.Request) (*exchange.Outcome, error) {
		return &exchange.Outcome{Info: exchange.Info{URL: r.URL, StatusCode: 302, RedirectURL: target}}, nil
	}
}

func newTestClient(t *testing.T, config Config) *Client {
	config.CookieDir = filepath.Join(t.TempDir(), "missing") + "/"
	c, err := NewClient(config)
	require.NoError(t, err)
	return c
}

func newFakeClient(t *testing.T, config Config, steps ...step) (*Client, *fakeExecutor) {
	c := newTestClient(t, config)
	fake := &fakeExecutor{t: t, log: c.errors, steps: steps}
	c.exec = fake
	return c, fake
}

func requestedURLs(f *fakeExecutor) []string {
	urls := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		urls = append(urls, r.URL)
	}
	return urls
}

func TestClient_Go_CorrectsURL(t *testing.T) {
	testCases := []struct {
		title        string
		url          string
		disabled     bool
		steps        []step
		expectedURLs []string
		expectedKind exchange.Kind
	}{
		{
			title:        "leading space",
			url:          " http://example.com/a",
			steps:        []step{fail(exchange.ConnectFailure, "Could not resolve host"), ok("fixed")},
			expectedURLs: []string{" http://example.com/a", "http://example.com/a"},
		},
		{
			title:        "missing slash",
			url:          "http:/example.com/a",
			steps:        []step{fail(exchange.ConnectFailure, "no Host in request URL"), ok("fixed")},
			expectedURLs: []string{"http:/example.com/a", "http://example.com/a"},
		},
		{
			title:        "unescaped segment",
			url:          "http://example.com/my docs/a b.txt?q=x y",
			steps:        []step{fail(exchange.ConnectFailure, "Could not connect"), ok("fixed")},
			expectedURLs: []string{"http://example.com/my docs/a b.txt?q=x y", "http://example.com/my%20docs/a%20b.txt?q=x y"},
		},
		{
			title:        "nothing to correct",
			url:          "http://nowhere.invalid/",
			steps:        []step{fail(exchange.ConnectFailure, "Could not resolve host")},
			expectedURLs: []string{"http://nowhere.invalid/"},
			expectedKind: exchange.ConnectFailure,
		},
		{
			title:        "correction disabled",
			url:          " http://example.com/a",
			disabled:     true,
			steps:        []step{fail(exchange.ConnectFailure, "Could not resolve host")},
			expectedURLs: []string{" http://example.com/a"},
			expectedKind: exchange.ConnectFailure,
		},
		{
			title: "corrected only once",
			url:   " http://example.com/a",
			steps: []step{
				fail(exchange.ConnectFailure, "Could not resolve host"),
				fail(exchange.ConnectFailure, "Could not resolve host"),
			},
			expectedURLs: []string{" http://example.com/a", "http://example.com/a"},
			expectedKind: exchange.ConnectFailure,
		},
	}
	for _, tt := range testCases {
		t.Run(tt.title, func(t *testing.T) {
			// Setup
			c, fake := newFakeClient(t, Config{}, tt.steps...)
			c.SetRetryCorrectingURL(!tt.disabled)

			// Exercise
			body, err := c.Go(context.Background(), tt.url, Body{})

			// Verify
			assert.Equal(t, tt.expectedURLs, requestedURLs(fake))
			assert.Equal(t, tt.expectedURLs, c.History())
			assert.Equal(t, tt.expectedKind, exchange.KindOf(err))
			if tt.expectedKind == exchange.NoError {
				assert.Equal(t, "fixed", string(body))
			} else {
				assert.Equal(t, tt.expectedKind.Code(), c.ErrNo())
			}
		})
	}
}

func TestClient_Go_FileFallback(t *testing.T) {
	// Setup
	c, fake := newFakeClient(t, Config{}, fail(exchange.ConnectFailure, "Protocol \"file\" not supported"))

	// Exercise
	first, err := c.Go(context.Background(), "file:///data/a.txt", Body{})
	require.NoError(t, err)
	second, err := c.Go(context.Background(), "file:///data/b.txt", Body{})
	require.NoError(t, err)

	// Verify
	assert.Equal(t, "local", string(first))
	assert.Equal(t, "local", string(second))
	assert.True(t, c.FileDirectRead())
	assert.Len(t, fake.requests, 1)
	assert.Equal(t, []string{"file:///data/a.txt", "file:///data/b.txt"}, fake.localReads)
}

func TestClient_Go_TLSDowngrade(t *testing.T) {
	testCases := []struct {
		title            string
		steps            []step
		expectedAttempts int
		expectedKind     exchange.Kind
	}{
		{
			title:            "forced TLS 1.0 succeeds",
			steps:            []step{fail(exchange.TLSNegotiationFailure, "protocol version"), ok("ok")},
			expectedAttempts: 2,
		},
		{
			title: "floor raised after forcing",
			steps: []step{
				fail(exchange.TLSNegotiationFailure, "protocol version"),
				fail(exchange.TLSNegotiationFailure, "protocol version"),
				ok("ok"),
			},
			expectedAttempts: 3,
		},
		{
			title: "each action once",
			steps: []step{
				fail(exchange.TLSNegotiationFailure, "protocol version"),
				fail(exchange.TLSNegotiationFailure, "protocol version"),
				fail(exchange.TLSNegotiationFailure, "protocol version"),
			},
			expectedAttempts: 3,
			expectedKind:     exchange.TLSNegotiationFailure,
		},
	}
	for _, tt := range testCases {
		t.Run(tt.title, func(t *testing.T) {
			// Setup
			c, fake := newFakeClient(t, Config{}, tt.steps...)

			// Exercise
			_, err := c.Go(context.Background(), "https://legacy.example.com/", Body{})

			// Verify
			assert.Equal(t, tt.expectedKind, exchange.KindOf(err))
			require.Len(t, fake.requests, tt.expectedAttempts)
			assert.False(t, fake.requests[0].Options.Bool(exchange.ForceTLS10))
			assert.True(t, fake.requests[1].Options.Bool(exchange.ForceTLS10))
			if tt.expectedAttempts > 2 {
				assert.False(t, fake.requests[2].Options.Bool(exchange.ForceTLS10))
				version, _ := fake.requests[2].Options.Int(exchange.TLSVersion)
				assert.Equal(t, exchange.MinTLSVersion, version)
			}
			_, set := c.Option(exchange.ForceTLS10)
			assert.False(t, set)
		})
	}
}

func TestClient_Go_RelaxesCertificate(t *testing.T) {
	// Setup
	c, fake := newFakeClient(t, Config{},
		fail(exchange.CertificateTrustFailure, "x509: certificate signed by unknown authority"),
		ok("ok"),
		fail(exchange.CertificateTrustFailure, "x509: certificate signed by unknown authority"),
	)
	before := testutil.ToFloat64(metrics.Recoveries.WithLabelValues("relax_certificate"))

	// Exercise
	body, err := c.Go(context.Background(), "https://self-signed.example.com/", Body{})
	require.NoError(t, err)
	_, secondErr := c.Go(context.Background(), "https://self-signed.example.com/", Body{})

	// Verify
	assert.Equal(t, "ok", string(body))
	assert.False(t, c.AutoSSL())
	assert.False(t, fake.requests[1].Options.BoolOr(exchange.VerifyPeer, true))
	assert.False(t, fake.requests[1].Options.BoolOr(exchange.VerifyHost, true))
	assert.Equal(t, exchange.CertificateTrustFailure, exchange.KindOf(secondErr))
	assert.Len(t, fake.requests, 3)
	assert.Equal(t, 60, c.ErrNo())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Recoveries.WithLabelValues("relax_certificate")))
}

func TestClient_Go_AutoSSL(t *testing.T) {
	// Setup
	caFile := filepath.Join(t.TempDir(), "ca-bundle.crt")
	require.NoError(t, os.WriteFile(caFile, []byte("-----BEGIN CERTIFICATE-----\n"), 0644))

	testCases := []struct {
		title          string
		url            string
		caFile         string
		noCA           bool
		expectedVerify bool
	}{
		{title: "https with bundle", url: "https://example.com/", caFile: caFile, expectedVerify: true},
		{title: "https without bundle", url: "https://example.com/", noCA: true, expectedVerify: false},
		{title: "https with missing bundle", url: "https://example.com/", caFile: caFile + ".missing", expectedVerify: false},
		{title: "plain http", url: "http://example.com/", caFile: caFile, expectedVerify: false},
	}
	for _, tt := range testCases {
		t.Run(tt.title, func(t *testing.T) {
			c, fake := newFakeClient(t, Config{CAFile: tt.caFile, NoCA: tt.noCA}, ok("ok"))

			// Exercise
			_, err := c.Go(context.Background(), tt.url, Body{})
			require.NoError(t, err)

			// Verify
			options := fake.requests[0].Options
			assert.Equal(t, tt.expectedVerify, options.Bool(exchange.VerifyPeer))
			assert.Equal(t, tt.expectedVerify, options.Bool(exchange.VerifyHost))
			if tt.expectedVerify {
				assert.Equal(t, caFile, options.String(exchange.TLSCAFile))
			}
		})
	}
}

func TestClient_Go_ManualRedirects(t *testing.T) {
	testCases := []struct {
		title            string
		maxRedirects     int
		expectedRequests int
		expectedKind     exchange.Kind
	}{
		{title: "within the limit", maxRedirects: 3, expectedRequests: 4},
		{title: "over the limit", maxRedirects: 2, expectedRequests: 3, expectedKind: exchange.TooManyRedirects},
		{title: "no hops allowed", maxRedirects: 0, expectedRequests: 1, expectedKind: exchange.TooManyRedirects},
	}
	for _, tt := range testCases {
		t.Run(tt.title, func(t *testing.T) {
			// Setup
			c, fake := newFakeClient(t, Config{ManualRedirects: true},
				redirectTo("http://example.com/1"),
				redirectTo("http://example.com/2"),
				redirectTo("http://example.com/3"),
				ok("landed"),
			)
			require.NoError(t, c.SetOption(exchange.MaxRedirects, tt.maxRedirects))

			// Exercise
			body, err := c.Go(context.Background(), "http://example.com/0", Body{})

			// Verify
			assert.Equal(t, tt.expectedKind, exchange.KindOf(err))
			assert.Len(t, fake.requests, tt.expectedRequests)
			if err == nil {
				assert.Equal(t, "landed", string(body))
				assert.Equal(t, "http://example.com/3", c.LastURL())
				return
			}
			last, _ := c.Errors().Last()
			assert.Equal(t, exchange.TooManyRedirects, last.Kind)
			assert.Equal(t, 47, last.Code)
		})
	}
}

func TestClient_Go_RecoversAfterRedirectHops(t *testing.T) {
	// Setup
	c, fake := newFakeClient(t, Config{ManualRedirects: true},
		redirectTo("https://example.com/1"),
		redirectTo("https://example.com/2"),
		redirectTo("https://example.com/3"),
		redirectTo("https://example.com/4"),
		redirectTo("https://example.com/5"),
		redirectTo("https://example.com/6"),
		fail(exchange.CertificateTrustFailure, "x509: certificate signed by unknown authority"),
		ok("landed"),
	)

	// Exercise
	body, err := c.Go(context.Background(), "https://example.com/0", Body{})

	// Verify
	require.NoError(t, err)
	assert.Equal(t, "landed", string(body))
	assert.Len(t, fake.requests, 8)
	assert.False(t, c.AutoSSL())
	assert.Equal(t, "https://example.com/6", fake.requests[7].URL)
}

func TestClient_Go_RedirectNotChased(t *testing.T) {
	testCases := []struct {
		title  string
		manual bool
		follow bool
	}{
		{title: "following disabled", manual: true, follow: false},
		{title: "native environment", manual: false, follow: true},
	}
	for _, tt := range testCases {
		t.Run(tt.title, func(t *testing.T) {
			// Setup
			c, fake := newFakeClient(t, Config{ManualRedirects: tt.manual}, redirectTo("http://example.com/next"))
			c.nativeRedirects = !tt.manual
			require.NoError(t, c.SetOption(exchange.FollowRedirects, tt.follow))

			// Exercise
			_, err := c.Go(context.Background(), "http://example.com/", Body{})

			// Verify
			require.NoError(t, err)
			assert.Len(t, fake.requests, 1)
			assert.Equal(t, "http://example.com/next", c.Info().RedirectURL)
		})
	}
}

func TestClient_Go_AutoReferer(t *testing.T) {
	// Setup
	c, fake := newFakeClient(t, Config{}, ok("1"), ok("2"))
	c.SetAutoReferer(true)

	// Exercise
	_, err := c.Go(context.Background(), "http://example.com/list", Body{})
	require.NoError(t, err)
	_, err = c.Go(context.Background(), "http://example.com/item", Body{})
	require.NoError(t, err)

	// Verify
	assert.Empty(t, fake.requests[0].Options.String(exchange.Referer))
	assert.Equal(t, "http://example.com/list", fake.requests[1].Options.String(exchange.Referer))
	assert.True(t, fake.requests[0].Options.Bool(exchange.FollowRedirects))
}

func TestClient_Go_AutoFollowLocation(t *testing.T) {
	// Setup
	c, fake := newFakeClient(t, Config{}, ok("1"), ok("2"))

	// Exercise
	c.SetAutoFollowLocation(false)
	_, err := c.Go(context.Background(), "http://example.com/", Body{})
	require.NoError(t, err)
	c.SetAutoFollowLocation(true)
	require.NoError(t, c.SetOption(exchange.FollowRedirects, false))
	_, err = c.Go(context.Background(), "http://example.com/", Body{})
	require.NoError(t, err)

	// Verify
	assert.False(t, fake.requests[0].Options.IsSet(exchange.FollowRedirects))
	assert.False(t, fake.requests[1].Options.Bool(exchange.FollowRedirects))
}

func TestClient_GoBan(t *testing.T) {
	testCases := []struct {
		title        string
		step         step
		criteria     ban.Criteria
		expectedKind exchange.Kind
	}{
		{
			title:        "substring in final URL",
			step:         landedAt("http://example.com/login?next=/start", "form"),
			criteria:     ban.Criteria{Substrings: []string{"/login"}},
			expectedKind: exchange.BannedContent,
		},
		{
			title:        "requested URL is not checked",
			step:         landedAt("http://example.com/home", "home"),
			criteria:     ban.Criteria{Substrings: []string{"/start"}},
			expectedKind: exchange.NoError,
		},
		{
			title:        "empty result",
			step:         ok(""),
			criteria:     ban.Criteria{ByteLengths: []int{0}},
			expectedKind: exchange.BannedWeight,
		},
	}
	for _, tt := range testCases {
		t.Run(tt.title, func(t *testing.T) {
			// Setup
			c, _ := newFakeClient(t, Config{}, tt.step)

			// Exercise
			result, err := c.GoBan(context.Background(), "http://example.com/start", Body{}, tt.criteria)

			// Verify
			assert.Equal(t, tt.expectedKind, exchange.KindOf(err))
			if err != nil {
				assert.Nil(t, result)
				last, _ := c.Errors().Last()
				assert.Equal(t, tt.expectedKind, last.Kind)
			}
		})
	}
}

func TestClient_Go_HTTP(t *testing.T) {
	// Setup
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n int
		if _, err := fmt.Sscanf(r.URL.Path, "/hop/%d", &n); err == nil && n < 2 {
			http.Redirect(w, r, fmt.Sprintf("/hop/%d", n+1), http.StatusFound)
			return
		}
		w.Header().Set("Link", `<`+"http://"+r.Host+`/?p=2>; rel="next"`)
		fmt.Fprintf(w, "%s %s", r.Method, r.URL.Path)
	}))
	defer server.Close()
	host := strings.TrimPrefix(server.URL, "http://")

	testCases := []struct {
		title           string
		url             string
		body            Body
		expected        string
		expectedHistory []string
	}{
		{
			title:           "corrected scheme",
			url:             "http:/" + host + "/page",
			expected:        "GET /page",
			expectedHistory: []string{"http:/" + host + "/page", server.URL + "/page"},
		},
		{
			title:           "manual redirect chase",
			url:             server.URL + "/hop/0",
			expected:        "GET /hop/2",
			expectedHistory: []string{server.URL + "/hop/0", server.URL + "/hop/1", server.URL + "/hop/2"},
		},
		{
			title:           "form post",
			url:             server.URL + "/submit",
			body:            Body{Form: map[string][]string{"a": {"1"}}},
			expected:        "POST /submit",
			expectedHistory: []string{server.URL + "/submit"},
		},
	}
	for _, tt := range testCases {
		t.Run(tt.title, func(t *testing.T) {
			// Setup
			c := newTestClient(t, Config{ManualRedirects: true})
			require.NoError(t, c.SetOption(exchange.IncludeHeader, true))

			// Exercise
			body, err := c.Go(context.Background(), tt.url, tt.body)

			// Verify
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(body))
			assert.Equal(t, tt.expectedHistory, c.History())
			assert.Equal(t, map[string]string{"next": "http://" + host + "/?p=2"}, c.Header().Links)
			assert.Equal(t, http.StatusOK, c.Info().StatusCode)
		})
	}
}

func TestClient_Go_CertificateRelaxationOverTLS(t *testing.T) {
	// Setup
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "secure")
	}))
	defer server.Close()
	caFile := filepath.Join(t.TempDir(), "ca-bundle.crt")
	require.NoError(t, os.WriteFile(caFile, []byte("not a certificate"), 0644))
	c := newTestClient(t, Config{CAFile: caFile})

	// Exercise
	body, err := c.Go(context.Background(), server.URL, Body{})

	// Verify
	require.NoError(t, err)
	assert.Equal(t, "secure", string(body))
	assert.False(t, c.AutoSSL())
	require.Equal(t, 1, c.Errors().Len())
	assert.Equal(t, 60, c.ErrNo())
}

func TestClient_SetOption(t *testing.T) {
	// Setup
	c := newTestClient(t, Config{})

	// Exercise
	unknownErr := c.SetOption("cookieSession", true)
	require.NoError(t, c.SetOption(exchange.AutoReferer, true))
	require.NoError(t, c.SetOption(exchange.AutoSSL, false))
	require.NoError(t, c.SetOption(exchange.TLSCAFile, false))
	badErr := c.SetOption(exchange.AutoSSL, "yes")

	// Verify
	assert.Equal(t, exchange.UnknownOption, exchange.KindOf(unknownErr))
	assert.Equal(t, exchange.UnknownOption, exchange.KindOf(badErr))
	assert.Equal(t, 2, c.Errors().Len())
	assert.True(t, c.AutoReferer())
	assert.False(t, c.AutoSSL())
	assert.Empty(t, c.CAFile())
	_, stored := c.Option(exchange.AutoReferer)
	assert.False(t, stored)
}

func TestClient_SetCookieFile(t *testing.T) {
	// Setup
	dir := t.TempDir() + "/"
	old := filepath.Join(dir, "cookie.txt")
	require.NoError(t, os.WriteFile(old, []byte("[]"), 0600))
	c, err := NewClient(Config{CookieDir: dir, DeleteOldCookie: true})
	require.NoError(t, err)

	// Exercise
	require.NoError(t, c.SetCookieFile("session.txt"))
	require.NoError(t, c.Close())

	// Verify
	_, statErr := os.Stat(old)
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, filepath.Join(dir, "session.txt"), c.CookiePath())
	_, statErr = os.Stat(c.CookiePath())
	assert.NoError(t, statErr)
}
