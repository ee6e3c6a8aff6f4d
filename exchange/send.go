package exchange

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io/ioutil"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Info describes the transport side of one round trip.
type Info struct {
	// URL is the effective URL after any redirects the transport followed.
	URL        string
	StatusCode int
	Status     string
	Proto      string
	// RedirectURL is the Location of a redirect the transport did not follow.
	RedirectURL string
	// HeaderSize is the length of the header block prepended to the body
	// when includeHeader is set.
	HeaderSize       int
	Header           http.Header
	ContentLength    int64
	RequestTimestamp time.Time
	Elapsed          time.Duration
}

type Outcome struct {
	Body []byte
	Info Info
}

// Fetcher issues exactly one round trip per Execute call. It never retries.
type Fetcher struct {
	Jar    http.CookieJar
	Errors *ErrorLog
	Logger *slog.Logger
	// Transport overrides the default transport, mainly for tests.
	Transport http.RoundTripper
	// NativeRedirects allows the transport to follow redirects by itself
	// when followRedirects is set.
	NativeRedirects bool
}

func NewFetcher(log *ErrorLog, logger *slog.Logger) *Fetcher {
	if log == nil {
		log = &ErrorLog{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		Errors:          log,
		Logger:          logger,
		NativeRedirects: NativeRedirectsAllowed(),
	}
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

func (f *Fetcher) fail(err error) error {
	if f.Errors != nil {
		f.Errors.Add(err)
	}
	f.logger().Debug("fetch failed", "kind", KindOf(err), "err", err)
	return err
}

func (f *Fetcher) Execute(ctx context.Context, r *Request) (*Outcome, error) {
	if !Available() {
		return nil, f.fail(newError(TransportUnavailable, "HTTP transport is not available in this runtime"))
	}
	options := r.options()

	client, err := BuildHTTPClient(options, f.Transport, f.Jar, f.NativeRedirects, f.logger())
	if err != nil {
		return nil, f.fail(classify(err))
	}
	req, err := BuildHTTPRequest(ctx, r)
	if err != nil {
		return nil, f.fail(WrapError(ConnectFailure, err))
	}

	effectiveURL := req.URL.String()
	checkRedirect := client.CheckRedirect
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if err := checkRedirect(req, via); err != nil {
			return err
		}
		effectiveURL = req.URL.String()
		return nil
	}

	requestTime := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, f.fail(classify(err))
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, f.fail(classify(errors.Wrap(err, "reading response body")))
	}
	elapsed := time.Now().Sub(requestTime)

	info := Info{
		URL:              effectiveURL,
		StatusCode:       resp.StatusCode,
		Status:           resp.Status,
		Proto:            resp.Proto,
		Header:           resp.Header,
		ContentLength:    resp.ContentLength,
		RequestTimestamp: requestTime,
		Elapsed:          elapsed,
	}
	if isRedirect(resp.StatusCode) {
		if location, err := resp.Location(); err == nil {
			info.RedirectURL = location.String()
		}
	}
	if options.Bool(IncludeHeader) {
		block := headerBlock(resp)
		info.HeaderSize = len(block)
		body = append(block, body...)
	}

	f.logger().Debug("fetched", "url", effectiveURL, "status", resp.StatusCode, "bytes", len(body), "elapsed", elapsed)
	return &Outcome{Body: body, Info: info}, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// classify maps a transport error onto the error taxonomy. Errors that are
// already classified pass through unchanged.
func classify(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case isCertificateError(err):
		return WrapError(CertificateTrustFailure, err)
	case isTLSVersionError(err):
		return WrapError(TLSNegotiationFailure, err)
	case isTimeout(err):
		return WrapError(Timeout, err)
	case isConnectError(err):
		return WrapError(ConnectFailure, err)
	}
	return WrapError(TransportFailure, err)
}

func isCertificateError(err error) bool {
	var unknownAuthority x509.UnknownAuthorityError
	var invalid x509.CertificateInvalidError
	var hostname x509.HostnameError
	var verification *tls.CertificateVerificationError
	return errors.As(err, &unknownAuthority) ||
		errors.As(err, &invalid) ||
		errors.As(err, &hostname) ||
		errors.As(err, &verification)
}

func isTLSVersionError(err error) bool {
	var alert tls.AlertError
	if errors.As(err, &alert) && (alert == 70 || alert == 40) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"protocol version", "no supported versions", "unsupported versions", "handshake failure"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnectError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unsupported protocol scheme") ||
		strings.Contains(msg, "no Host in request URL") ||
		strings.Contains(msg, "connection refused")
}
