package exchange

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// hardRedirectCap bounds native redirect following when maxRedirects is
// not set.
const hardRedirectCap = 50

// BuildHTTPClient builds a client for one attempt. base is used as-is when it
// is not an *http.Transport; otherwise a clone is configured from options.
func BuildHTTPClient(options *Options, base http.RoundTripper, jar http.CookieJar, nativeRedirects bool, logger *slog.Logger) (*http.Client, error) {
	checkRedirect := func(req *http.Request, via []*http.Request) error {
		// Report the redirect target instead of following it
		return http.ErrUseLastResponse
	}
	if options.Bool(FollowRedirects) && nativeRedirects {
		checkRedirect = func(req *http.Request, via []*http.Request) error {
			if max, ok := options.Int(MaxRedirects); ok {
				if len(via) > max {
					return newError(TooManyRedirects, fmt.Sprintf("Maximum (%d) redirects followed", max))
				}
				return nil
			}
			if len(via) > hardRedirectCap {
				return newError(TooManyRedirects, fmt.Sprintf("Maximum (%d) redirects followed", hardRedirectCap))
			}
			return nil
		}
	}

	client := http.Client{
		CheckRedirect: checkRedirect,
		Timeout:       options.Duration(ReadTimeout),
	}
	if jar != nil {
		client.Jar = jar
	}

	var transp http.RoundTripper
	if base == nil {
		transp = http.DefaultTransport.(*http.Transport).Clone()
	} else if httpTransport, ok := base.(*http.Transport); ok {
		transp = httpTransport.Clone()
	} else {
		transp = base
	}
	if httpTransport, ok := transp.(*http.Transport); ok {
		tlsConfig, err := buildTLSConfig(options, logger)
		if err != nil {
			return nil, err
		}
		httpTransport.TLSClientConfig = tlsConfig
		if proxy := options.String(Proxy); proxy != "" {
			proxyURL, err := url.Parse(proxy)
			if err != nil {
				return nil, WrapError(ConnectFailure, errors.Wrapf(err, "parsing proxy URL '%s'", proxy))
			}
			httpTransport.Proxy = http.ProxyURL(proxyURL)
		}
		if timeout := options.Duration(ConnectTimeout); timeout > 0 {
			dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
			httpTransport.DialContext = dialer.DialContext
			httpTransport.TLSHandshakeTimeout = timeout
		}
	}
	client.Transport = transp

	return &client, nil
}

func buildTLSConfig(options *Options, logger *slog.Logger) (*tls.Config, error) {
	config := &tls.Config{}

	if caFile := options.String(TLSCAFile); caFile != "" {
		config.RootCAs = loadCertPool(caFile, logger)
	}

	verifyPeer := options.BoolOr(VerifyPeer, true)
	verifyHost := options.BoolOr(VerifyHost, true)
	switch {
	case !verifyPeer:
		config.InsecureSkipVerify = true
	case !verifyHost:
		// Check the chain but accept any host name
		roots := config.RootCAs
		config.InsecureSkipVerify = true
		config.VerifyConnection = func(state tls.ConnectionState) error {
			return verifyChain(state, roots)
		}
	}

	if version, ok := options.Int(TLSVersion); ok && version > 0 {
		config.MinVersion = uint16(version)
	}
	if options.Bool(ForceTLS10) {
		config.MinVersion = tls.VersionTLS10
		config.MaxVersion = tls.VersionTLS10
	}
	return config, nil
}

// loadCertPool never fails: an unreadable bundle yields an empty pool, so
// every certificate is untrusted and the caller sees a trust failure.
func loadCertPool(path string, logger *slog.Logger) *x509.CertPool {
	pool := x509.NewCertPool()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		logger.Warn("cannot read CA bundle", "path", path, "err", err)
		return pool
	}
	if !pool.AppendCertsFromPEM(data) {
		logger.Warn("no certificates found in CA bundle", "path", path)
	}
	return pool
}

func verifyChain(state tls.ConnectionState, roots *x509.CertPool) error {
	if len(state.PeerCertificates) == 0 {
		return errors.New("tls: server presented no certificates")
	}
	intermediates := x509.NewCertPool()
	for _, cert := range state.PeerCertificates[1:] {
		intermediates.AddCert(cert)
	}
	_, err := state.PeerCertificates[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
	})
	return err
}
