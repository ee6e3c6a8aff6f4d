// Package recovery wraps the single-shot fetcher with automatic recovery:
// URL correction, TLS downgrade, certificate relaxation, direct file reads
// and manual redirect chasing.
package recovery

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/nojima/fetchie-go/exchange"
	"github.com/pkg/errors"
)

// Config holds construction-time settings. Use DefaultConfig as a base.
type Config struct {
	// CookieDir and CookieFile form the cookie file path. Cookies are kept in
	// memory and saved by Close only when CookieDir exists.
	CookieDir       string
	CookieFile      string
	DeleteOldCookie bool
	// CAFile is resolved against the working directory. NoCA disables
	// certificate trust entirely.
	CAFile string
	NoCA   bool
	// ManualRedirects forces redirects to be chased by the client even when
	// the environment allows the transport to follow them.
	ManualRedirects bool
	Logger          *slog.Logger
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

func DefaultConfig() Config {
	return Config{
		CookieDir:  "temp/",
		CookieFile: "cookie.txt",
		CAFile:     "ca-bundle.crt",
	}
}

// executor is the transport side of the engine.
type executor interface {
	Execute(ctx context.Context, r *exchange.Request) (*exchange.Outcome, error)
	ReadLocal(rawurl string) (*exchange.Outcome, error)
}

// Client is a single-request-at-a-time fetch client. It is not safe for
// concurrent use.
type Client struct {
	exec            executor
	jar             *exchange.PersistentJar
	errors          *exchange.ErrorLog
	logger          *slog.Logger
	options         *exchange.Options
	nativeRedirects bool

	cookieDir       string
	cookieFile      string
	deleteOldCookie bool
	caFile          string

	autoReferer        bool
	autoFollowLocation bool
	autoSSL            bool
	retryCorrectingURL bool
	fileDirect         bool
	tls10Supported     bool

	history []string
	lastURL string
	info    exchange.Info
	header  exchange.ResponseHeader
}

func NewClient(config Config) (*Client, error) {
	def := DefaultConfig()
	if config.CookieDir == "" {
		config.CookieDir = def.CookieDir
	}
	if config.CookieFile == "" {
		config.CookieFile = def.CookieFile
	}
	if config.CAFile == "" {
		config.CAFile = def.CAFile
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	log := &exchange.ErrorLog{}
	fetcher := exchange.NewFetcher(log, logger)
	fetcher.Transport = config.Transport
	fetcher.NativeRedirects = fetcher.NativeRedirects && !config.ManualRedirects

	c := &Client{
		exec:               fetcher,
		errors:             log,
		logger:             logger,
		options:            exchange.NewOptions(),
		nativeRedirects:    fetcher.NativeRedirects,
		deleteOldCookie:    config.DeleteOldCookie,
		cookieFile:         config.CookieFile,
		autoFollowLocation: true,
		autoSSL:            true,
		retryCorrectingURL: true,
		tls10Supported:     true,
	}
	c.cookieDir = resolveDir(config.CookieDir)
	jar, err := exchange.OpenJar(c.CookiePath())
	if err != nil {
		return nil, err
	}
	c.jar = jar
	fetcher.Jar = jar

	if config.NoCA {
		c.caFile = ""
	} else {
		c.SetCAFile(config.CAFile)
	}
	return c, nil
}

func resolveDir(dir string) string {
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	if wd, err := os.Getwd(); err == nil && !filepath.IsAbs(dir) {
		if isDir(filepath.Join(wd, dir)) {
			return filepath.Join(wd, dir) + "/"
		}
	}
	return dir
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (c *Client) CookiePath() string {
	return c.cookieDir + c.cookieFile
}

func (c *Client) SetCookieDir(dir string) error {
	c.cookieDir = resolveDir(dir)
	return c.jar.Rebind(c.CookiePath())
}

// SetCookieFile changes the cookie file name, deleting the previous file
// first when DeleteOldCookie was configured.
func (c *Client) SetCookieFile(name string) error {
	if c.deleteOldCookie && isFile(c.CookiePath()) {
		if err := os.Remove(c.CookiePath()); err != nil {
			return errors.Wrapf(err, "deleting cookie file '%s'", c.CookiePath())
		}
	}
	c.cookieFile = name
	return c.jar.Rebind(c.CookiePath())
}

// SetCAFile sets the CA bundle, preferring a file of that name in the
// working directory. An empty path disables certificate trust.
func (c *Client) SetCAFile(path string) {
	if path == "" {
		c.caFile = ""
		return
	}
	if wd, err := os.Getwd(); err == nil && !filepath.IsAbs(path) {
		if candidate := filepath.Join(wd, path); isFile(candidate) {
			path = candidate
		}
	}
	c.caFile = path
}

func (c *Client) CAFile() string {
	return c.caFile
}

// SetOption stores a transport option. The auto* keys and tlsCAFile set the
// client's own switches. Failures are recorded in the error log.
func (c *Client) SetOption(key exchange.Key, value interface{}) error {
	switch key {
	case exchange.AutoReferer, exchange.AutoFollowLocation, exchange.AutoSSL:
		b, ok := value.(bool)
		if !ok {
			return c.rejectOption(key, value)
		}
		switch key {
		case exchange.AutoReferer:
			c.autoReferer = b
		case exchange.AutoFollowLocation:
			c.autoFollowLocation = b
		case exchange.AutoSSL:
			c.autoSSL = b
		}
		return nil
	case exchange.TLSCAFile:
		switch v := value.(type) {
		case string:
			c.SetCAFile(v)
			return nil
		case bool:
			if !v {
				c.SetCAFile("")
				return nil
			}
		}
		return c.rejectOption(key, value)
	}
	if err := c.options.Set(key, value); err != nil {
		c.errors.Add(err)
		c.logger.Warn("option rejected", "key", key, "err", err)
		return err
	}
	return nil
}

func (c *Client) rejectOption(key exchange.Key, value interface{}) error {
	err := exchange.NewError(exchange.UnknownOption, "can't assign "+string(key))
	c.errors.Add(err)
	c.logger.Warn("option rejected", "key", key, "value", value)
	return err
}

// Option returns a stored transport option.
func (c *Client) Option(key exchange.Key) (interface{}, bool) {
	return c.options.Get(key)
}

func (c *Client) UnsetOption(key exchange.Key) {
	c.options.Unset(key)
}

func (c *Client) AutoReferer() bool {
	return c.autoReferer
}

func (c *Client) SetAutoReferer(v bool) {
	c.autoReferer = v
}

func (c *Client) AutoFollowLocation() bool {
	return c.autoFollowLocation
}

func (c *Client) SetAutoFollowLocation(v bool) {
	c.autoFollowLocation = v
}

func (c *Client) AutoSSL() bool {
	return c.autoSSL
}

func (c *Client) SetAutoSSL(v bool) {
	c.autoSSL = v
}

func (c *Client) RetryCorrectingURL() bool {
	return c.retryCorrectingURL
}

func (c *Client) SetRetryCorrectingURL(v bool) {
	c.retryCorrectingURL = v
}

// FileDirectRead reports whether file URLs are read from the filesystem
// instead of through the transport.
func (c *Client) FileDirectRead() bool {
	return c.fileDirect
}

func (c *Client) SetFileDirectRead(v bool) {
	c.fileDirect = v
}

// NativeRedirects reports whether the transport may follow redirects itself.
func (c *Client) NativeRedirects() bool {
	return c.nativeRedirects
}

// History returns every URL requested so far, retries included.
func (c *Client) History() []string {
	history := make([]string, len(c.history))
	copy(history, c.history)
	return history
}

// LastURL is the final URL of the last attempt, after any redirects.
func (c *Client) LastURL() string {
	return c.lastURL
}

func (c *Client) Info() exchange.Info {
	return c.info
}

// Header is the header block of the last response when includeHeader is set.
func (c *Client) Header() exchange.ResponseHeader {
	return c.header
}

func (c *Client) Errors() *exchange.ErrorLog {
	return c.errors
}

// Error returns the last error message, or "".
func (c *Client) Error() string {
	return c.errors.LastMessage()
}

// ErrNo returns the code of the last error, or 0.
func (c *Client) ErrNo() int {
	e, _ := c.errors.Last()
	return e.Code
}

// Close saves cookies when the cookie directory exists.
func (c *Client) Close() error {
	if !isDir(c.cookieDir) {
		c.logger.Debug("cookie directory missing, cookies not saved", "dir", c.cookieDir)
		return nil
	}
	return c.jar.Save()
}
