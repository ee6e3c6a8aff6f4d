// Package source fetches content from a base location over HTTP, FTP or the
// local filesystem, and selects the latest of many remote files.
package source

import (
	"context"
	"io/ioutil"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nojima/fetchie-go/ban"
	"github.com/nojima/fetchie-go/exchange"
	"github.com/nojima/fetchie-go/metrics"
	"github.com/nojima/fetchie-go/recovery"
	"github.com/nojima/fetchie-go/transform"
	"github.com/pkg/errors"
)

// Request asks for the content of Sub below the orchestrator's base.
type Request struct {
	Sub string
	// Params go to the query string, or to the form body when Post is set.
	// FTP ignores them.
	Params url.Values
	Post   bool
	// Raw is sent verbatim as the POST body when Params is empty.
	Raw []byte
	// Options are applied to the HTTP client before the fetch and stay set
	// while the client is kept open.
	Options    *exchange.Options
	Transforms transform.Chain
	Ban        ban.Criteria
	FTP        FTPParams
}

// FTPParams configures FTP logins and file selection.
type FTPParams struct {
	User     string
	Password string
	// Prefix and Ext filter the listing for LastByName and LastByDate.
	Prefix string
	Ext    string
	// Cleanup deletes the filtered files that were not selected.
	Cleanup bool
	// Groups are the file families merged by LastByDDMMYY. No groups means
	// one group matching every file.
	Groups []Group
}

// Config configures an Orchestrator.
type Config struct {
	Mode Mode
	// Base is a URL prefix (http), a host with optional port (ftp) or a
	// directory (file).
	Base   string
	Client recovery.Config
	Logger *slog.Logger
	// DialFTP overrides the FTP dialer, mainly for tests.
	DialFTP DialFunc
	// FTPTimeout bounds the FTP dial. Zero means 10 seconds.
	FTPTimeout time.Duration
}

type backend interface {
	fetch(ctx context.Context, req *Request) ([]byte, error)
	close() error
}

// Orchestrator dispatches requests to the backend of its mode. Backends are
// opened on first use. It is not safe for concurrent use.
type Orchestrator struct {
	config  Config
	logger  *slog.Logger
	errors  *exchange.ErrorLog
	backend backend
}

func New(config Config) (*Orchestrator, error) {
	switch config.Mode {
	case ModeHTTP, ModeFTP, ModeFile:
	default:
		return nil, errors.Errorf("invalid mode: %d", int(config.Mode))
	}
	if config.Mode != ModeFile && config.Base == "" {
		return nil, errors.Errorf("%s mode needs a base location", config.Mode)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Client.Logger == nil {
		config.Client.Logger = logger
	}
	return &Orchestrator{
		config: config,
		logger: logger.With("mode", config.Mode.String()),
		errors: &exchange.ErrorLog{},
	}, nil
}

func (o *Orchestrator) Mode() Mode {
	return o.config.Mode
}

func (o *Orchestrator) Base() string {
	return o.config.Base
}

func (o *Orchestrator) Errors() *exchange.ErrorLog {
	return o.errors
}

// Error returns the last error message, or "".
func (o *Orchestrator) Error() string {
	return o.errors.LastMessage()
}

func (o *Orchestrator) open() backend {
	if o.backend != nil {
		return o.backend
	}
	switch o.config.Mode {
	case ModeHTTP:
		o.backend = &httpBackend{o: o}
	case ModeFTP:
		dial := o.config.DialFTP
		if dial == nil {
			dial = dialFTP
		}
		o.backend = &ftpBackend{o: o, dial: dial}
	default:
		o.backend = &fileBackend{o: o}
	}
	return o.backend
}

// GetContents fetches req and pipes the result through req.Transforms.
// Unless keepOpen is set the backend is closed afterwards.
func (o *Orchestrator) GetContents(ctx context.Context, req *Request, keepOpen bool) ([]byte, error) {
	if req == nil {
		req = &Request{}
	}
	started := time.Now()
	b := o.open()
	result, err := b.fetch(ctx, req)
	metrics.FetchDuration.WithLabelValues(o.config.Mode.String()).Observe(time.Since(started).Seconds())
	if !keepOpen {
		if closeErr := o.Close(); closeErr != nil {
			o.logger.Warn("failed to close backend", "err", closeErr)
		}
	}
	if err != nil {
		o.errors.Add(err)
		o.logger.Debug("get contents failed", "sub", req.Sub, "err", err)
		return nil, err
	}
	return req.Transforms.Apply(result), nil
}

// GetFile writes the contents of req to path. Redirects are followed unless
// req says otherwise.
func (o *Orchestrator) GetFile(ctx context.Context, path string, req *Request) error {
	if req == nil {
		req = &Request{}
	}
	r := *req
	if r.Options == nil {
		r.Options = exchange.NewOptions()
	} else {
		r.Options = r.Options.Clone()
	}
	if !r.Options.IsSet(exchange.FollowRedirects) {
		r.Options.Set(exchange.FollowRedirects, true)
	}
	contents, err := o.GetContents(ctx, &r, false)
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(path, contents, 0644); err != nil {
		return errors.Wrapf(err, "writing '%s'", path)
	}
	return nil
}

// Close releases the backend. The next request opens a new one.
func (o *Orchestrator) Close() error {
	if o.backend == nil {
		return nil
	}
	err := o.backend.close()
	o.backend = nil
	return err
}

func withSlash(base string) string {
	if base == "" || strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}
