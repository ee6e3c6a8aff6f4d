package recovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/nojima/fetchie-go/ban"
	"github.com/nojima/fetchie-go/exchange"
	"github.com/nojima/fetchie-go/metrics"
)

const (
	// maxAttempts bounds the failed round trips of one logical call. Redirect
	// hops are bounded by maxRedirects instead.
	maxAttempts = 6
	// maxHops bounds manual redirect chasing when maxRedirects is unset.
	maxHops = 50
)

// Body is the payload of a logical call. The zero value sends a GET.
type Body struct {
	Form        url.Values
	Raw         []byte
	ContentType string
}

// attemptState is reset at the start of each logical call. Each corrective
// action may fire at most once per call.
type attemptState struct {
	attempts  int
	redirects int

	corrected   bool
	tls10Forced bool
	floorRaised bool
}

// Go fetches rawurl, transparently retrying with corrected requests until
// the fetch succeeds or no corrective action applies.
func (c *Client) Go(ctx context.Context, rawurl string, body Body) ([]byte, error) {
	logger := c.logger.With("call", uuid.NewString())
	c.header = exchange.ResponseHeader{}

	options := c.options.Clone()
	state := &attemptState{}
	req := &exchange.Request{
		URL:         rawurl,
		Form:        body.Form,
		Raw:         body.Raw,
		ContentType: body.ContentType,
	}

	for {
		c.history = append(c.history, req.URL)
		c.lastURL = req.URL
		c.prepare(options, req.URL)

		if err := checkRedirects(options, state.redirects); err != nil {
			c.errors.Add(err)
			metrics.Failures.WithLabelValues(exchange.KindOf(err).String()).Inc()
			logger.Debug("redirect limit reached", "url", req.URL, "redirects", state.redirects)
			return nil, err
		}

		logger.Debug("attempt", "url", req.URL, "attempt", state.attempts+1, "redirects", state.redirects)
		outcome, err := c.execute(ctx, req.WithOptions(options.Clone()))
		if err == nil {
			c.info = outcome.Info
			if outcome.Info.URL != "" {
				c.lastURL = outcome.Info.URL
			}
			if options.Bool(exchange.FollowRedirects) && !c.nativeRedirects && outcome.Info.RedirectURL != "" {
				state.redirects++
				logger.Debug("chasing redirect", "from", req.URL, "to", outcome.Info.RedirectURL)
				req = req.WithURL(outcome.Info.RedirectURL)
				continue
			}
			return c.finish(outcome, options), nil
		}

		state.attempts++
		if state.attempts >= maxAttempts {
			logger.Warn("attempt limit reached", "url", req.URL, "err", err)
			metrics.Failures.WithLabelValues(exchange.KindOf(err).String()).Inc()
			return nil, err
		}
		next, action := c.corrective(req, options, state, err)
		if next == nil {
			logger.Debug("giving up", "url", req.URL, "kind", exchange.KindOf(err), "err", err)
			metrics.Failures.WithLabelValues(exchange.KindOf(err).String()).Inc()
			return nil, err
		}
		logger.Debug("recovering", "action", action, "kind", exchange.KindOf(err), "url", next.URL)
		metrics.Recoveries.WithLabelValues(action).Inc()
		req = next
	}
}

// GoBan is Go followed by ban.Filter against the final URL.
func (c *Client) GoBan(ctx context.Context, rawurl string, body Body, criteria ban.Criteria) ([]byte, error) {
	result, err := c.Go(ctx, rawurl, body)
	if err != nil {
		return nil, err
	}
	result, err = ban.Filter(result, c.lastURL, criteria)
	if err != nil {
		c.errors.Add(err)
		metrics.Bans.WithLabelValues(exchange.KindOf(err).String()).Inc()
		c.logger.Debug("result banned", "url", c.lastURL, "kind", exchange.KindOf(err))
		return nil, err
	}
	return result, nil
}

// prepare applies the automatic settings before each attempt.
func (c *Client) prepare(options *exchange.Options, rawurl string) {
	if c.autoReferer && len(c.history) >= 2 {
		options.Set(exchange.Referer, c.history[len(c.history)-2])
	}
	if c.autoFollowLocation && !options.IsSet(exchange.FollowRedirects) {
		options.Set(exchange.FollowRedirects, true)
	}
	if c.autoSSL {
		if schemeOf(rawurl) == "https" && c.caFile != "" && isFile(c.caFile) {
			options.Set(exchange.TLSCAFile, c.caFile)
			options.Set(exchange.VerifyPeer, true)
			options.Set(exchange.VerifyHost, true)
		} else {
			options.Set(exchange.VerifyPeer, false)
			options.Set(exchange.VerifyHost, false)
		}
	}
}

func checkRedirects(options *exchange.Options, redirects int) error {
	limit, ok := options.Int(exchange.MaxRedirects)
	if !ok {
		limit = maxHops
	}
	if redirects > limit {
		return exchange.NewError(exchange.TooManyRedirects, fmt.Sprintf("Too many redirections (%d)", redirects))
	}
	return nil
}

func (c *Client) execute(ctx context.Context, req *exchange.Request) (*exchange.Outcome, error) {
	scheme := schemeOf(req.URL)
	metrics.Attempts.WithLabelValues(scheme).Inc()
	if scheme == "file" && c.fileDirect {
		return c.exec.ReadLocal(req.URL)
	}
	return c.exec.Execute(ctx, req)
}

// corrective picks the corrective action for err. It returns nil when the
// failure is terminal.
func (c *Client) corrective(req *exchange.Request, options *exchange.Options, state *attemptState, err error) (*exchange.Request, string) {
	switch exchange.KindOf(err) {
	case exchange.ConnectFailure:
		if schemeOf(req.URL) == "file" && !c.fileDirect {
			c.fileDirect = true
			return req, "file_direct"
		}
		if c.retryCorrectingURL && !state.corrected {
			state.corrected = true
			if corrected := CorrectURL(req.URL); corrected != req.URL {
				return req.WithURL(corrected), "correct_url"
			}
		}
	case exchange.TLSNegotiationFailure:
		if c.tls10Supported && !state.tls10Forced && !options.Bool(exchange.ForceTLS10) {
			state.tls10Forced = true
			options.Set(exchange.ForceTLS10, true)
			return req, "force_tls10"
		}
		if version, _ := options.Int(exchange.TLSVersion); !state.floorRaised && version < exchange.MinTLSVersion {
			state.floorRaised = true
			options.Unset(exchange.ForceTLS10)
			options.Set(exchange.TLSVersion, exchange.MinTLSVersion)
			return req, "raise_tls_floor"
		}
	case exchange.CertificateTrustFailure:
		if c.autoSSL {
			c.autoSSL = false
			for _, o := range []*exchange.Options{c.options, options} {
				o.Set(exchange.VerifyPeer, false)
				o.Set(exchange.VerifyHost, false)
			}
			return req, "relax_certificate"
		}
	}
	return nil, ""
}

// finish splits off the header block when includeHeader is set.
func (c *Client) finish(outcome *exchange.Outcome, options *exchange.Options) []byte {
	body := outcome.Body
	size := outcome.Info.HeaderSize
	if options.Bool(exchange.IncludeHeader) && size > 0 && size <= len(body) {
		c.header = exchange.ParseHeaderBlock(string(body[:size]))
		body = body[size:]
	}
	return body
}

func schemeOf(rawurl string) string {
	rawurl = strings.TrimSpace(rawurl)
	pos := strings.Index(rawurl, ":")
	if pos == -1 {
		return ""
	}
	return strings.ToLower(rawurl[:pos])
}
