package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nojima/fetchie-go/ban"
	"github.com/nojima/fetchie-go/exchange"
	"github.com/nojima/fetchie-go/metrics"
	"github.com/nojima/fetchie-go/recovery"
)

// rejectedStatus lists the statuses treated as failures even though the
// transport succeeded.
var rejectedStatus = map[int]bool{
	http.StatusUnauthorized:        true,
	http.StatusForbidden:           true,
	http.StatusNotFound:            true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
}

type httpBackend struct {
	o      *Orchestrator
	client *recovery.Client
}

func (b *httpBackend) open() (*recovery.Client, error) {
	if b.client != nil {
		return b.client, nil
	}
	client, err := recovery.NewClient(b.o.config.Client)
	if err != nil {
		return nil, err
	}
	b.client = client
	return client, nil
}

func (b *httpBackend) fetch(ctx context.Context, req *Request) ([]byte, error) {
	client, err := b.open()
	if err != nil {
		return nil, err
	}
	if req.Options != nil {
		for _, key := range req.Options.Keys() {
			value, _ := req.Options.Get(key)
			if err := client.SetOption(key, value); err != nil {
				b.o.logger.Debug("option not applied", "key", key, "err", err)
			}
		}
	}

	u := b.o.config.Base
	if req.Sub != "" {
		u = withSlash(u) + req.Sub
	}
	var body recovery.Body
	if req.Raw != nil && len(req.Params) == 0 {
		body.Raw = req.Raw
	}
	if len(req.Params) > 0 {
		if req.Post {
			body.Form = req.Params
		} else {
			u += "?" + req.Params.Encode()
		}
	}
	b.o.logger.Debug("http fetch", "url", u, "post", req.Post)

	result, err := client.Go(ctx, u, body)
	if err != nil {
		return nil, err
	}
	if status := client.Info().StatusCode; rejectedStatus[status] {
		return nil, exchange.NewErrorWithCode(exchange.HTTPLogicalFailure, status, fmt.Sprintf("ERROR %d", status))
	}
	result, err = ban.Filter(result, client.LastURL(), req.Ban)
	if err != nil {
		metrics.Bans.WithLabelValues(exchange.KindOf(err).String()).Inc()
		return nil, err
	}
	return result, nil
}

// Client returns the HTTP client while it is open.
func (o *Orchestrator) Client() *recovery.Client {
	if b, ok := o.backend.(*httpBackend); ok {
		return b.client
	}
	return nil
}

func (b *httpBackend) close() error {
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}
