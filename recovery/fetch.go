package recovery

import (
	"context"
	"time"

	"github.com/nojima/fetchie-go/exchange"
	"github.com/nojima/fetchie-go/transform"
	"github.com/pkg/errors"
)

// Result is the outcome of Fetch. Err is nil on success.
type Result struct {
	Body []byte
	Info exchange.Info
	Err  error
}

// Fetch runs one logical call on a throwaway client built from config.
// options may be nil. The transforms are applied to a successful body.
func Fetch(ctx context.Context, config Config, rawurl string, body Body, options *exchange.Options, transforms transform.Chain) Result {
	started := time.Now()
	c, err := NewClient(config)
	if err != nil {
		return Result{Err: errors.Wrap(err, "creating client")}
	}
	defer c.Close()

	if options != nil {
		for _, key := range options.Keys() {
			value, _ := options.Get(key)
			if err := c.SetOption(key, value); err != nil {
				return Result{Err: err}
			}
		}
	}

	data, err := c.Go(ctx, rawurl, body)
	if err != nil {
		c.logger.Debug("fetch failed", "url", rawurl, "elapsed", time.Since(started), "err", err)
		return Result{Info: c.Info(), Err: err}
	}
	c.logger.Debug("fetch done", "url", rawurl, "elapsed", time.Since(started))
	return Result{Body: transforms.Apply(data), Info: c.Info()}
}
