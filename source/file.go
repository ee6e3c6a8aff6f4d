package source

import (
	"context"

	"github.com/nojima/fetchie-go/exchange"
)

type fileBackend struct {
	o *Orchestrator
}

func (b *fileBackend) fetch(ctx context.Context, req *Request) ([]byte, error) {
	path := exchange.LocalPath(withSlash(b.o.config.Base) + req.Sub)
	b.o.logger.Debug("file read", "path", path)
	return exchange.ReadFile(path)
}

func (b *fileBackend) close() error {
	return nil
}
