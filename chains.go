package fetchie

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/nojima/fetchie-go/chain"
	"github.com/nojima/fetchie-go/recovery"
	"github.com/nojima/fetchie-go/source"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ChainResult is the outcome of one chain file.
type ChainResult struct {
	Path   string
	Result []byte
}

// RunChains runs every chain file concurrently, each with its own
// orchestrator. Results keep the order of paths. The first failure cancels
// the chains still running.
func RunChains(ctx context.Context, paths []string, client recovery.Config) ([]ChainResult, error) {
	results := make([]ChainResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			result, err := runChain(ctx, path, client)
			if err != nil {
				return errors.Wrapf(err, "chain '%s'", path)
			}
			results[i] = ChainResult{Path: path, Result: result}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runChain(ctx context.Context, path string, client recovery.Config) ([]byte, error) {
	f, err := chain.Load(path)
	if err != nil {
		return nil, err
	}
	config, err := f.Source()
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	logger := slog.Default().With("chain", name)
	config.Client = client
	if client.CookieFile == "" || client.CookieFile == recovery.DefaultConfig().CookieFile {
		config.Client.CookieFile = name + ".cookie.txt"
	}
	config.Logger = logger
	o, err := source.New(config)
	if err != nil {
		return nil, err
	}
	runner := &chain.Runner{Orchestrator: o, Limiter: f.Limiter(), Logger: logger}
	return runner.Run(ctx, f.Steps)
}
