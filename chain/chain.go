// Package chain runs dependent fetch steps where later parameters are cut
// out of the previous step's result.
package chain

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/nojima/fetchie-go/ban"
	"github.com/nojima/fetchie-go/exchange"
	"github.com/nojima/fetchie-go/source"
	"github.com/nojima/fetchie-go/transform"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Markers select the text between the first Start and the first End that
// follows it.
type Markers struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Param is a request parameter. When Between is set, Value is ignored and
// replaced by the text between the markers in the previous result.
type Param struct {
	Name    string   `yaml:"name"`
	Value   string   `yaml:"value,omitempty"`
	Between *Markers `yaml:"between,omitempty"`
}

// Step is one fetch. URL is relative to the orchestrator's base.
type Step struct {
	URL    string  `yaml:"url"`
	Params []Param `yaml:"params,omitempty"`
	Post   bool    `yaml:"post,omitempty"`

	Referer string `yaml:"referer,omitempty"`
	// FollowLocation defaults to true.
	FollowLocation *bool  `yaml:"follow_location,omitempty"`
	UserAgent      string `yaml:"user_agent,omitempty"`

	Transforms []string     `yaml:"transforms,omitempty"`
	Ban        ban.Criteria `yaml:"ban,omitempty"`
}

// Between returns the text strictly between the first occurrence of start
// and the first occurrence of end after it, or "" when either is missing.
func Between(s, start, end string) string {
	i := strings.Index(s, start)
	if i == -1 {
		return ""
	}
	s = s[i+len(start):]
	j := strings.Index(s, end)
	if j == -1 {
		return ""
	}
	return s[:j]
}

// Runner executes steps against one orchestrator, keeping its backend open
// between steps so cookies carry over.
type Runner struct {
	Orchestrator *source.Orchestrator
	// Limiter paces the steps. Nil means no pacing.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// Run executes steps in order and returns the last result. An empty list
// returns nil and no error. The first failing step stops the run.
func (r *Runner) Run(ctx context.Context, steps []Step) ([]byte, error) {
	if len(steps) == 0 {
		return nil, nil
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if err := r.Orchestrator.Close(); err != nil {
			logger.Warn("failed to close orchestrator", "err", err)
		}
	}()

	var contents []byte
	for i, step := range steps {
		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				return nil, errors.Wrapf(err, "step %d", i+1)
			}
		}
		req, err := request(step, string(contents))
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i+1)
		}
		logger.Debug("chain step", "step", i+1, "url", step.URL, "post", step.Post)
		result, err := r.Orchestrator.GetContents(ctx, req, true)
		if err != nil {
			logger.Debug("chain step failed", "step", i+1, "err", err)
			return nil, errors.Wrapf(err, "step %d (%s)", i+1, step.URL)
		}
		contents = result
	}
	return contents, nil
}

func request(step Step, previous string) (*source.Request, error) {
	params := url.Values{}
	for _, p := range step.Params {
		value := p.Value
		if p.Between != nil {
			value = Between(previous, p.Between.Start, p.Between.End)
		}
		params.Add(p.Name, value)
	}

	options := exchange.NewOptions()
	follow := true
	if step.FollowLocation != nil {
		follow = *step.FollowLocation
	}
	if err := options.Set(exchange.FollowRedirects, follow); err != nil {
		return nil, err
	}
	if step.Referer != "" {
		if err := options.Set(exchange.Referer, step.Referer); err != nil {
			return nil, err
		}
	}
	if step.UserAgent != "" {
		if err := options.Set(exchange.UserAgent, step.UserAgent); err != nil {
			return nil, err
		}
	}

	return &source.Request{
		Sub:        step.URL,
		Params:     params,
		Post:       step.Post,
		Options:    options,
		Transforms: transform.Parse(strings.Join(step.Transforms, ",")),
		Ban:        step.Ban,
	}, nil
}
