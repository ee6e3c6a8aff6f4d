package chain

import (
	"io/ioutil"
	"time"

	"github.com/nojima/fetchie-go/source"
	"github.com/nojima/fetchie-go/transform"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// File is a chain file: where to fetch from and the steps to run.
type File struct {
	Mode string `yaml:"mode"`
	Base string `yaml:"base"`
	// MinInterval is the minimum time between two steps.
	MinInterval time.Duration `yaml:"min_interval"`
	Steps       []Step        `yaml:"steps"`
}

// Load reads and validates a YAML chain file.
func Load(path string) (*File, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read chain file")
	}
	return Parse(data)
}

// Parse decodes and validates a chain file.
func Parse(data []byte) (*File, error) {
	f := &File{Mode: "http"}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, errors.Wrap(err, "failed to parse chain file")
	}
	if err := validate(f); err != nil {
		return nil, errors.Wrap(err, "invalid chain file")
	}
	return f, nil
}

func validate(f *File) error {
	mode, err := source.ParseMode(f.Mode)
	if err != nil {
		return err
	}
	if mode != source.ModeFile && f.Base == "" {
		return errors.New("base is required")
	}
	if f.MinInterval < 0 {
		return errors.New("min_interval must not be negative")
	}
	if len(f.Steps) == 0 {
		return errors.New("at least one step is required")
	}
	for i, s := range f.Steps {
		for j, p := range s.Params {
			if p.Name == "" {
				return errors.Errorf("steps[%d].params[%d]: name is required", i, j)
			}
			if p.Between != nil && (p.Between.Start == "" || p.Between.End == "") {
				return errors.Errorf("steps[%d].params[%d]: between needs start and end", i, j)
			}
		}
		var c transform.Chain
		for _, name := range s.Transforms {
			c = append(c, transform.Named(name))
		}
		if err := transform.Validate(c); err != nil {
			return errors.Wrapf(err, "steps[%d]", i)
		}
	}
	return nil
}

// Limiter returns a limiter allowing one step per MinInterval, or nil when
// no interval is set.
func (f *File) Limiter() *rate.Limiter {
	if f.MinInterval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(f.MinInterval), 1)
}

// Source returns the orchestrator configuration of f.
func (f *File) Source() (source.Config, error) {
	mode, err := source.ParseMode(f.Mode)
	if err != nil {
		return source.Config{}, err
	}
	return source.Config{Mode: mode, Base: f.Base}, nil
}
