// Package ban rejects successful fetch results by final URL or size.
package ban

import (
	"strings"

	"github.com/nojima/fetchie-go/exchange"
)

// Criteria lists the ban predicates. Each family may be empty. Substrings
// and URLs are matched against the final URL of the fetch, not the one
// originally requested.
type Criteria struct {
	Substrings  []string `yaml:"substrings,omitempty"`
	URLs        []string `yaml:"urls,omitempty"`
	ByteLengths []int    `yaml:"byte_lengths,omitempty"`
}

func (c Criteria) IsZero() bool {
	return len(c.Substrings) == 0 && len(c.URLs) == 0 && len(c.ByteLengths) == 0
}

// Filter returns result unchanged unless a predicate matches. Families are
// checked in order (substrings, URLs, byte lengths) and the first match is
// returned as a BannedContent, BannedURL or BannedWeight error.
func Filter(result []byte, lastURL string, c Criteria) ([]byte, error) {
	for _, s := range c.Substrings {
		if strings.Contains(lastURL, s) {
			return nil, exchange.NewError(exchange.BannedContent, "Banned string")
		}
	}
	for _, u := range c.URLs {
		if u == lastURL {
			return nil, exchange.NewError(exchange.BannedURL, "Banned URL")
		}
	}
	for _, n := range c.ByteLengths {
		if len(result) == n {
			return nil, exchange.NewError(exchange.BannedWeight, "Banned weight")
		}
	}
	return result, nil
}
