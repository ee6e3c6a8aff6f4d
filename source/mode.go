package source

import (
	"strings"

	"github.com/pkg/errors"
)

// Mode selects the backend of an Orchestrator.
type Mode int

const (
	ModeHTTP Mode = iota
	ModeFTP
	ModeFile
)

func (m Mode) String() string {
	switch m {
	case ModeHTTP:
		return "http"
	case ModeFTP:
		return "ftp"
	case ModeFile:
		return "file"
	}
	return "unknown"
}

// ParseMode accepts "http", "ftp" and "file", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "http", "https":
		return ModeHTTP, nil
	case "ftp":
		return ModeFTP, nil
	case "file":
		return ModeFile, nil
	}
	return 0, errors.Errorf("invalid mode: '%s'", s)
}

// ModeOf infers the mode from the scheme of location. Locations without a
// scheme are filesystem paths.
func ModeOf(location string) Mode {
	lower := strings.ToLower(strings.TrimSpace(location))
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return ModeHTTP
	case strings.HasPrefix(lower, "ftp://"):
		return ModeFTP
	}
	return ModeFile
}
