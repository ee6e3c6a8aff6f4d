package source

import (
	"path"
	"regexp"
	"strings"
)

// Selection policies understood in place of a literal FTP path.
const (
	LastByName   = "[LAST_BY_NAME]"
	LastByDate   = "[LAST_BY_DATE]"
	LastByDDMMYY = "[LAST_BY_DDMMYY]"
)

// Candidate is a remote file with the key it is ranked by.
type Candidate struct {
	Name    string
	SortKey string
}

// Group is one file family for LastByDDMMYY. The date token is the six
// characters right before Suffix, or before the extension when Suffix is
// empty and the name does not end in digits.
type Group struct {
	Suffix  string
	Pattern *regexp.Regexp
}

// pickLatest returns the candidate with the greatest key. On ties the first
// one wins.
func pickLatest(candidates []Candidate) (Candidate, bool) {
	var best Candidate
	found := false
	for _, c := range candidates {
		if !found || c.SortKey > best.SortKey {
			best = c
			found = true
		}
	}
	return best, found
}

func filterNames(files []string, prefix, ext string) []string {
	var names []string
	for _, name := range files {
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		if ext != "" && extension(name) != ext {
			continue
		}
		names = append(names, name)
	}
	return names
}

// extension returns the extension without the dot.
func extension(name string) string {
	return strings.TrimPrefix(path.Ext(name), ".")
}

func byName(names []string) []Candidate {
	candidates := make([]Candidate, 0, len(names))
	for _, name := range names {
		candidates = append(candidates, Candidate{Name: name, SortKey: strings.ToLower(name)})
	}
	return candidates
}

func byDDMMYY(files []string, g Group) []Candidate {
	var candidates []Candidate
	for _, name := range files {
		if g.Pattern != nil && !g.Pattern.MatchString(name) {
			continue
		}
		token, ok := ddmmyyToken(name, g.Suffix)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{Name: name, SortKey: token[4:6] + token[2:4] + token[0:2]})
	}
	return candidates
}

func ddmmyyToken(name, suffix string) (string, bool) {
	end := len(name)
	if suffix != "" {
		end = strings.LastIndex(name, suffix)
		if end == -1 {
			return "", false
		}
	} else if len(name) < 6 || !isDigits(name[len(name)-6:]) {
		end = len(name) - len(path.Ext(name))
	}
	if end < 6 {
		return "", false
	}
	token := name[end-6 : end]
	if !isDigits(token) {
		return "", false
	}
	return token, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func others(names []string, selected string) []string {
	var rest []string
	for _, name := range names {
		if name != selected {
			rest = append(rest, name)
		}
	}
	return rest
}
