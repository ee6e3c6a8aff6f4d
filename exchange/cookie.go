package exchange

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"
)

type savedCookie struct {
	URL      string     `json:"url"`
	Name     string     `json:"name"`
	Value    string     `json:"value"`
	Path     string     `json:"path,omitempty"`
	Domain   string     `json:"domain,omitempty"`
	Expires  *time.Time `json:"expires,omitempty"`
	Secure   bool       `json:"secure,omitempty"`
	HttpOnly bool       `json:"httpOnly,omitempty"`
}

func (c savedCookie) expired(now time.Time) bool {
	return c.Expires != nil && !c.Expires.After(now)
}

func (c savedCookie) cookie() *http.Cookie {
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
	if c.Expires != nil {
		cookie.Expires = *c.Expires
	}
	return cookie
}

// PersistentJar is a cookie jar backed by a file. Cookies are loaded when
// the jar is opened and written back by Save.
type PersistentJar struct {
	*cookiejar.Jar
	path    string
	entries map[string]savedCookie
}

// OpenJar opens the jar stored at path. A missing file yields an empty jar.
func OpenJar(path string) (*PersistentJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "creating cookie jar")
	}
	j := &PersistentJar{Jar: jar, entries: make(map[string]savedCookie)}
	if err := j.Rebind(path); err != nil {
		return nil, err
	}
	return j, nil
}

// Rebind points the jar at another file, merging the cookies stored there.
func (j *PersistentJar) Rebind(path string) error {
	j.path = path
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading cookie file '%s'", path)
	}
	var saved []savedCookie
	if len(data) > 0 {
		if err := json.Unmarshal(data, &saved); err != nil {
			return errors.Wrapf(err, "parsing cookie file '%s'", path)
		}
	}
	now := time.Now()
	for _, c := range saved {
		if c.expired(now) {
			continue
		}
		u, err := url.Parse(c.URL)
		if err != nil {
			continue
		}
		j.SetCookies(u, []*http.Cookie{c.cookie()})
	}
	return nil
}

func (j *PersistentJar) Path() string {
	return j.path
}

// SetCookies stores the cookies in the jar and remembers their attributes
// so that Save can write them back.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.Jar.SetCookies(u, cookies)
	now := time.Now()
	for _, c := range cookies {
		key := cookieKey(u, c)
		entry := savedCookie{
			URL:      u.String(),
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		switch {
		case c.MaxAge < 0:
			delete(j.entries, key)
			continue
		case c.MaxAge > 0:
			expires := now.Add(time.Duration(c.MaxAge) * time.Second)
			entry.Expires = &expires
		case !c.Expires.IsZero():
			expires := c.Expires.UTC()
			entry.Expires = &expires
		}
		if entry.expired(now) {
			delete(j.entries, key)
			continue
		}
		j.entries[key] = entry
	}
}

// cookieKey identifies a cookie the way the jar does: by domain, path and name.
func cookieKey(u *url.URL, c *http.Cookie) string {
	domain := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
	if domain == "" {
		domain = strings.ToLower(u.Hostname())
	}
	p := c.Path
	if p == "" || p[0] != '/' {
		p = defaultCookiePath(u.Path)
	}
	return domain + ";" + p + ";" + c.Name
}

func defaultCookiePath(p string) string {
	i := strings.LastIndex(p, "/")
	if p == "" || p[0] != '/' || i == 0 {
		return "/"
	}
	return p[:i]
}

// Save writes every cookie the jar holds that has not expired.
func (j *PersistentJar) Save() error {
	keys := make([]string, 0, len(j.entries))
	for key := range j.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	now := time.Now()
	saved := []savedCookie{}
	for _, key := range keys {
		if c := j.entries[key]; !c.expired(now) {
			saved = append(saved, c)
		}
	}
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling cookies")
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return errors.Wrapf(err, "creating cookie directory for '%s'", j.path)
	}
	if err := ioutil.WriteFile(j.path, data, 0600); err != nil {
		return errors.Wrapf(err, "writing cookie file '%s'", j.path)
	}
	return nil
}
