package input

import (
	"net/url"
	"strings"

	"github.com/nojima/fetchie-go/exchange"
	"github.com/nojima/fetchie-go/source"
	"github.com/pkg/errors"
)

// Target returns the orchestrator base and the sub path of the input.
// HTTP locations are used whole, with the URL parameters merged into the
// query string. FTP locations split into the host and the remote path.
func (in *Input) Target() (base string, sub string) {
	switch in.Mode {
	case source.ModeFTP:
		host := in.URL.Host
		return host, strings.TrimPrefix(in.URL.Path, "/")
	case source.ModeFile:
		return "", in.URL.Path
	}
	u := *in.URL
	if len(in.Parameters) > 0 {
		query := u.Query()
		for _, p := range in.Parameters {
			query.Add(p.Name, p.Value)
		}
		u.RawQuery = query.Encode()
	}
	return u.String(), ""
}

// Credentials returns the FTP user and password of the location. Anonymous
// login is used when the location has none.
func (in *Input) Credentials() (user string, password string, ok bool) {
	if in.URL.User == nil {
		return "anonymous", "anonymous", false
	}
	password, hasPassword := in.URL.User.Password()
	return in.URL.User.Username(), password, hasPassword
}

// Request builds the orchestrator request. Header fields become header
// options on top of options.
func (in *Input) Request(options *exchange.Options) (*source.Request, error) {
	_, sub := in.Target()
	if options == nil {
		options = exchange.NewOptions()
	} else {
		options = options.Clone()
	}
	for _, f := range in.Header.Fields {
		if err := options.Set(exchange.HeaderPrefix+exchange.Key(f.Name), f.Value); err != nil {
			return nil, errors.Wrapf(err, "header '%s'", f.Name)
		}
	}

	req := &source.Request{Sub: sub, Options: options}
	switch in.Body.BodyType {
	case FormBody:
		req.Post = true
		req.Params = url.Values{}
		for _, f := range in.Body.Fields {
			value := f.Value
			if f.IsFile {
				value = "@" + value
			}
			req.Params.Add(f.Name, value)
		}
	case RawBody:
		req.Raw = in.Body.Raw
	}
	return req, nil
}
