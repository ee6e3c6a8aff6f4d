package input

import (
	"io"
	"io/ioutil"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/nojima/fetchie-go/source"
	"github.com/pkg/errors"
)

var (
	reMode            = regexp.MustCompile(`^(?i:https?|ftp|file)$`)
	reHeaderFieldName = regexp.MustCompile("^[-!#$%&'*+.^_|~a-zA-Z0-9]+$")
	reScheme          = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+-.]*://`)
)

type itemType int

const (
	unknownItem itemType = iota
	httpHeaderItem
	urlParameterItem
	dataFieldItem
)

type UsageError string

func (e *UsageError) Error() string {
	return string(*e)
}

func newUsageError(message string) error {
	u := UsageError(message)
	return errors.WithStack(&u)
}

type state struct {
	stdinConsumed bool
}

func ParseArgs(args []string, stdin io.Reader, options *Options) (*Input, error) {
	var argMode string
	var argURL string
	var argItems []string
	switch len(args) {
	case 0:
		return nil, newUsageError("LOCATION is required")
	case 1:
		argURL = args[0]
	default:
		if reMode.MatchString(args[0]) {
			argMode = args[0]
			argURL = args[1]
			argItems = args[2:]
		} else {
			argURL = args[0]
			argItems = args[1:]
		}
	}

	in := Input{}
	state := state{}

	if argMode != "" {
		mode, err := source.ParseMode(argMode)
		if err != nil {
			return nil, newUsageError(err.Error())
		}
		in.Mode = mode
	} else {
		in.Mode = guessMode(argURL)
	}

	u, err := parseLocation(argURL, in.Mode)
	if err != nil {
		return nil, err
	}
	in.URL = u

	for _, arg := range argItems {
		if err := parseItem(arg, stdin, &state, &in); err != nil {
			return nil, err
		}
	}
	if options.ReadStdin && !state.stdinConsumed {
		if in.Body.BodyType != EmptyBody {
			return nil, errors.New("request body (from stdin) and request item (key=value) cannot be mixed")
		}
		in.Body.BodyType = RawBody
		in.Body.Raw, err = ioutil.ReadAll(stdin)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read stdin")
		}
		state.stdinConsumed = true
	}
	if in.Mode != source.ModeHTTP && (in.Body.BodyType != EmptyBody || len(in.Header.Fields) > 0) {
		return nil, newUsageError("request items are only supported in http mode")
	}

	return &in, nil
}

// guessMode infers the mode from the location. Locations without a scheme
// are files when they look like paths, and HTTP otherwise.
func guessMode(s string) source.Mode {
	if reScheme.MatchString(s) {
		return source.ModeOf(s)
	}
	if strings.HasPrefix(s, ".") {
		return source.ModeFile
	}
	if strings.HasPrefix(s, "/") {
		if _, err := os.Stat(s); err == nil {
			return source.ModeFile
		}
	}
	return source.ModeHTTP
}

func parseLocation(s string, mode source.Mode) (*url.URL, error) {
	switch mode {
	case source.ModeFile:
		return &url.URL{Scheme: "file", Path: strings.TrimPrefix(s, "file://")}, nil
	case source.ModeFTP:
		if !reScheme.MatchString(s) {
			s = "ftp://" + s
		}
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return nil, newUsageError("Invalid FTP location: " + s)
		}
		return u, nil
	}
	return parseURL(s)
}

func parseURL(s string) (*url.URL, error) {
	defaultScheme := "http"
	defaultHost := "localhost"

	// ex) :8080/hello or /hello
	if strings.HasPrefix(s, ":") || strings.HasPrefix(s, "/") {
		s = defaultHost + s
	}

	// ex) example.com/hello
	if !reScheme.MatchString(s) {
		s = defaultScheme + "://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, newUsageError("Invalid URL: " + s)
	}
	u.Host = strings.TrimSuffix(u.Host, ":")
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

func parseItem(s string, stdin io.Reader, state *state, in *Input) error {
	itemType, name, value := splitItem(s)
	switch itemType {
	case dataFieldItem:
		in.Body.BodyType = FormBody
		field, err := parseField(name, value, stdin, state)
		if err != nil {
			return err
		}
		in.Body.Fields = append(in.Body.Fields, field)
	case httpHeaderItem:
		if !isValidHeaderFieldName(name) {
			return errors.Errorf("invalid header field name: %s", name)
		}
		field, err := parseField(name, value, stdin, state)
		if err != nil {
			return err
		}
		in.Header.Fields = append(in.Header.Fields, field)
	case urlParameterItem:
		field, err := parseField(name, value, stdin, state)
		if err != nil {
			return err
		}
		in.Parameters = append(in.Parameters, field)
	default:
		return errors.Errorf("unknown request item: %s", s)
	}
	return nil
}

func splitItem(s string) (itemType, string, string) {
	for i, c := range s {
		switch c {
		case ':':
			return httpHeaderItem, s[:i], s[i+1:]
		case '=':
			if i+1 < len(s) && s[i+1] == '=' {
				return urlParameterItem, s[:i], s[i+2:]
			} else {
				return dataFieldItem, s[:i], s[i+1:]
			}
		}
	}
	return unknownItem, "", ""
}

func isValidHeaderFieldName(s string) bool {
	return reHeaderFieldName.MatchString(s)
}

// parseField reads "@-" from stdin. Other "@" values name a file that is
// uploaded as a multipart part.
func parseField(name, value string, stdin io.Reader, state *state) (Field, error) {
	if strings.HasPrefix(value, "@") {
		if value[1:] == "-" {
			b, err := ioutil.ReadAll(stdin)
			if err != nil {
				return Field{}, errors.Wrapf(err, "reading stdin for '%s'", name)
			}
			state.stdinConsumed = true
			return Field{Name: name, Value: string(b), IsFile: false}, nil
		} else {
			return Field{Name: name, Value: value[1:], IsFile: true}, nil
		}
	} else {
		return Field{Name: name, Value: value, IsFile: false}, nil
	}
}
