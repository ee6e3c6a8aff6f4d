package exchange

import (
	"crypto/tls"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Key names a transport setting.
type Key string

const (
	FollowRedirects    Key = "followRedirects"
	MaxRedirects       Key = "maxRedirects"
	AutoReferer        Key = "autoReferer"
	AutoFollowLocation Key = "autoFollowLocation"
	AutoSSL            Key = "autoSSL"
	TLSCAFile          Key = "tlsCAFile"
	ConnectTimeout     Key = "connectTimeout"
	ReadTimeout        Key = "readTimeout"
	UserAgent          Key = "userAgent"
	Referer            Key = "referer"
	PassiveFTP         Key = "passiveFTP"

	VerifyPeer    Key = "verifyPeer"
	VerifyHost    Key = "verifyHost"
	TLSVersion    Key = "tlsVersion"
	ForceTLS10    Key = "forceTLS10"
	IncludeHeader Key = "includeHeader"
	Proxy         Key = "proxy"
)

// HeaderPrefix marks keys that are sent verbatim as request headers,
// e.g. "header.Accept-Language".
const HeaderPrefix = "header."

type valueKind int

const (
	boolValue valueKind = iota
	intValue
	durationValue
	stringValue
	caFileValue
)

var knownKeys = map[Key]valueKind{
	FollowRedirects:    boolValue,
	MaxRedirects:       intValue,
	AutoReferer:        boolValue,
	AutoFollowLocation: boolValue,
	AutoSSL:            boolValue,
	TLSCAFile:          caFileValue,
	ConnectTimeout:     durationValue,
	ReadTimeout:        durationValue,
	UserAgent:          stringValue,
	Referer:            stringValue,
	PassiveFTP:         boolValue,
	VerifyPeer:         boolValue,
	VerifyHost:         boolValue,
	TLSVersion:         intValue,
	ForceTLS10:         boolValue,
	IncludeHeader:      boolValue,
	Proxy:              stringValue,
}

// Options is a mutable set of transport settings. The zero value is not
// usable; call NewOptions.
type Options struct {
	values map[Key]interface{}
}

func NewOptions() *Options {
	return &Options{values: make(map[Key]interface{})}
}

// Set validates and stores value under key. Unknown keys are rejected with
// an UnknownOption error.
func (o *Options) Set(key Key, value interface{}) error {
	kind, ok := kindOf(key)
	if !ok {
		return newError(UnknownOption, fmt.Sprintf("can't assign %s = %v", key, value))
	}
	v, err := normalize(kind, value)
	if err != nil {
		return newError(UnknownOption, fmt.Sprintf("can't assign %s = %v: %s", key, value, err))
	}
	o.values[key] = v
	return nil
}

func kindOf(key Key) (valueKind, bool) {
	if strings.HasPrefix(string(key), HeaderPrefix) && len(key) > len(HeaderPrefix) {
		return stringValue, true
	}
	kind, ok := knownKeys[key]
	return kind, ok
}

func normalize(kind valueKind, value interface{}) (interface{}, error) {
	switch kind {
	case boolValue:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case intValue:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case uint16:
			return int(v), nil
		}
	case durationValue:
		switch v := value.(type) {
		case time.Duration:
			return v, nil
		case int:
			return time.Duration(v) * time.Second, nil
		}
	case stringValue:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case caFileValue:
		switch v := value.(type) {
		case string:
			return v, nil
		case bool:
			if !v {
				return "", nil
			}
		}
	}
	return nil, errors.Errorf("unexpected value type %T", value)
}

func (o *Options) Get(key Key) (interface{}, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *Options) IsSet(key Key) bool {
	_, ok := o.values[key]
	return ok
}

func (o *Options) Unset(key Key) {
	delete(o.values, key)
}

func (o *Options) Bool(key Key) bool {
	b, _ := o.values[key].(bool)
	return b
}

// BoolOr returns the stored value, or def when key is not set.
func (o *Options) BoolOr(key Key, def bool) bool {
	if b, ok := o.values[key].(bool); ok {
		return b
	}
	return def
}

func (o *Options) Int(key Key) (int, bool) {
	i, ok := o.values[key].(int)
	return i, ok
}

func (o *Options) Duration(key Key) time.Duration {
	d, _ := o.values[key].(time.Duration)
	return d
}

func (o *Options) String(key Key) string {
	s, _ := o.values[key].(string)
	return s
}

// Headers returns the pass-through request headers keyed by header name.
func (o *Options) Headers() map[string]string {
	headers := make(map[string]string)
	for key, value := range o.values {
		if name := strings.TrimPrefix(string(key), HeaderPrefix); name != string(key) {
			headers[name] = value.(string)
		}
	}
	return headers
}

// Keys returns the set keys in lexical order.
func (o *Options) Keys() []Key {
	keys := make([]Key, 0, len(o.values))
	for key := range o.values {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clone returns an independent snapshot.
func (o *Options) Clone() *Options {
	c := NewOptions()
	for key, value := range o.values {
		c.values[key] = value
	}
	return c
}

// Override copies every value set in other over o.
func (o *Options) Override(other *Options) {
	if other == nil {
		return
	}
	for key, value := range other.values {
		o.values[key] = value
	}
}

// MinTLSVersion is the floor the recovery engine raises tlsVersion to.
const MinTLSVersion = tls.VersionTLS12
