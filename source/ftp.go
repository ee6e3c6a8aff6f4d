package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
	"github.com/nojima/fetchie-go/exchange"
	"github.com/pkg/errors"
)

// FTPConn is the subset of an FTP session used by the ftp backend.
type FTPConn interface {
	Login(user, password string) error
	NameList(path string) ([]string, error)
	GetTime(path string) (time.Time, error)
	Retr(path string) (io.ReadCloser, error)
	Delete(path string) error
	Quit() error
}

// DialFunc opens an FTP session to addr ("host:port").
type DialFunc func(ctx context.Context, addr string, timeout time.Duration) (FTPConn, error)

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	return c.ServerConn.Retr(path)
}

// dialFTP dials with a short exponential backoff on transient errors.
func dialFTP(ctx context.Context, addr string, timeout time.Duration) (FTPConn, error) {
	var conn *ftp.ServerConn
	op := func() error {
		c, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(policy, 2), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return serverConn{conn}, nil
}

// ftpAddr turns "ftp://host", "host" or "host:port" into "host:port".
func ftpAddr(base string) string {
	host := strings.TrimPrefix(base, "ftp://")
	if i := strings.Index(host, "/"); i != -1 {
		host = host[:i]
	}
	if i := strings.LastIndex(host, "@"); i != -1 {
		host = host[i+1:]
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	return host
}

type ftpBackend struct {
	o    *Orchestrator
	dial DialFunc
	conn FTPConn
}

// connect dials and logs in once. The session is reused until close.
func (b *ftpBackend) connect(ctx context.Context, params FTPParams) (FTPConn, error) {
	if b.conn != nil {
		return b.conn, nil
	}
	timeout := b.o.config.FTPTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	addr := ftpAddr(b.o.config.Base)
	b.o.logger.Debug("open ftp", "addr", addr)
	conn, err := b.dial(ctx, addr, timeout)
	if err != nil {
		return nil, exchange.WrapErrorMessage(exchange.ConnectFailure, err, "Could not connect to "+addr)
	}
	if err := conn.Login(params.User, params.Password); err != nil {
		if quitErr := conn.Quit(); quitErr != nil {
			b.o.logger.Debug("quit after failed login", "err", quitErr)
		}
		return nil, exchange.WrapErrorMessage(exchange.AuthFailure, err, "Could not authenticate")
	}
	b.conn = conn
	return conn, nil
}

func (b *ftpBackend) fetch(ctx context.Context, req *Request) ([]byte, error) {
	conn, err := b.connect(ctx, req.FTP)
	if err != nil {
		return nil, err
	}
	if req.Options != nil && req.Options.IsSet(exchange.PassiveFTP) && !req.Options.Bool(exchange.PassiveFTP) {
		b.o.logger.Warn("active FTP mode is not supported, using passive mode")
	}

	switch req.Sub {
	case LastByName:
		return b.lastByName(conn, req.FTP)
	case LastByDate:
		return b.lastByDate(conn, req.FTP)
	case LastByDDMMYY:
		return b.lastByDDMMYY(conn, req.FTP)
	}
	b.o.logger.Debug("ftp retrieve", "file", req.Sub)
	return retrieve(conn, req.Sub)
}

func (b *ftpBackend) list(conn FTPConn) ([]string, error) {
	files, err := conn.NameList(".")
	if err != nil {
		return nil, exchange.WrapErrorMessage(exchange.TransportFailure, err, "Could not list directory")
	}
	names := make([]string, 0, len(files))
	for _, name := range files {
		names = append(names, strings.TrimPrefix(name, "./"))
	}
	if len(names) == 0 {
		b.o.logger.Debug("ftp listing is empty")
		return nil, exchange.NewError(exchange.FileNotFound, "Directory listing is empty")
	}
	return names, nil
}

func (b *ftpBackend) lastByName(conn FTPConn, params FTPParams) ([]byte, error) {
	files, err := b.list(conn)
	if err != nil {
		return nil, err
	}
	names := filterNames(files, params.Prefix, params.Ext)
	latest, ok := pickLatest(byName(names))
	if !ok {
		return nil, noMatch(params)
	}
	return b.retrieveAndClean(conn, latest.Name, names, params.Cleanup)
}

func (b *ftpBackend) lastByDate(conn FTPConn, params FTPParams) ([]byte, error) {
	files, err := b.list(conn)
	if err != nil {
		return nil, err
	}
	names := filterNames(files, params.Prefix, params.Ext)
	candidates := make([]Candidate, 0, len(names))
	for _, name := range names {
		t, err := conn.GetTime(name)
		if err != nil {
			b.o.logger.Debug("no modification time", "file", name, "err", err)
			continue
		}
		candidates = append(candidates, Candidate{Name: name, SortKey: t.UTC().Format("20060102150405")})
	}
	latest, ok := pickLatest(candidates)
	if !ok {
		return nil, noMatch(params)
	}
	return b.retrieveAndClean(conn, latest.Name, names, params.Cleanup)
}

func (b *ftpBackend) retrieveAndClean(conn FTPConn, selected string, names []string, cleanup bool) ([]byte, error) {
	b.o.logger.Debug("ftp selected", "file", selected)
	data, err := retrieve(conn, selected)
	if err != nil {
		return nil, err
	}
	if cleanup {
		for _, name := range others(names, selected) {
			if err := conn.Delete(name); err != nil {
				b.o.logger.Warn("ftp delete failed", "file", name, "err", err)
			}
		}
	}
	return data, nil
}

// lastByDDMMYY downloads the latest file of every group and concatenates
// them. Every chunk after the first loses its first line.
func (b *ftpBackend) lastByDDMMYY(conn FTPConn, params FTPParams) ([]byte, error) {
	files, err := b.list(conn)
	if err != nil {
		return nil, err
	}
	groups := params.Groups
	if len(groups) == 0 {
		groups = []Group{{}}
	}

	var merged bytes.Buffer
	first := true
	for _, g := range groups {
		latest, ok := pickLatest(byDDMMYY(files, g))
		if !ok {
			b.o.logger.Warn("no file in group", "suffix", g.Suffix, "pattern", patternString(g))
			continue
		}
		b.o.logger.Debug("ftp selected", "file", latest.Name, "key", latest.SortKey)
		data, err := retrieve(conn, latest.Name)
		if err != nil {
			return nil, err
		}
		if !first {
			if i := bytes.IndexByte(data, '\n'); i != -1 {
				data = data[i:]
			}
		}
		merged.Write(data)
		first = false
	}
	if first {
		return nil, exchange.NewError(exchange.FileNotFound, "No file matches any group")
	}
	return merged.Bytes(), nil
}

func patternString(g Group) string {
	if g.Pattern == nil {
		return ""
	}
	return g.Pattern.String()
}

func noMatch(params FTPParams) error {
	return exchange.NewError(exchange.FileNotFound, fmt.Sprintf("No file matches prefix '%s' and extension '%s'", params.Prefix, params.Ext))
}

func retrieve(conn FTPConn, name string) ([]byte, error) {
	r, err := conn.Retr(name)
	if err != nil {
		return nil, exchange.WrapErrorMessage(exchange.FileNotFound, err, "Could not retrieve "+name)
	}
	defer r.Close()
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, exchange.WrapErrorMessage(exchange.TransportFailure, err, "Could not retrieve "+name)
	}
	return data, nil
}

func (b *ftpBackend) close() error {
	if b.conn == nil {
		return nil
	}
	b.o.logger.Debug("close ftp")
	err := b.conn.Quit()
	b.conn = nil
	return errors.Wrap(err, "closing FTP session")
}
