// Package httpclient is a small HTTP/1.x client that talks to the server over
// a raw TCP socket. Each request opens its own connection, sends the request,
// shuts down its write side and reads until the server closes.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Buffer size for reading network data
const defaultBufferSize = 4096

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 10 * time.Second
)

// Options configures a Client. The zero value is usable.
type Options struct {
	ConnectTimeout time.Duration // 0 means DefaultConnectTimeout
	ReadTimeout    time.Duration // 0 means DefaultReadTimeout

	// SettleDelay is slept between writing the request and shutting down the
	// write side, for servers that drop requests when both arrive together.
	SettleDelay time.Duration

	// MaxResponseBytes caps the reply size; 0 means unlimited.
	MaxResponseBytes int64

	// UnixSocket, when set, is dialed instead of the URL's host and port.
	UnixSocket string

	// Version is the HTTP version on the request line ("1.0" or "1.1").
	Version string

	// Header is sent with every request after Host. A Host entry here
	// replaces the one taken from the URL.
	Header Fields

	// RequestDump receives a copy of every encoded request.
	RequestDump io.Writer

	Logger *zerolog.Logger
}

// Client issues requests. It keeps no per-request state, so one Client may
// be used from several goroutines.
type Client struct {
	opts Options
	log  zerolog.Logger
}

// New returns a Client configured by opts.
func New(opts Options) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	c := &Client{opts: opts, log: zerolog.Nop()}
	if opts.Logger != nil {
		c.log = *opts.Logger
	}
	return c
}

// Get sends a GET request; args are appended to the URL's query.
func (c *Client) Get(ctx context.Context, rawURL string, args Fields) (*Response, error) {
	return c.Do(ctx, MethodGet, rawURL, args)
}

// Post sends a POST request; args become the form-encoded body.
func (c *Client) Post(ctx context.Context, rawURL string, args Fields) (*Response, error) {
	return c.Do(ctx, MethodPost, rawURL, args)
}

// Do resolves rawURL, sends one request and returns the parsed response.
// URL and argument errors are reported before any connection is opened.
func (c *Client) Do(ctx context.Context, method, rawURL string, args Fields) (*Response, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(method, u, args)
	if err != nil {
		return nil, err
	}
	data, err := req.Encode()
	if err != nil {
		if errors.Is(err, ErrMissingHost) {
			return nil, newError(EncodingFailure, err, "")
		}
		return nil, err
	}
	if c.opts.RequestDump != nil {
		if _, err := c.opts.RequestDump.Write(data); err != nil {
			c.log.Warn().Err(err).Msg("failed to dump request")
		}
	}

	conn, err := c.dial(ctx, u)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.log.Debug().Err(err).Msg("close failed")
		}
	}()

	// Unblock reads and writes when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	startTime := time.Now()
	if err := c.send(ctx, conn, data); err != nil {
		return nil, err
	}
	raw, err := c.receive(ctx, conn)
	if err != nil {
		return nil, err
	}
	c.log.Debug().
		Int("bytes", len(raw)).
		Dur("elapsed", time.Since(startTime)).
		Msg("reply received")

	return decodeReply(raw)
}

func (c *Client) newRequest(method string, u *URL, args Fields) (*Request, error) {
	method = strings.ToUpper(method)
	form, err := EncodeForm(args)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method:  method,
		Version: c.opts.Version,
	}
	if !c.opts.Header.Has("Host") {
		req.Header.Add("Host", u.HostHeader())
	}
	req.Header = append(req.Header, c.opts.Header...)
	if !req.Header.Has("Connection") {
		req.Header.Add("Connection", "close")
	}

	switch method {
	case MethodGet:
		req.Path = u.WithQuery(form).RequestURI()
	case MethodPost:
		req.Path = u.RequestURI()
		req.Payload = []byte(form)
		if form == "" && !req.Header.Has("Content-Length") {
			req.Header.Add("Content-Length", "0")
		}
	default:
		return nil, newError(EncodingFailure, nil, "unsupported method %q", method)
	}
	return req, nil
}

func (c *Client) dial(ctx context.Context, u *URL) (net.Conn, error) {
	network, addr := "tcp", u.Addr()
	if c.opts.UnixSocket != "" {
		network, addr = "unix", c.opts.UnixSocket
	}
	c.log.Debug().Str("network", network).Str("addr", addr).Msg("connecting")

	d := net.Dialer{Timeout: c.opts.ConnectTimeout}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, classify(ctx, err, "connect to %s", addr)
	}
	return conn, nil
}

type closeWriter interface {
	CloseWrite() error
}

func (c *Client) send(ctx context.Context, conn net.Conn, data []byte) error {
	if _, err := conn.Write(data); err != nil {
		return classify(ctx, err, "send request")
	}
	c.log.Debug().Int("bytes", len(data)).Msg("request sent")

	if c.opts.SettleDelay > 0 {
		select {
		case <-time.After(c.opts.SettleDelay):
		case <-ctx.Done():
			return classify(ctx, ctx.Err(), "send request")
		}
	}

	cw, ok := conn.(closeWriter)
	if !ok {
		return nil
	}
	if err := cw.CloseWrite(); err != nil {
		return classify(ctx, err, "shut down write side")
	}
	return nil
}

// receive reads until the peer closes its side of the connection.
func (c *Client) receive(ctx context.Context, conn net.Conn) ([]byte, error) {
	// Cancellation moves the deadline into the past; resetting it would lose that.
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, err, "read reply")
	}
	deadline := time.Now().Add(c.opts.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, newError(ConnectionFailure, err, "set read deadline")
	}

	buffer := &bytes.Buffer{}
	chunk := make([]byte, defaultBufferSize)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buffer.Write(chunk[:n])
			if limit := c.opts.MaxResponseBytes; limit > 0 && int64(buffer.Len()) > limit {
				return nil, newError(BadResponse, ErrResponseTooLarge, "more than %d bytes", limit)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buffer.Bytes(), nil
			}
			return nil, classify(ctx, err, "read reply")
		}
	}
}

// decodeReply checks the raw reply before handing it to the parser.
func decodeReply(raw []byte) (*Response, error) {
	if len(raw) == 0 {
		return nil, &Error{Kind: EmptyReply}
	}
	if !bytes.HasPrefix(raw, []byte("HTTP")) {
		return nil, badResponse(ErrNotHTTP)
	}
	return ParseResponse(string(raw))
}

// classify wraps a network error as a Timeout or ConnectionFailure.
func classify(ctx context.Context, err error, format string, args ...any) *Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return newError(ConnectionFailure, ctx.Err(), format, args...)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return newError(Timeout, err, format, args...)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(Timeout, err, format, args...)
	}
	return newError(ConnectionFailure, err, format, args...)
}
