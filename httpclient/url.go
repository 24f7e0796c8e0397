package httpclient

import (
	"net"
	"strconv"
	"strings"
)

const (
	maxURLLength  = 2048
	maxHostLength = 253
	defaultPort   = 80
)

// URL is a resolved http URL. It is never modified after ParseURL returns it.
type URL struct {
	Scheme string
	Host   string
	Port   int
	Path   string
	Query  string
}

// ParseURL splits raw into scheme, host, port, path and query.
// Only the http scheme is accepted.
func ParseURL(raw string) (*URL, error) {
	if raw == "" || len(raw) > maxURLLength {
		return nil, newError(MalformedURL, nil, "URL must be between 1 and %d characters", maxURLLength)
	}
	if strings.ContainsFunc(raw, isSpaceOrControl) {
		return nil, newError(MalformedURL, nil, "URL contains whitespace or a control character")
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || scheme == "" {
		return nil, newError(MalformedURL, nil, "no scheme in %q", raw)
	}
	if !strings.EqualFold(scheme, "http") {
		return nil, &Error{
			Kind:   UnsupportedProtocol,
			Msg:    scheme,
			Scheme: scheme,
		}
	}

	// Fragments are never sent.
	rest, _, _ = strings.Cut(rest, "#")

	authority := rest
	remainder := ""
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		authority, remainder = rest[:i], rest[i:]
	}

	path, query, _ := strings.Cut(remainder, "?")
	if path == "" {
		path = "/"
	}

	host, portStr, hasPort := strings.Cut(authority, ":")
	if host == "" {
		return nil, newError(MalformedURL, nil, "no host in %q", raw)
	}
	if len(host) > maxHostLength || !validHost(host) {
		return nil, newError(MalformedURL, nil, "invalid host %q", host)
	}

	port := defaultPort
	if hasPort {
		p, err := strconv.Atoi(portStr)
		if err != nil || !allDigits(portStr) || p < 1 || p > 65535 {
			return nil, newError(MalformedURL, err, "invalid port %q", portStr)
		}
		port = p
	}

	return &URL{
		Scheme: "http",
		Host:   host,
		Port:   port,
		Path:   path,
		Query:  query,
	}, nil
}

// Addr returns the host:port pair to dial.
func (u *URL) Addr() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

// HostHeader returns the value for the Host request header.
func (u *URL) HostHeader() string {
	if u.Port == defaultPort {
		return u.Host
	}
	return u.Addr()
}

// RequestURI returns the path and query as sent on the request line.
func (u *URL) RequestURI() string {
	if u.Query == "" {
		return u.Path
	}
	return u.Path + "?" + u.Query
}

// WithQuery returns a copy of u whose query has form appended with '&'.
func (u *URL) WithQuery(form string) *URL {
	c := *u
	switch {
	case form == "":
	case c.Query == "":
		c.Query = form
	default:
		c.Query += "&" + form
	}
	return &c
}

func (u *URL) String() string {
	return u.Scheme + "://" + u.HostHeader() + u.RequestURI()
}

func isSpaceOrControl(r rune) bool {
	return r <= ' ' || r == 0x7f
}

func validHost(host string) bool {
	for i := 0; i < len(host); i++ {
		c := host[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case c == '.' || c == '-':
		default:
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
