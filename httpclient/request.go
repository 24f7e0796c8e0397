package httpclient

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/http/httpguts"
)

const (
	MethodGet  = "GET"
	MethodPost = "POST"

	formContentType = "application/x-www-form-urlencoded"
)

// UserAgent is sent when the caller does not set a User-Agent header.
var UserAgent = "htget/1.0"

// Field is a name/value pair used for headers and form arguments.
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered list of fields. Order is kept on the wire.
type Fields []Field

// Add appends a field, keeping the name as given.
func (f *Fields) Add(name, value string) {
	*f = append(*f, Field{Name: name, Value: value})
}

// Get returns the value of the first field whose name matches case-insensitively.
func (f Fields) Get(name string) (string, bool) {
	for _, field := range f {
		if strings.EqualFold(field.Name, name) {
			return field.Value, true
		}
	}
	return "", false
}

// Has reports whether a field named name is present.
func (f Fields) Has(name string) bool {
	_, ok := f.Get(name)
	return ok
}

// EncodeForm encodes args as application/x-www-form-urlencoded, in order.
func EncodeForm(args Fields) (string, error) {
	var b strings.Builder
	for i, arg := range args {
		if arg.Name == "" {
			return "", newError(EncodingFailure, nil, "argument %d has an empty name", i)
		}
		if !utf8.ValidString(arg.Name) || !utf8.ValidString(arg.Value) {
			return "", newError(EncodingFailure, nil, "argument %q is not valid UTF-8", arg.Name)
		}
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(arg.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(arg.Value))
	}
	return b.String(), nil
}

// Request is a single HTTP/1.x request ready to be encoded.
type Request struct {
	Method  string
	Version string // "1.0" or "1.1"; empty means "1.1"
	Path    string // path and query
	Header  Fields
	Payload []byte
}

// Encode returns the exact bytes to send for r.
// Default Content-Length, Content-Type, User-Agent and Accept headers are
// appended after the caller's headers when missing.
func (r *Request) Encode() ([]byte, error) {
	method := strings.ToUpper(r.Method)
	if method != MethodGet && method != MethodPost {
		return nil, newError(EncodingFailure, nil, "unsupported method %q", r.Method)
	}
	version := r.Version
	if version == "" {
		version = "1.1"
	}
	if version != "1.0" && version != "1.1" {
		return nil, newError(EncodingFailure, nil, "unsupported HTTP version %q", version)
	}
	if r.Path == "" || strings.ContainsAny(r.Path, " \r\n") {
		return nil, newError(EncodingFailure, nil, "invalid request path %q", r.Path)
	}
	if !r.Header.Has("Host") {
		return nil, ErrMissingHost
	}
	for _, h := range r.Header {
		if !httpguts.ValidHeaderFieldName(h.Name) {
			return nil, newError(EncodingFailure, nil, "invalid header name %q", h.Name)
		}
		if !httpguts.ValidHeaderFieldValue(h.Value) {
			return nil, newError(EncodingFailure, nil, "invalid value for header %q", h.Name)
		}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/%s\r\n", method, r.Path, version)
	for _, h := range r.Header {
		writeHeader(&buf, h.Name, h.Value)
	}
	if len(r.Payload) > 0 {
		if !r.Header.Has("Content-Length") {
			writeHeader(&buf, "Content-Length", strconv.Itoa(len(r.Payload)))
		}
		if !r.Header.Has("Content-Type") {
			writeHeader(&buf, "Content-Type", formContentType)
		}
	}
	if !r.Header.Has("User-Agent") {
		writeHeader(&buf, "User-Agent", UserAgent)
	}
	if !r.Header.Has("Accept") {
		writeHeader(&buf, "Accept", "*/*")
	}
	buf.WriteString("\r\n")
	buf.Write(r.Payload)
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}
