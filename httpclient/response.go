package httpclient

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Response is a fully read and parsed HTTP response.
type Response struct {
	Proto   string
	Code    int
	Reason  string
	Headers map[string]string
	Body    string
}

// lineEnding picks the line terminator used by text. Peers are assumed not to
// mix terminators within one message.
func lineEnding(text string) (string, error) {
	for _, le := range []string{"\r\n", "\n", "\r"} {
		if strings.Contains(text, le) {
			return le, nil
		}
	}
	return "", ErrNoLineEnding
}

// ParseResponse parses a complete response text into code, headers and body.
func ParseResponse(text string) (*Response, error) {
	le, err := lineEnding(text)
	if err != nil {
		return nil, badResponse(err)
	}
	statusEnd := strings.Index(text, le)
	proto, code, reason, err := parseStatusLine(text[:statusEnd])
	if err != nil {
		return nil, badResponse(err)
	}
	headers, bodyStart, err := parseHeaderBlock(text, statusEnd, le)
	if err != nil {
		return nil, badResponse(err)
	}
	return &Response{
		Proto:   proto,
		Code:    code,
		Reason:  reason,
		Headers: headers,
		Body:    text[bodyStart:],
	}, nil
}

// ParseStatusCode returns the status code of a response text.
func ParseStatusCode(text string) (int, error) {
	le, err := lineEnding(text)
	if err != nil {
		return 0, badResponse(err)
	}
	_, code, _, err := parseStatusLine(text[:strings.Index(text, le)])
	if err != nil {
		return 0, badResponse(err)
	}
	return code, nil
}

// ParseHeaders returns the header map of a response text.
func ParseHeaders(text string) (map[string]string, error) {
	le, err := lineEnding(text)
	if err != nil {
		return nil, badResponse(err)
	}
	headers, _, err := parseHeaderBlock(text, strings.Index(text, le), le)
	if err != nil {
		return nil, badResponse(err)
	}
	return headers, nil
}

// ParseBody returns everything after the blank line that ends the headers.
func ParseBody(text string) (string, error) {
	le, err := lineEnding(text)
	if err != nil {
		return "", badResponse(err)
	}
	statusEnd := strings.Index(text, le)
	sep := strings.Index(text[statusEnd:], le+le)
	if sep < 0 {
		return "", badResponse(fmt.Errorf("%w: no blank line after headers", ErrMalformedHeaders))
	}
	return text[statusEnd+sep+2*len(le):], nil
}

func parseStatusLine(line string) (proto string, code int, reason string, err error) {
	parts := strings.Split(line, " ")
	if len(parts) < 2 {
		return "", 0, "", fmt.Errorf("%w: %q", ErrMalformedStatusLine, line)
	}
	if !allDigits(parts[1]) {
		return "", 0, "", fmt.Errorf("%w: non-numeric code %q", ErrMalformedStatusLine, parts[1])
	}
	code, err = strconv.Atoi(parts[1])
	if errors.Is(err, strconv.ErrRange) {
		return "", 0, "", fmt.Errorf("%w: %s", ErrStatusOutOfRange, parts[1])
	}
	if err != nil {
		return "", 0, "", fmt.Errorf("%w: %v", ErrMalformedStatusLine, err)
	}
	if code < 100 || code > 599 {
		return "", 0, "", fmt.Errorf("%w: %d", ErrStatusOutOfRange, code)
	}
	return parts[0], code, strings.Join(parts[2:], " "), nil
}

// parseHeaderBlock parses the header lines following the status line, which
// ends at statusEnd. It returns the offset where the body starts.
func parseHeaderBlock(text string, statusEnd int, le string) (map[string]string, int, error) {
	sep := strings.Index(text[statusEnd:], le+le)
	if sep < 0 {
		return nil, 0, fmt.Errorf("%w: no blank line after headers", ErrMalformedHeaders)
	}
	sep += statusEnd
	bodyStart := sep + 2*len(le)

	headers := make(map[string]string)
	if sep == statusEnd {
		return headers, bodyStart, nil
	}
	for _, line := range strings.Split(text[statusEnd+len(le):sep], le) {
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			name, value, ok = strings.Cut(line, ":")
			value = strings.TrimLeft(value, " \t")
		}
		if !ok || name == "" {
			return nil, 0, fmt.Errorf("%w: %q", ErrMalformedHeaders, line)
		}
		headers[name] = value
	}
	return headers, bodyStart, nil
}

func badResponse(err error) *Error {
	return &Error{Kind: BadResponse, Err: err}
}
