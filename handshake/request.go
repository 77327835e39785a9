// Package handshake implements the HTTP/1.1 upgrade request parser
// (component C) and the RFC 6455 accept-key computation and response
// writers used to complete or reject a WebSocket handshake.
package handshake

import (
	"bufio"
	"encoding/base64"
	"io"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"

	"github.com/wsloop/wsloop/wserr"
)

// MaxRequestLength bounds the number of bytes read while parsing the
// upgrade request, per spec.md §4.C.
const MaxRequestLength = 2048

// Request is the parsed client upgrade request, per spec.md §3.
type Request struct {
	Path    string
	Query   url.Values
	Header  map[string]string // keys lowercased
	Cookies map[string]string
}

var requestLineRE = regexp.MustCompile(`^GET (\S+) HTTP/(\d+)\.(\d+)$`)

// ParseRequest reads one HTTP/1.1 upgrade request from r, bounded to
// MaxRequestLength bytes, and validates the headers required for a
// WebSocket handshake (spec.md §4.C step 6). On any failure it returns a
// *wserr.Error with Code CodeHandshake and no Request.
func ParseRequest(r io.Reader) (Request, error) {
	br := bufio.NewReader(io.LimitReader(r, MaxRequestLength))

	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		return Request{}, wserr.New(wserr.CodeHandshake, "empty request")
	}
	m := requestLineRE.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return Request{}, wserr.Newf(wserr.CodeHandshake, "malformed request line %q", line)
	}
	target := m[1]

	path, query, err := splitTarget(target)
	if err != nil {
		return Request{}, err
	}

	header, err := readHeaders(br)
	if err != nil {
		return Request{}, err
	}

	req := Request{
		Path:    path,
		Query:   query,
		Header:  header,
		Cookies: parseCookies(header["cookie"]),
	}

	if err := validate(req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// splitTarget splits a request target into path and query, rejecting a
// URI fragment per spec.md §4.C step 2.
func splitTarget(target string) (string, url.Values, error) {
	if strings.Contains(target, "#") {
		return "", nil, wserr.New(wserr.CodeHandshake, "request target must not contain a fragment")
	}
	path := target
	var rawQuery string
	if i := strings.IndexByte(target, '?'); i >= 0 {
		path = target[:i]
		rawQuery = target[i+1:]
	}
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, wserr.Newf(wserr.CodeHandshake, "malformed query: %v", err)
	}
	return path, query, nil
}

// readHeaders reads "Name: value" lines until a blank line, lowercasing
// names and last-wins on duplicates, per spec.md §4.C step 3.
func readHeaders(br *bufio.Reader) (map[string]string, error) {
	tp := textproto.NewReader(br)
	header := make(map[string]string)
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return nil, wserr.Newf(wserr.CodeHandshake, "reading headers: %v", err)
		}
		if line == "" {
			break
		}
		i := strings.IndexByte(line, ':')
		if i < 0 {
			return nil, wserr.Newf(wserr.CodeHandshake, "malformed header line %q", line)
		}
		name := strings.ToLower(strings.TrimSpace(line[:i]))
		value := strings.TrimSpace(line[i+1:])
		header[name] = value
	}
	return header, nil
}

// parseCookies splits a Cookie header value on ";" and URL-decodes each
// name/value pair, per spec.md §4.C step 5.
func parseCookies(cookieHeader string) map[string]string {
	cookies := make(map[string]string)
	if cookieHeader == "" {
		return cookies
	}
	for _, part := range strings.Split(cookieHeader, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i := strings.IndexByte(part, '=')
		if i < 0 {
			continue
		}
		name, _ := url.QueryUnescape(strings.TrimSpace(part[:i]))
		value, _ := url.QueryUnescape(strings.TrimSpace(part[i+1:]))
		cookies[name] = value
	}
	return cookies
}

// validate enforces the required-header check of spec.md §4.C step 6.
func validate(req Request) error {
	if req.Header["host"] == "" {
		return wserr.New(wserr.CodeHandshake, "missing Host header")
	}
	if !containsFold(req.Header["upgrade"], "websocket") {
		return wserr.New(wserr.CodeHandshake, "Upgrade header must contain \"websocket\"")
	}
	if !containsFold(req.Header["connection"], "upgrade") {
		return wserr.New(wserr.CodeHandshake, "Connection header must contain \"upgrade\"")
	}
	key := req.Header["sec-websocket-key"]
	if key == "" {
		return wserr.New(wserr.CodeHandshake, "missing Sec-WebSocket-Key header")
	}
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(decoded) != 16 {
		return wserr.New(wserr.CodeHandshake, "Sec-WebSocket-Key must decode to 16 bytes")
	}
	if req.Header["sec-websocket-version"] != "13" {
		return wserr.New(wserr.CodeHandshake, "Sec-WebSocket-Version must be 13")
	}
	return nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
