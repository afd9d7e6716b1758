// Package wire implements the spec's connection-ownership discipline: the
// Envelope type that carries a net.Conn by move through channels, the
// two-phase header/body read protocol, and response writers. Grounded on
// _examples/original_source/server/src/{server.rs,http_utils.rs}, with the
// reading protocol corrected per spec.md §9's Open Question ("parse by
// finding the first ':', trimming, then parsing as an unsigned integer")
// rather than the original's fixed-offset split.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// MaxRequestBytes is the compile-time maximum combined header+body size
// from spec.md §4.1 — overridable at construction for tests.
const MaxRequestBytes = 4096

// ErrTooLarge is returned by ReadRequest when the announced or observed
// size exceeds the configured maximum.
var ErrTooLarge = fmt.Errorf("request exceeds maximum size")

// Request is the parsed request produced by the two-phase read: a method,
// a path, selected headers, and an optional body. It deliberately mirrors
// only what the dispatcher needs (spec.md §3's Request Envelope splits the
// network identity from the parsed payload; Request is the payload half).
type Request struct {
	Method         string
	Path           string
	Authorization  string
	ContentLength  int
	Body           []byte
}

// PathSegments splits Path on '/', skipping empty segments produced by
// leading/duplicate slashes. A bare "/" (or any trailing slash) is
// preserved as a single "/" segment matching the router's root-child
// convention (spec.md §4.2: "a trailing slash is treated as a distinct
// segment matching the root-child '/'").
func (r *Request) PathSegments() []string {
	path := r.Path
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" || path == "/" {
		return []string{"/"}
	}

	trailingSlash := strings.HasSuffix(path, "/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	segments := make([]string, 0, len(parts)+1)
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	if trailingSlash {
		segments = append(segments, "/")
	}
	return segments
}

// ReadRequest performs the spec's two-phase read: headers line-by-line
// until a blank line, then exactly Content-Length body bytes. maxBytes
// bounds the combined size; exceeding it returns ErrTooLarge so the
// dispatcher can reply 413 instead of reading further.
func ReadRequest(conn net.Conn, maxBytes int) (*Request, error) {
	reader := bufio.NewReader(conn)

	requestLine, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading request line: %w", err)
	}
	total := len(requestLine)

	method, path, err := parseRequestLine(requestLine)
	if err != nil {
		return nil, err
	}

	req := &Request{Method: method, Path: path}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading headers: %w", err)
		}
		total += len(line)
		if total > maxBytes {
			return nil, ErrTooLarge
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}

		name, value, ok := splitHeaderLine(trimmed)
		if !ok {
			continue
		}
		switch strings.ToLower(name) {
		case "content-length":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("parsing content-length: %w", err)
			}
			req.ContentLength = int(n)
		case "authorization":
			req.Authorization = value
		}
	}

	if total+req.ContentLength > maxBytes {
		return nil, ErrTooLarge
	}

	if req.ContentLength > 0 {
		body := make([]byte, req.ContentLength)
		if _, err := io.ReadFull(reader, body); err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}
		req.Body = body
	}

	return req, nil
}

// parseRequestLine splits "METHOD /path HTTP/1.1\r\n" into method and path.
func parseRequestLine(line string) (method, path string, err error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", "", fmt.Errorf("malformed request line %q", line)
	}
	return fields[0], fields[1], nil
}

// splitHeaderLine finds the first ':' per spec.md §9's Open Question
// resolution, trims surrounding whitespace from the value.
func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], strings.TrimSpace(line[idx+1:]), true
}

// Envelope owns exactly one connection at a time, per spec.md §3's
// ownership invariant. It travels by move through Go channels: whichever
// goroutine receives it is the sole writer and closer of Conn.
type Envelope struct {
	Conn      net.Conn
	RequestID uint64
	Arrived   time.Time
	Request   *Request
}

// Close closes the owned connection. Every holder must call this exactly
// once after writing its response.
func (e *Envelope) Close() {
	_ = e.Conn.Close()
}
