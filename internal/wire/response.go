package wire

import (
	"fmt"
	"net"
	"path/filepath"
)

// statusText is a tiny local status table; the spec treats the HTTP
// byte-format writer as a library concern, but a fixed small status set is
// all this server ever emits.
var statusText = map[int]string{
	200: "OK",
	201: "Created",
	400: "Bad Request",
	401: "Unauthorized",
	404: "Not Found",
	405: "Method Not Allowed",
	409: "Conflict",
	413: "Payload Too Large",
	500: "Internal Server Error",
}

// WriteResponse writes a minimal HTTP/1.1 response: status line, headers,
// blank line, body. It is the single place a response is serialized to
// bytes, matching the original's http_utils::send_response.
func WriteResponse(conn net.Conn, status int, headers map[string]string, body []byte) error {
	text, ok := statusText[status]
	if !ok {
		text = "Unknown"
	}

	out := fmt.Sprintf("HTTP/1.1 %d %s\r\n", status, text)
	if _, ok := headers["Content-Length"]; !ok {
		headers = cloneWithContentLength(headers, len(body))
	}
	for k, v := range headers {
		out += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	out += "\r\n"

	if _, err := conn.Write([]byte(out)); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := conn.Write(body); err != nil {
			return err
		}
	}
	return nil
}

func cloneWithContentLength(headers map[string]string, n int) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	out["Content-Length"] = fmt.Sprintf("%d", n)
	return out
}

// WriteJSON writes a status + JSON body with the application/json
// Content-Type.
func WriteJSON(conn net.Conn, status int, body string) error {
	return WriteResponse(conn, status, map[string]string{"Content-Type": "application/json"}, []byte(body))
}

// WriteJSONError writes {"error":"<code>"} at the given status.
func WriteJSONError(conn net.Conn, status int, code string) error {
	return WriteJSON(conn, status, fmt.Sprintf(`{"error":%q}`, code))
}

// WriteEmpty writes a status with no body.
func WriteEmpty(conn net.Conn, status int) error {
	return WriteResponse(conn, status, nil, nil)
}

// WriteFile writes a status with the file's bytes and the Content-Type
// inferred from its extension per spec.md §6's mapping table.
func WriteFile(conn net.Conn, status int, name string, data []byte) error {
	ct, err := ContentTypeFor(name)
	if err != nil {
		return err
	}
	return WriteResponse(conn, status, map[string]string{"Content-Type": ct}, data)
}

// ContentTypeFor implements spec.md §6's extension -> Content-Type table.
// An unknown or missing extension is a server error, per spec.
func ContentTypeFor(name string) (string, error) {
	switch filepath.Ext(name) {
	case ".html":
		return "text/html; charset=utf-8", nil
	case ".css":
		return "text/css", nil
	case ".js":
		return "text/javascript", nil
	case ".ico":
		return "image/ico", nil
	case ".png":
		return "image/png", nil
	case ".jpg":
		return "image/jpg", nil
	default:
		return "", fmt.Errorf("no content-type mapping for extension of %q", name)
	}
}
