package wire

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathSegments(t *testing.T) {
	cases := []struct {
		path string
		want []string
	}{
		{"/", []string{"/"}},
		{"", []string{"/"}},
		{"/home", []string{"home"}},
		{"/file/style.css", []string{"file", "style.css"}},
		{"/users/register", []string{"users", "register"}},
		{"/home/", []string{"home", "/"}},
		{"/home?x=1", []string{"home"}},
	}
	for _, c := range cases {
		r := &Request{Path: c.path}
		assert.Equal(t, c.want, r.PathSegments(), "path=%q", c.path)
	}
}

func TestSplitHeaderLine(t *testing.T) {
	name, value, ok := splitHeaderLine("Content-Length: 42")
	require.True(t, ok)
	assert.Equal(t, "Content-Length", name)
	assert.Equal(t, "42", value)

	_, _, ok = splitHeaderLine("no-colon-here")
	assert.False(t, ok)

	// A value containing ':' must not be truncated: only the first colon
	// is the separator (spec.md §9's Open Question resolution).
	name, value, ok = splitHeaderLine("Authorization: Bearer abc:def")
	require.True(t, ok)
	assert.Equal(t, "Authorization", name)
	assert.Equal(t, "Bearer abc:def", value)
}

func TestReadRequestTwoPhase(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		client.Write([]byte("POST /users/register HTTP/1.1\r\n"))
		client.Write([]byte("Content-Length: 11\r\n"))
		client.Write([]byte("\r\n"))
		client.Write([]byte("hello world"))
	}()

	req, err := ReadRequest(server, MaxRequestBytes)
	require.NoError(t, err)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/users/register", req.Path)
	assert.Equal(t, "hello world", string(req.Body))
}

func TestReadRequestTooLarge(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		client.Write([]byte("GET / HTTP/1.1\r\n"))
		client.Write([]byte("Content-Length: 10000\r\n"))
		client.Write([]byte("\r\n"))
	}()

	_, err := ReadRequest(server, 64)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestWriteJSONError(t *testing.T) {
	server, client := net.Pipe()
	done := make(chan struct{})
	var read string
	go func() {
		data, _ := io.ReadAll(client)
		read = string(data)
		close(done)
	}()

	go func() {
		_ = WriteJSONError(server, 404, "not_found")
		server.Close()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
	client.Close()

	assert.Contains(t, read, "HTTP/1.1 404 Not Found")
	assert.Contains(t, read, `{"error":"not_found"}`)
}
