package handshake

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// WriteAccept writes the 101 Switching Protocols response that completes
// the handshake, per spec.md §6.
func WriteAccept(w io.Writer, secWebSocketKey string) error {
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + AcceptKey(secWebSocketKey) + "\r\n" +
		"\r\n"
	_, err := io.WriteString(w, resp)
	return err
}

// WriteError writes a minimal pre-handshake error response for one of
// 400/401/403/404, per spec.md §6.
func WriteError(w io.Writer, code int) error {
	resp := fmt.Sprintf("HTTP/1.1 %d %s\r\nDate: %s\r\n\r\n",
		code, http.StatusText(code), time.Now().UTC().Format(http.TimeFormat))
	_, err := io.WriteString(w, resp)
	return err
}

// WriteRedirect writes a minimal pre-handshake redirect response for one
// of 301/302/307, per spec.md §6.
func WriteRedirect(w io.Writer, code int, location string) error {
	resp := fmt.Sprintf("HTTP/1.1 %d %s\r\nLocation: %s\r\n\r\n",
		code, http.StatusText(code), location)
	_, err := io.WriteString(w, resp)
	return err
}
