package server

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
)

// WebSocketConn is the part of a socket the capture UI connection uses.
type WebSocketConn interface {
	io.Closer
	WriteJSON(v any) error
	ReadJSON(v any) error
}

// Commands from the UI are small JSON objects; status and spectrum frames
// going out are a few hundred bytes each.
const (
	maxCommandBytes = 16 << 10
	readBufferSize  = 1024
	writeBufferSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  readBufferSize,
	WriteBufferSize: writeBufferSize,
	CheckOrigin:     trustedOrigin,
}

// trustedOrigin accepts the UI served by this process and any browser on the
// studio network: no Origin header, the request's own host, localhost, or a
// loopback or private address.
func trustedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("rejected capture socket: invalid origin", "origin", origin)
		return false
	}

	host := u.Hostname()
	switch {
	case host == "":
	case host == "localhost", host == requestHost(r):
		return true
	case isLocalAddress(host):
		return true
	}

	slog.Warn("rejected capture socket", "origin", origin, "host", r.Host)
	return false
}

func requestHost(r *http.Request) string {
	if h, _, err := net.SplitHostPort(r.Host); err == nil {
		return h
	}
	return r.Host
}

func isLocalAddress(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// UpgradeConnection upgrades a /ws request and caps the size of incoming commands.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxCommandBytes)
	return conn, nil
}
