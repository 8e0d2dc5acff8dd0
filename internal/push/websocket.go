package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/enduro-dash/enduro-dash/internal/collection"
)

const defaultHandshakeTimeout = 10 * time.Second

// WebSocketSource reads monitor updates from the collection monitor endpoint.
type WebSocketSource struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewWebSocketSource returns a source for the websocket at rawURL.
func NewWebSocketSource(rawURL string, logger *slog.Logger) *WebSocketSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketSource{
		url: rawURL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		logger: logger,
	}
}

// MonitorURL derives the monitor endpoint from the API base URL, switching
// http(s) to ws(s).
func MonitorURL(apiBaseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(apiBaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("push: parse api url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("push: unsupported scheme %q", u.Scheme)
	}
	u.Path += "/collection/monitor"
	return u.String(), nil
}

// Subscribe dials the websocket and forwards every text or binary frame.
func (s *WebSocketSource) Subscribe(ctx context.Context) (<-chan []byte, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("push: dial %s: %w", s.url, err)
	}
	s.logger.Info("monitor connected", slog.String("url", s.url))

	out := make(chan []byte, collection.EventBufferSize)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	go func() {
		defer close(out)
		defer stop()
		defer func() { _ = conn.Close() }()
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				switch {
				case ctx.Err() != nil:
				case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
					s.logger.Info("monitor closed by server")
				case errors.Is(err, net.ErrClosed):
				default:
					s.logger.Warn("monitor read", slog.Any("error", err))
				}
				return
			}
			if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
				continue
			}
			select {
			case out <- message:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
