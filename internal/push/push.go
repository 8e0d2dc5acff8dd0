// Package push delivers raw change notifications from the Enduro monitor
// stream or a Redis pub/sub channel as a Go channel of messages.
package push

import "context"

// Source opens a message stream. The returned channel is closed when the
// underlying connection ends or ctx is cancelled; sources do not reconnect.
type Source interface {
	Subscribe(ctx context.Context) (<-chan []byte, error)
}
