package push

import (
	"context"
	"log/slog"

	"github.com/enduro-dash/enduro-dash/internal/collection"
)

// Publisher fans a raw message out to other dashboard instances.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Relay forwards every message from in to the returned channel and also
// hands it to pub. Publish failures are logged and do not stop the stream.
func Relay(ctx context.Context, in <-chan []byte, pub Publisher, logger *slog.Logger) <-chan []byte {
	if logger == nil {
		logger = slog.Default()
	}
	out := make(chan []byte, collection.EventBufferSize)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				if err := pub.Publish(ctx, msg); err != nil {
					logger.Warn("relay monitor message", slog.Any("error", err))
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
