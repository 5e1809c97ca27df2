package transcription

import (
	"context"
	"encoding/base64"
)

// Pump drains audio segments, encodes each one independently and pushes it
// to the channel. It is a background producer: it must never block the call
// transport's callbacks, and cancelling the context discards any in-flight
// segment instead of raising.
//
// Pump returns when the context is cancelled or the segment source closes.
func Pump(ctx context.Context, ch Channel, sessionID string, segments <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case seg, ok := <-segments:
			if !ok {
				return
			}
			if len(seg) == 0 {
				continue
			}
			encoded := base64.StdEncoding.EncodeToString(seg)
			// Best-effort: a disconnected channel swallows the chunk.
			_ = ch.PushAudioChunk(ctx, sessionID, encoded)
		}
	}
}
