// Package stream implements the client side of the assistant's framed event
// stream: decoding "data: "-prefixed payload lines from a response body and
// dispatching classified events to callbacks.
package stream

import (
	"bufio"
	"context"
	"io"
	"strings"
)

const (
	// framePrefix marks a line as an event payload. Lines without it are
	// not forwarded.
	framePrefix = "data: "

	// doneSentinel is the literal terminal payload signalling successful
	// end-of-stream, distinct from the transport simply closing.
	doneSentinel = "[DONE]"
)

// Scanner buffer sizes. Payload lines can carry whole artifact arrays, so the
// ceiling is well above bufio's 64 KiB default.
const (
	scanBufSize  = 64 << 10
	maxFrameSize = 1 << 20
)

// Decode reads the framed event stream from r and hands each payload to emit
// in arrival order, with the frame prefix stripped.
//
// Buffering is line-based over raw bytes: a multi-byte code point split
// across reads is reassembled before the line is emitted, so non-ASCII
// content survives arbitrary chunk boundaries.
//
// Decode returns nil on the [DONE] sentinel or a clean transport close,
// ctx.Err() when the caller canceled, and the read error otherwise. Empty
// payloads and non-prefixed lines are skipped.
func Decode(ctx context.Context, r io.Reader, emit func(payload string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, scanBufSize), maxFrameSize)

	for scanner.Scan() {
		// Cooperative cancellation check per frame.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSuffix(scanner.Text(), "\r")
		if !strings.HasPrefix(line, framePrefix) {
			continue
		}

		payload := line[len(framePrefix):]
		if payload == "" {
			continue
		}
		if payload == doneSentinel {
			return nil
		}

		emit(payload)
	}

	if err := scanner.Err(); err != nil {
		// A read aborted by the caller's cancel surfaces as a transport
		// error on the response body; report it as cancellation instead.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	// Transport closed without [DONE]; the consumer synthesizes completion.
	return ctx.Err()
}
