package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// readChunkSize is the size of each raw read from a response body
const readChunkSize = 4096

// sseDone is the sentinel payload ending an SSE stream
const sseDone = "[DONE]"

// lineDecoder interprets one complete line of a streaming response.
// It returns the fragment the line carries and whether the line ends the stream.
// errMalformedLine skips the line; any other error terminates the stream.
type lineDecoder func(line string) (text string, done bool, err error)

// sseData returns the payload of an SSE "data:" line
func sseData(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
}

// streamFragments reads body chunk by chunk and sends decoded fragments to the returned channel.
// The goroutine owns body and closes it on exit.
func streamFragments(ctx context.Context, backend string, body io.ReadCloser, decode lineDecoder, logger *zap.Logger) <-chan StreamChunk {
	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)
		defer body.Close()

		send := func(c StreamChunk) bool {
			select {
			case chunks <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// handle processes one line and reports whether reading should go on
		handle := func(line string) bool {
			line = strings.TrimRight(line, "\r")
			if strings.TrimSpace(line) == "" {
				return true
			}

			text, done, err := decode(line)
			if err != nil {
				if errors.Is(err, errMalformedLine) {
					logger.Debug("skipping malformed stream line", zap.String("backend", backend))
					return true
				}
				send(StreamChunk{Error: err})
				return false
			}
			if text != "" && !send(StreamChunk{Text: text}) {
				return false
			}
			return !done
		}

		var lines LineBuffer
		buf := make([]byte, readChunkSize)
		for {
			n, err := body.Read(buf)
			if n > 0 {
				for _, line := range lines.Feed(buf[:n]) {
					if !handle(line) {
						return
					}
				}
			}

			if err != nil {
				if errors.Is(err, io.EOF) {
					// Some backends omit the newline after the final record
					if rest := lines.Rest(); rest != "" {
						handle(rest)
					}
					logger.Debug("stream finished", zap.String("backend", backend))
					return
				}
				if ctx.Err() != nil {
					return
				}
				send(StreamChunk{Error: transportError(backend, fmt.Errorf("error reading stream: %w", err))})
				return
			}

			if ctx.Err() != nil {
				return
			}
		}
	}()

	return chunks
}
