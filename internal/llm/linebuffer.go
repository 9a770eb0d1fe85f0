package llm

import "bytes"

// LineBuffer turns arbitrarily fragmented transport chunks into complete lines.
// The trailing element after the last separator is kept until a later chunk completes it.
type LineBuffer struct {
	buf []byte
}

// Feed appends chunk to the buffer and returns the lines it completed, without separators.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.buf = append(b.buf, chunk...)
	if bytes.IndexByte(chunk, '\n') < 0 {
		return nil
	}

	parts := bytes.Split(b.buf, []byte{'\n'})
	last := parts[len(parts)-1]

	lines := make([]string, 0, len(parts)-1)
	for _, p := range parts[:len(parts)-1] {
		lines = append(lines, string(p))
	}

	b.buf = append([]byte(nil), last...)
	return lines
}

// Rest returns the buffered partial line and clears it
func (b *LineBuffer) Rest() string {
	rest := string(b.buf)
	b.buf = nil
	return rest
}
