package chatstream

import "bytes"

// LineBuffer accumulates raw chunks and splits them into newline-terminated
// lines. The trailing unterminated fragment stays buffered until a later
// chunk completes it or Flush is called.
type LineBuffer struct {
	pending []byte
}

// Write appends chunk and returns every line it completed, without the
// terminating newline.
func (b *LineBuffer) Write(chunk []byte) []string {
	b.pending = append(b.pending, chunk...)

	var lines []string
	start := 0
	for {
		i := bytes.IndexByte(b.pending[start:], '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(b.pending[start:start+i]))
		start += i + 1
	}

	if start > 0 {
		n := copy(b.pending, b.pending[start:])
		b.pending = b.pending[:n]
	}
	return lines
}

// Flush returns the buffered fragment and clears the buffer.
func (b *LineBuffer) Flush() string {
	rest := string(b.pending)
	b.pending = b.pending[:0]
	return rest
}

// Len returns the number of buffered bytes.
func (b *LineBuffer) Len() int { return len(b.pending) }
