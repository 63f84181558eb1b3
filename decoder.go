package chatstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kaptinlin/jsonrepair"
)

// Framing is the line-delimiting convention of a vendor stream.
type Framing int

const (
	// FramingSSE expects "data: {json}" lines terminated by "data: [DONE]".
	FramingSSE Framing = iota
	// FramingJSONLines expects one bare JSON object per line.
	FramingJSONLines
)

func (f Framing) String() string {
	switch f {
	case FramingSSE:
		return "sse"
	case FramingJSONLines:
		return "jsonl"
	default:
		return "unknown"
	}
}

const (
	doneSentinel     = "[DONE]"
	defaultChunkSize = 4096
)

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithLogger sets the logger used for decode warnings.
func WithLogger(l *slog.Logger) DecoderOption {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMaxConsecutiveMalformed aborts decoding with ErrMalformedStream after n
// consecutive payloads fail to parse. Zero (the default) never aborts.
func WithMaxConsecutiveMalformed(n int) DecoderOption {
	return func(d *Decoder) { d.maxMalformed = n }
}

// WithJSONRepair makes the decoder try to repair a malformed payload before
// skipping it.
func WithJSONRepair(enabled bool) DecoderOption {
	return func(d *Decoder) { d.repair = enabled }
}

// WithChunkSize sets the read size used against the body.
func WithChunkSize(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

// Decoder turns a streaming response body into decoded vendor events.
// It is single-consumer and forward-only. The body is closed as soon as the
// decoder completes, whatever the reason.
//
// Decoder is not safe for concurrent use.
type Decoder struct {
	body    io.ReadCloser
	framing Framing
	logger  *slog.Logger

	lines     LineBuffer
	queue     []string
	chunk     []byte
	chunkSize int
	eof       bool
	readErr   error
	done      bool
	closed    bool
	closeErr  error

	repair       bool
	maxMalformed int
	malformedRun int
	skipped      int
}

// NewDecoder creates a Decoder reading body with the given framing.
func NewDecoder(body io.ReadCloser, framing Framing, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		body:      body,
		framing:   framing,
		logger:    slog.Default(),
		chunkSize: defaultChunkSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next decoded event. Returns io.EOF when the stream ended
// or the [DONE] sentinel was seen. Lines whose payload is not a JSON object
// are logged and skipped.
func (d *Decoder) Next() (map[string]any, error) {
	for {
		if d.done {
			return nil, io.EOF
		}

		line, ok, err := d.nextLine()
		if err != nil {
			d.finish()
			return nil, fmt.Errorf("%w: read stream: %w", ErrTransport, err)
		}
		if !ok {
			d.finish()
			return nil, io.EOF
		}

		payload, ok := d.payload(line)
		if !ok {
			continue
		}
		if d.framing == FramingSSE && payload == doneSentinel {
			d.finish()
			return nil, io.EOF
		}

		event, err := d.parse(payload)
		if err != nil {
			d.skipped++
			d.malformedRun++
			d.logger.Warn("chatstream: skipping malformed stream line",
				"framing", d.framing.String(),
				"error", err,
				"payload", truncate(payload, 200),
			)
			if d.maxMalformed > 0 && d.malformedRun >= d.maxMalformed {
				d.finish()
				return nil, fmt.Errorf("%w (%d)", ErrMalformedStream, d.malformedRun)
			}
			continue
		}
		d.malformedRun = 0
		return event, nil
	}
}

// Skipped returns how many lines were dropped as malformed so far.
func (d *Decoder) Skipped() int { return d.skipped }

// Close releases the body. Safe to call more than once.
func (d *Decoder) Close() error {
	d.done = true
	if d.closed {
		return d.closeErr
	}
	d.closed = true
	d.queue = nil
	d.lines.Flush()
	if d.body != nil {
		d.closeErr = d.body.Close()
	}
	return d.closeErr
}

func (d *Decoder) finish() {
	if err := d.Close(); err != nil {
		d.logger.Debug("chatstream: close stream body", "error", err)
	}
}

// nextLine returns the next non-blank line, reading more chunks as needed.
// ok is false once the body is exhausted.
func (d *Decoder) nextLine() (line string, ok bool, err error) {
	for {
		for len(d.queue) > 0 {
			line = d.queue[0]
			d.queue = d.queue[1:]
			if strings.TrimSpace(line) != "" {
				return line, true, nil
			}
		}

		if d.readErr != nil {
			return "", false, d.readErr
		}

		if d.eof {
			rest := d.lines.Flush()
			if strings.TrimSpace(rest) != "" {
				return rest, true, nil
			}
			return "", false, nil
		}

		if d.chunk == nil {
			d.chunk = make([]byte, d.chunkSize)
		}
		// Lines completed by this read are delivered before a read error.
		n, readErr := d.body.Read(d.chunk)
		if n > 0 {
			d.queue = append(d.queue, d.lines.Write(d.chunk[:n])...)
		}
		if errors.Is(readErr, io.EOF) {
			d.eof = true
		} else if readErr != nil {
			d.readErr = readErr
		}
	}
}

// payload extracts the JSON text of a line according to the framing.
func (d *Decoder) payload(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if d.framing == FramingJSONLines {
		return line, line != ""
	}

	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		// event:, id:, retry: and comments carry nothing we map.
		return "", false
	}
	data = strings.TrimSpace(data)
	return data, data != ""
}

func (d *Decoder) parse(payload string) (map[string]any, error) {
	event, err := unmarshalObject(payload)
	if err == nil || !d.repair {
		return event, err
	}

	repaired, repairErr := jsonrepair.JSONRepair(payload)
	if repairErr != nil {
		return nil, err
	}
	event, repairedErr := unmarshalObject(repaired)
	if repairedErr != nil {
		return nil, err
	}
	d.logger.Debug("chatstream: repaired malformed stream line", "payload", truncate(payload, 200))
	return event, nil
}

// unmarshalObject decodes exactly one JSON object. Numbers are kept as
// json.Number so token counts survive without float rounding.
func unmarshalObject(payload string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var event map[string]any
	if err := dec.Decode(&event); err != nil {
		return nil, err
	}
	if event == nil {
		return nil, errors.New("payload is not a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON object")
	}
	return event, nil
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
