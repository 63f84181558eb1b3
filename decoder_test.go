package chatstream_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/iotest"

	cs "github.com/ineyio/chatstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns one scripted chunk per Read call.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

// spyBody records Close calls.
type spyBody struct {
	io.Reader
	closed int
}

func (b *spyBody) Close() error {
	b.closed++
	return nil
}

func newBody(r io.Reader) *spyBody { return &spyBody{Reader: r} }

func drain(t *testing.T, dec *cs.Decoder) []map[string]any {
	t.Helper()
	var events []map[string]any
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecoder_SSE_ConcreteChunks(t *testing.T) {
	body := newBody(&chunkReader{chunks: []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n",
		"data: [DONE]\n",
	}})

	events := drain(t, cs.NewDecoder(body, cs.FramingSSE))
	require.Len(t, events, 2)

	text, ok := cs.ParsePath("choices.0.delta.content").Lookup(events[0])
	require.True(t, ok)
	assert.Equal(t, "Hel", text)
	text, _ = cs.ParsePath("choices.0.delta.content").Lookup(events[1])
	assert.Equal(t, "lo", text)
	assert.Equal(t, 1, body.closed)
}

func TestDecoder_ChunkBoundaryIndependence(t *testing.T) {
	const wire = "data: {\"choices\":[{\"delta\":{\"content\":\"héllo \"}}]}\n\n" +
		": keep-alive comment\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"世界 🌍\"}}]}\r\n" +
		"event: message\n" +
		"data:{\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":5}}\n" +
		"data: [DONE]\n"

	whole := drain(t, cs.NewDecoder(newBody(strings.NewReader(wire)), cs.FramingSSE))
	byteByByte := drain(t, cs.NewDecoder(newBody(iotest.OneByteReader(strings.NewReader(wire))), cs.FramingSSE))
	halves := drain(t, cs.NewDecoder(newBody(iotest.HalfReader(strings.NewReader(wire))), cs.FramingSSE, cs.WithChunkSize(7)))

	require.Len(t, whole, 3)
	assert.Equal(t, whole, byteByByte)
	assert.Equal(t, whole, halves)

	text, _ := cs.ParsePath("choices.0.delta.content").Lookup(byteByByte[1])
	assert.Equal(t, "世界 🌍", text)
}

func TestDecoder_DoneStopsDecoding(t *testing.T) {
	body := newBody(strings.NewReader(
		"data: {\"n\":1}\n" +
			"data: [DONE]\n" +
			"data: {\"n\":2}\n" +
			"data: {broken\n",
	))
	dec := cs.NewDecoder(body, cs.FramingSSE, cs.WithLogger(quietLogger()))

	events := drain(t, dec)
	require.Len(t, events, 1)
	assert.Equal(t, json.Number("1"), events[0]["n"])
	assert.Equal(t, 0, dec.Skipped())
	assert.Equal(t, 1, body.closed)

	_, err := dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_DoneIsPlainDataInJSONLines(t *testing.T) {
	body := newBody(strings.NewReader("[DONE]\n{\"n\":1}\n"))
	dec := cs.NewDecoder(body, cs.FramingJSONLines, cs.WithLogger(quietLogger()))

	events := drain(t, dec)
	require.Len(t, events, 1)
	assert.Equal(t, 1, dec.Skipped())
}

func TestDecoder_MalformedLineSkipped(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	body := newBody(strings.NewReader(
		"data: {\"n\":1}\n" +
			"data: {\"n\":\n" +
			"data: null\n" +
			"data: {\"n\":2} trailing\n" +
			"data: {\"n\":3}\n",
	))
	dec := cs.NewDecoder(body, cs.FramingSSE, cs.WithLogger(logger))

	events := drain(t, dec)
	require.Len(t, events, 2)
	assert.Equal(t, json.Number("1"), events[0]["n"])
	assert.Equal(t, json.Number("3"), events[1]["n"])
	assert.Equal(t, 3, dec.Skipped())
	assert.Contains(t, logs.String(), "skipping malformed stream line")
	assert.Contains(t, logs.String(), "level=WARN")
}

func TestDecoder_JSONLines(t *testing.T) {
	wire := "{\"message\":{\"content\":\"a\"},\"done\":false}\n" +
		"\n" +
		"   \n" +
		"{\"message\":{\"content\":\"b\"},\"done\":true,\"eval_count\":4}\n"

	events := drain(t, cs.NewDecoder(newBody(iotest.OneByteReader(strings.NewReader(wire))), cs.FramingJSONLines))
	require.Len(t, events, 2)
	assert.Equal(t, true, events[1]["done"])
	assert.Equal(t, json.Number("4"), events[1]["eval_count"])
}

func TestDecoder_TrailingFragmentAtEOF(t *testing.T) {
	t.Run("sse", func(t *testing.T) {
		body := newBody(strings.NewReader("data: {\"n\":1}\ndata: {\"n\":2}"))
		events := drain(t, cs.NewDecoder(body, cs.FramingSSE))
		require.Len(t, events, 2)
		assert.Equal(t, json.Number("2"), events[1]["n"])
	})

	t.Run("jsonl", func(t *testing.T) {
		body := newBody(strings.NewReader("{\"n\":1}\n{\"n\":2}"))
		events := drain(t, cs.NewDecoder(body, cs.FramingJSONLines))
		require.Len(t, events, 2)
	})

	t.Run("truncated fragment is skipped", func(t *testing.T) {
		body := newBody(strings.NewReader("data: {\"n\":1}\ndata: {\"n\""))
		dec := cs.NewDecoder(body, cs.FramingSSE, cs.WithLogger(quietLogger()))
		events := drain(t, dec)
		require.Len(t, events, 1)
		assert.Equal(t, 1, dec.Skipped())
		assert.Equal(t, 1, body.closed)
	})
}

func TestDecoder_ReadErrorClosesBody(t *testing.T) {
	boom := errors.New("connection reset")
	body := newBody(io.MultiReader(
		strings.NewReader("data: {\"n\":1}\n"),
		iotest.ErrReader(boom),
	))
	dec := cs.NewDecoder(body, cs.FramingSSE)

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, json.Number("1"), ev["n"])

	_, err = dec.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, cs.ErrTransport)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, body.closed)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

// dataWithErrReader returns data and err from the same Read call.
type dataWithErrReader struct {
	data string
	err  error
	read bool
}

func (r *dataWithErrReader) Read(p []byte) (int, error) {
	if r.read {
		return 0, r.err
	}
	r.read = true
	return copy(p, r.data), r.err
}

func TestDecoder_LinesBeforeReadErrorAreDelivered(t *testing.T) {
	body := newBody(&dataWithErrReader{
		data: "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n" +
			"data: {\"choices\":[",
		err: io.ErrUnexpectedEOF,
	})
	dec := cs.NewDecoder(body, cs.FramingSSE, cs.WithLogger(quietLogger()))

	for _, want := range []string{"Hel", "lo"} {
		ev, err := dec.Next()
		require.NoError(t, err)
		v, ok := chatMapper.TextPath.Lookup(ev)
		require.True(t, ok)
		assert.Equal(t, want, v)
	}

	_, err := dec.Next()
	assert.ErrorIs(t, err, cs.ErrTransport)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 1, body.closed)
}

func TestDecoder_MaxConsecutiveMalformed(t *testing.T) {
	t.Run("escalates", func(t *testing.T) {
		body := newBody(strings.NewReader("data: {\"n\":1}\ndata: x\ndata: y\ndata: {\"n\":2}\n"))
		dec := cs.NewDecoder(body, cs.FramingSSE, cs.WithLogger(quietLogger()), cs.WithMaxConsecutiveMalformed(2))

		_, err := dec.Next()
		require.NoError(t, err)
		_, err = dec.Next()
		assert.ErrorIs(t, err, cs.ErrMalformedStream)
		assert.Equal(t, 1, body.closed)
	})

	t.Run("good line resets the run", func(t *testing.T) {
		body := newBody(strings.NewReader("data: x\ndata: {\"n\":1}\ndata: y\ndata: {\"n\":2}\n"))
		dec := cs.NewDecoder(body, cs.FramingSSE, cs.WithLogger(quietLogger()), cs.WithMaxConsecutiveMalformed(2))

		events := drain(t, dec)
		assert.Len(t, events, 2)
		assert.Equal(t, 2, dec.Skipped())
	})

	t.Run("zero never escalates", func(t *testing.T) {
		wire := strings.Repeat("data: nope\n", 50) + "data: {\"n\":1}\n"
		dec := cs.NewDecoder(newBody(strings.NewReader(wire)), cs.FramingSSE, cs.WithLogger(quietLogger()))

		events := drain(t, dec)
		assert.Len(t, events, 1)
		assert.Equal(t, 50, dec.Skipped())
	})
}

func TestDecoder_JSONRepair(t *testing.T) {
	const wire = "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]\n"

	plain := cs.NewDecoder(newBody(strings.NewReader(wire)), cs.FramingSSE, cs.WithLogger(quietLogger()))
	assert.Empty(t, drain(t, plain))
	assert.Equal(t, 1, plain.Skipped())

	repaired := cs.NewDecoder(newBody(strings.NewReader(wire)), cs.FramingSSE,
		cs.WithLogger(quietLogger()), cs.WithJSONRepair(true))
	events := drain(t, repaired)
	require.Len(t, events, 1)
	text, ok := cs.ParsePath("choices.0.delta.content").Lookup(events[0])
	require.True(t, ok)
	assert.Equal(t, "hi", text)
	assert.Equal(t, 0, repaired.Skipped())
}

func TestDecoder_CloseIsIdempotent(t *testing.T) {
	body := newBody(strings.NewReader("data: {\"n\":1}\n"))
	dec := cs.NewDecoder(body, cs.FramingSSE)

	require.NoError(t, dec.Close())
	require.NoError(t, dec.Close())
	assert.Equal(t, 1, body.closed)

	_, err := dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFraming_String(t *testing.T) {
	assert.Equal(t, "sse", cs.FramingSSE.String())
	assert.Equal(t, "jsonl", cs.FramingJSONLines.String())
}
