package chatstream

import (
	"errors"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StreamInfo identifies one streaming call for metering.
type StreamInfo struct {
	ID       string
	Provider string
	Model    Model
	Start    time.Time
}

// Stream is the canonical event sequence of one CreateMessage call.
// Text events arrive in wire order. When the stream completes without error
// exactly one usage event follows, coalesced from everything the vendor
// reported, or zero counts when it reported nothing.
//
// Stream is single-pass and not safe for concurrent use.
type Stream struct {
	dec    *Decoder
	mapper Mapper
	info   StreamInfo
	meter  Meter

	pending  []Event
	usage    Usage
	finished bool
	err      error
	reported bool
}

// NewStream wraps a decoder into a canonical event stream. A nil meter is
// allowed.
func NewStream(dec *Decoder, mapper Mapper, info StreamInfo, meter Meter) *Stream {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.Start.IsZero() {
		info.Start = time.Now()
	}
	if meter == nil {
		meter = nopMeter{}
	}
	return &Stream{dec: dec, mapper: mapper, info: info, meter: meter}
}

// ID returns the request id of the call.
func (s *Stream) ID() string { return s.info.ID }

// Next returns the next event. Returns io.EOF after the final usage event.
// Once an error has been returned, every later call returns it again.
func (s *Stream) Next() (Event, error) {
	for {
		if len(s.pending) > 0 {
			e := s.pending[0]
			s.pending = s.pending[1:]
			return e, nil
		}
		if s.err != nil {
			return Event{}, s.err
		}
		if s.finished {
			return Event{}, io.EOF
		}

		raw, err := s.dec.Next()
		if errors.Is(err, io.EOF) {
			s.finished = true
			s.pending = append(s.pending, Event{Kind: EventUsage, Usage: s.usage})
			s.report(nil, true)
			continue
		}
		if err != nil {
			s.err = err
			s.report(err, false)
			return Event{}, err
		}

		for _, e := range s.mapper.Map(raw) {
			if e.Kind == EventUsage {
				s.usage = s.usage.merge(e.Usage)
				continue
			}
			s.pending = append(s.pending, e)
		}
	}
}

// Close stops the stream and releases the response body. Closing before the
// stream finished is reported to the meter as an incomplete call.
func (s *Stream) Close() error {
	err := s.dec.Close()
	s.pending = nil
	s.finished = true
	s.report(s.err, false)
	return err
}

// All returns an iterator over the remaining events. The stream is closed
// when the loop ends, including on break. A failure is yielded once as the
// last pair.
func (s *Stream) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		defer s.Close()
		for {
			e, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Collect drains the stream and returns the concatenated text and usage.
func (s *Stream) Collect() (string, Usage, error) {
	var (
		sb    strings.Builder
		usage Usage
	)
	for e, err := range s.All() {
		if err != nil {
			return sb.String(), usage, err
		}
		switch e.Kind {
		case EventText:
			sb.WriteString(e.Text)
		case EventUsage:
			usage = e.Usage
		}
	}
	return sb.String(), usage, nil
}

func (s *Stream) report(err error, completed bool) {
	if s.reported {
		return
	}
	s.reported = true

	var cost float64
	if completed {
		cost = s.info.Model.Info.Cost(s.usage)
	}
	s.meter.OnResult(ResultEvent{
		RequestID:    s.info.ID,
		Provider:     s.info.Provider,
		Model:        s.info.Model.ID,
		Success:      err == nil,
		Completed:    completed,
		Duration:     time.Since(s.info.Start),
		Usage:        s.usage,
		Cost:         cost,
		SkippedLines: s.dec.Skipped(),
		Error:        err,
	})
}
