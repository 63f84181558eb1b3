package chatstream

import "time"

// Meter observes streaming calls for monitoring/logging.
type Meter interface {
	// OnRequest is called before the request is sent.
	OnRequest(event RequestEvent)

	// OnResult is called once per call: on completion, on failure, or when
	// the caller closes the stream early.
	OnResult(event ResultEvent)
}

// RequestEvent describes an outgoing call.
type RequestEvent struct {
	RequestID   string
	Provider    string
	Model       string
	Messages    int
	EstimatedIn int64
}

// ResultEvent describes the outcome of a call.
type ResultEvent struct {
	RequestID string
	Provider  string
	Model     string
	Success   bool

	// Completed is true when the vendor stream ran to its end.
	// A stream closed early by the caller is successful but not completed.
	Completed bool

	Duration     time.Duration
	Usage        Usage
	Cost         float64 // USD, zero unless completed
	SkippedLines int
	Error        error
}

type nopMeter struct{}

func (nopMeter) OnRequest(RequestEvent) {}
func (nopMeter) OnResult(ResultEvent)   {}
