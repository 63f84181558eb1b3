package chatstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxErrorBody = 4096

// BearerHeader returns an Authorization header for apiKey.
func BearerHeader(apiKey string) http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+apiKey)
	return h
}

// PostStream sends body as JSON and returns the streaming response body.
// The caller owns the returned body.
func PostStream(ctx context.Context, client *http.Client, url string, header http.Header, body any, vendor string) (io.ReadCloser, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("chatstream: %s: marshal request: %w", vendor, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: create request: %w", ErrConfiguration, vendor, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/event-stream")
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, vendor, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readHTTPError(resp, vendor)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("%w: %s", ErrNoResponseBody, vendor)
	}

	return resp.Body, nil
}

// readHTTPError consumes and closes the body of a failed response.
func readHTTPError(resp *http.Response, vendor string) error {
	var body []byte
	if resp.Body != nil {
		// Read body for error context, but don't fail if we can't.
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
	}

	status := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if status == "" {
		status = http.StatusText(resp.StatusCode)
	}

	return &HTTPError{
		Provider:   vendor,
		StatusCode: resp.StatusCode,
		Status:     status,
		Body:       strings.TrimSpace(string(body)),
	}
}

// StreamRequest is everything an adapter decides about one call.
type StreamRequest struct {
	Provider string
	Model    Model
	URL      string
	Header   http.Header
	Body     any

	Framing        Framing
	Mapper         Mapper
	DecoderOptions []DecoderOption

	// Used for the request event only.
	Messages    int
	EstimatedIn int64
}

// OpenStream sends req and wraps the response in a Stream. Failures before
// the first byte are reported to meter and returned.
func OpenStream(ctx context.Context, client *http.Client, req StreamRequest, meter Meter) (*Stream, error) {
	if meter == nil {
		meter = nopMeter{}
	}

	info := StreamInfo{
		ID:       uuid.NewString(),
		Provider: req.Provider,
		Model:    req.Model,
		Start:    time.Now(),
	}
	meter.OnRequest(RequestEvent{
		RequestID:   info.ID,
		Provider:    req.Provider,
		Model:       req.Model.ID,
		Messages:    req.Messages,
		EstimatedIn: req.EstimatedIn,
	})

	body, err := PostStream(ctx, client, req.URL, req.Header, req.Body, req.Provider)
	if err != nil {
		meter.OnResult(ResultEvent{
			RequestID: info.ID,
			Provider:  req.Provider,
			Model:     req.Model.ID,
			Duration:  time.Since(info.Start),
			Error:     err,
		})
		return nil, err
	}

	dec := NewDecoder(body, req.Framing, req.DecoderOptions...)
	return NewStream(dec, req.Mapper, info, meter), nil
}
