package gonka

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Endpoint represents a Gonka inference node.
type Endpoint struct {
	URL     string // HTTP endpoint (e.g. "https://node1.gonka.ai/v1")
	Address string // bech32 address of the node, signed as the transfer address
}

// signingTransport signs each request body and sets the Gonka headers.
// Any Authorization header set upstream is replaced by the signature.
type signingTransport struct {
	base     http.RoundTripper
	signer   *signer
	endpoint Endpoint
	now      func() time.Time
}

func (t *signingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("gonka: read request body: %w", err)
		}
	}

	ts := t.now().UnixNano()

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", t.signer.sign(body, ts, t.endpoint.Address))
	clone.Header.Set("X-Requester-Address", t.signer.address)
	clone.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.ContentLength = int64(len(body))

	return t.base.RoundTrip(clone)
}
