package protocol

import (
	"context"
	"time"
)

// Protocol executes one kind of outbound call.
type Protocol interface {
	Name() string
	Execute(ctx context.Context, req *Request) (*Response, error)
	Validate(req *Request) error
}

// Request is what a Protocol needs to perform a call.
type Request struct {
	Protocol string // defaults to "http"
	Method   string
	URL      string
	Headers  map[string]string
	Body     []byte

	// Timeout bounds the whole call; zero uses the client default.
	Timeout time.Duration
}

// Response is the result of a completed call, whatever its status.
type Response struct {
	StatusCode  int
	Body        []byte
	ContentType string
	Size        int64
	Truncated   bool
	Timing      *TimingDetail
}

// TimingDetail breaks the call duration into phases. Dial phases are zero
// on a reused connection.
type TimingDetail struct {
	DNSLookup    time.Duration
	TCPConnect   time.Duration
	TLSHandshake time.Duration
	TTFB         time.Duration
	Transfer     time.Duration
	Total        time.Duration
}
