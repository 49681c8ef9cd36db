package history

import (
	"time"

	"github.com/sadopc/reqdeck/internal/errdef"
)

// Entry is one recorded execution of a request. Entries are never modified
// after they are appended.
type Entry struct {
	ID           int64     `json:"id"`
	RequestID    int64     `json:"request_id"`
	Method       string    `json:"request_method"`
	URL          string    `json:"url"`
	RequestBody  string    `json:"request_body,omitempty"`
	StatusCode   int       `json:"response_status_code"`
	ResponseBody string    `json:"response_body"`
	ResponseTime int64     `json:"response_time_ms"`
	ResponseSize int64     `json:"response_size"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Duration returns the response time as a time.Duration.
func (e Entry) Duration() time.Duration {
	return time.Duration(e.ResponseTime) * time.Millisecond
}

// Failed reports whether the call never produced a response.
func (e Entry) Failed() bool {
	return e.Error != ""
}

// Outcome classifies the entry: CodeTransport when the call failed,
// CodeRemote when the server answered with a 4xx/5xx, "" otherwise.
func (e Entry) Outcome() errdef.Code {
	switch {
	case e.Failed():
		return errdef.CodeTransport
	case e.StatusCode >= 400:
		return errdef.CodeRemote
	}
	return ""
}
