package twitter

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrUnknownMediaType is returned when content inspection gives no verdict.
var ErrUnknownMediaType = errors.New("media type could not be detected")

// TransportError reports a failed outbound call: network failure, timeout,
// or a non-success HTTP status.
type TransportError struct {
	Op         string // e.g. "upload INIT", "direct message"
	Method     string
	URL        string
	StatusCode int    // 0 when no response was received
	Body       string // response body for status failures, truncated
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s %s: HTTP %d: %s", e.Op, e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Op, e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the call failed because its deadline passed.
func (e *TransportError) Timeout() bool {
	var ne net.Error
	if errors.As(e.Err, &ne) {
		return ne.Timeout()
	}
	return false
}

// EncodingError reports that a fetched asset could not be classified.
type EncodingError struct {
	Source string
	Err    error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode media %s: %v", e.Source, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// ConfigurationError lists credentials that are missing. Signing does not
// check for it; callers that want an early warning call Credentials.Validate.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "missing twitter credentials: " + strings.Join(e.Missing, ", ")
}
