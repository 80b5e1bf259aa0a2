package providers

import (
	"bufio"
	"io"
	"strings"
)

// sseDone is the OpenAI-style stream terminator payload.
const sseDone = "[DONE]"

// SSEScanner reads server-sent events from a response body and yields the
// payload of each data line. Comment lines and event/id fields are skipped;
// the "[DONE]" sentinel and the underlying EOF both terminate with io.EOF.
type SSEScanner struct {
	scanner *bufio.Scanner
}

// NewSSEScanner wraps r. The buffer allows single events up to 1 MiB, which
// covers tool-call argument payloads.
func NewSSEScanner(r io.Reader) *SSEScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &SSEScanner{scanner: scanner}
}

// Next returns the next data payload, or io.EOF when the stream ends.
func (s *SSEScanner) Next() (string, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == sseDone {
			return "", io.EOF
		}
		return data, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
