package providers

import (
	"fmt"
	"testing"
)

func TestKeyDisposition(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Disposition
	}{
		{"nil releases", nil, DispositionRelease},
		{"auth retires", &AuthError{Provider: "groq", StatusCode: 401}, DispositionRetire},
		{"forbidden retires", &AuthError{Provider: "groq", StatusCode: 403}, DispositionRetire},
		{"rate limit quarantines", &RateLimitError{Provider: "groq"}, DispositionQuarantine},
		{"upstream quarantines", &UpstreamError{Provider: "groq", StatusCode: 503}, DispositionQuarantine},
		{"bad request releases", &BadRequestError{Provider: "groq"}, DispositionRelease},
		{"timeout releases", &TimeoutError{Provider: "groq"}, DispositionRelease},
		{"network releases", &NetworkError{Provider: "groq", Cause: fmt.Errorf("refused")}, DispositionRelease},
		{"wrapped auth retires", fmt.Errorf("attempt failed: %w", &AuthError{Provider: "groq"}), DispositionRetire},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeyDisposition(tt.err); got != tt.want {
				t.Fatalf("KeyDisposition(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&AuthError{}, "auth"},
		{&RateLimitError{}, "rate_limit"},
		{&UpstreamError{}, "upstream"},
		{&BadRequestError{}, "bad_request"},
		{&TimeoutError{}, "timeout"},
		{&NetworkError{}, "network"},
		{&ParseError{}, "parse"},
		{&StreamError{}, "stream"},
		{fmt.Errorf("mystery"), "other"},
		{nil, "none"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
