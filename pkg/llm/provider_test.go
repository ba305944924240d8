package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransportError_Temporary(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{0, true},    // request never completed
		{408, true},  // request timeout
		{429, true},  // throttled
		{500, true},  // server side
		{503, true},  // server side
		{400, false}, // rejected request
		{401, false}, // bad credentials
		{404, false},
	}
	for _, tc := range cases {
		err := &TransportError{Endpoint: "chat completions", Status: tc.status, Err: fmt.Errorf("status %d", tc.status)}
		if got := err.Temporary(); got != tc.want {
			t.Errorf("status %d: Temporary() = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := &TransportError{Endpoint: "chat completions", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to be reachable through Unwrap")
	}
}
