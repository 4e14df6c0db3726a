package router

import (
	"net/http"
	"testing"
)

const defaultEndpoint = "http://127.0.0.1:8317/v1/chat/completions"

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		value    string
		expected string
	}{
		{"no header", "", "", defaultEndpoint},
		{"underscore header", "site_api", "http://other:9000/v1/chat/completions", "http://other:9000/v1/chat/completions"},
		{"dash header", "site-api", "http://other:9000/v1/chat/completions", "http://other:9000/v1/chat/completions"},
		{"empty header value", "site_api", "", defaultEndpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set(tt.header, tt.value)
			}
			got := Resolve(h, defaultEndpoint)
			if got != tt.expected {
				t.Errorf("Resolve() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestResolveNoValidation(t *testing.T) {
	h := http.Header{}
	h.Set("site_api", "not a url at all")
	if got := Resolve(h, defaultEndpoint); got != "not a url at all" {
		t.Errorf("expected verbatim header value, got %q", got)
	}
}
