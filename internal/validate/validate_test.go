package validate

import (
	"errors"
	"strings"
	"testing"

	apperr "offliner/internal/errors"
)

func TestID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple id", "movie-42", false},
		{"uuid", "b2c7a6e0-3f4b-4c93-9a1e-08f6f3a1d001", false},
		{"empty", "", true},
		{"control characters", "a\x00b", true},
		{"too long", strings.Repeat("x", 300), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrInvalidRequest) {
				t.Errorf("ID(%q) error must wrap ErrInvalidRequest", tt.id)
			}
		})
	}
}

func TestURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr bool
	}{
		{"https", "https://cdn.example.com/master.m3u8", false},
		{"http", "http://cdn.example.com/vid.mp4", false},
		{"whitespace trimmed", "  https://cdn.example.com/vid.mp4  ", false},
		{"empty", "", true},
		{"no scheme", "cdn.example.com/vid.mp4", true},
		{"wrong scheme", "ftp://cdn.example.com/vid.mp4", true},
		{"no host", "https:///vid.mp4", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := URI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Errorf("URI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrInvalidURI) {
				t.Errorf("URI(%q) error must wrap ErrInvalidURI", tt.uri)
			}
		})
	}
}

func TestRequest(t *testing.T) {
	if err := Request("id", "https://example.com/a"); err != nil {
		t.Errorf("Request() error = %v, want nil", err)
	}
	if err := Request("", "https://example.com/a"); err == nil {
		t.Error("Request() with empty id must fail")
	}
	if err := Request("id", "nope"); err == nil {
		t.Error("Request() with bad URI must fail")
	}
}
