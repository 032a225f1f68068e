package utils

import (
	"strings"
	"testing"
)

func TestNewTokenCounter(t *testing.T) {
	tests := []struct {
		encoding string
		valid    bool
	}{
		{"gpt-4", true},
		{"gpt-3.5-turbo", true},
		{"not-a-model", false},
	}

	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			counter, err := NewTokenCounter(tt.encoding)
			if tt.valid {
				if err != nil {
					t.Errorf("NewTokenCounter(%s) failed: %v", tt.encoding, err)
				}
				if counter == nil {
					t.Errorf("NewTokenCounter(%s) returned nil counter", tt.encoding)
				}
				return
			}
			if err == nil {
				t.Errorf("NewTokenCounter(%s) succeeded, want error", tt.encoding)
			}
		})
	}
}

func TestCountTokens(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	tests := []struct {
		name      string
		text      string
		minTokens int
		maxTokens int
	}{
		{"empty", "", 0, 0},
		{"single word", "Hello", 1, 2},
		{"two words", "Hello world", 2, 3},
		{"sentence", "This is a longer sentence with more words.", 8, 12},
		{"repeated", strings.Repeat("word ", 100), 90, 110},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := counter.CountTokens(tt.text)
			if tokens < tt.minTokens || tokens > tt.maxTokens {
				t.Errorf("CountTokens(%q) = %d, want between %d and %d",
					tt.text, tokens, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestCountTokensFallback(t *testing.T) {
	counter := &TokenCounter{}

	text := strings.Repeat("a", 40)
	tokens := counter.CountTokens(text)
	if tokens != 10 {
		t.Errorf("CountTokens with nil codec = %d, want 10 (len/4)", tokens)
	}
}
