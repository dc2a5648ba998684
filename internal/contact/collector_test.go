package contact

import (
	"errors"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare address", "jordan@acme.com", "jordan@acme.com"},
		{"embedded in sentence", "sure, it's jordan@acme.com thanks", "jordan@acme.com"},
		{"uppercase normalized", "Jordan.Lee@Acme.COM", "jordan.lee@acme.com"},
		{"trailing punctuation", "jordan@acme.com.", "jordan@acme.com"},
		{"plus tag", "jordan+jobs@acme.co.uk", "jordan+jobs@acme.co.uk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateEmail(tt.input)
			if err != nil {
				t.Fatalf("ValidateEmail(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ValidateEmail(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateEmailRejects(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"empty", "", "empty input"},
		{"no at sign", "jordan-at-acme.com", "missing @"},
		{"no domain dot", "jordan@acme", "domain has no dot"},
		{"plain text", "I'd rather talk first", "missing @"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateEmail(tt.input)
			if err == nil {
				t.Fatalf("ValidateEmail(%q) accepted", tt.input)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error type %T, want *ValidationError", err)
			}
			if verr.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", verr.Reason, tt.reason)
			}
		})
	}
}

func TestExtractName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"my name is", "my name is Jordan Lee", "Jordan Lee", true},
		{"i'm", "I'm Sam", "Sam", true},
		{"this is", "this is Priya Raman from Acme", "Priya Raman from Acme", true},
		{"bare name", "Jordan", "Jordan", true},
		{"bare full name", "Jordan Lee", "Jordan Lee", true},
		{"apostrophe", "my name is D'Angelo", "D'Angelo", true},
		{"decline", "no thanks, just send it", "", false},
		{"anonymous", "I'd prefer to stay anonymous", "", false},
		{"question", "why do you need that?", "", false},
		{"empty", "  ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractName(tt.input)
			if ok != tt.ok {
				t.Fatalf("ExtractName(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ExtractName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
