package stage

import (
	"errors"
	"testing"

	"renote/internal/services"
)

func TestParseEnvelope_Valid(t *testing.T) {
	raw := `{"fingerprint":"fp-1","sources":[{"model":"transkun","path":"/s/transkun.json","format":"json","notes":12}]}`
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Fingerprint != "fp-1" {
		t.Fatalf("unexpected fingerprint: %q", env.Fingerprint)
	}
	if len(env.Sources) != 1 || env.Sources[0].Model != "transkun" {
		t.Fatalf("unexpected sources: %+v", env.Sources)
	}
}

func TestParseEnvelope_Empty(t *testing.T) {
	env, err := ParseEnvelope("")
	if err != nil {
		t.Fatalf("unexpected error for empty input: %v", err)
	}
	if env.Fingerprint != "" {
		t.Fatalf("expected empty envelope for empty input")
	}
}

func TestParseEnvelope_Invalid(t *testing.T) {
	_, err := ParseEnvelope("{invalid json")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
}
