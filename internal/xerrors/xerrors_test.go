package xerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"registry", New(KindRegistry, "registry", "transport error"), true},
		{"empty result", New(KindEmptyRegistryResult, "registry", "zero records"), true},
		{"no survivors", New(KindNoSurvivors, "preprocess", "all dropped"), true},
		{"validation", New(KindValidation, "preprocess", "missing url"), false},
		{"probe timeout", New(KindProbeTimeout, "version", "timed out"), false},
		{"blocklist hit", New(KindBlocklistHit, "poi", "forbidden poi"), false},
		{"plain error", errors.New("plain"), false},
		{"wrapped fatal", fmt.Errorf("outer: %w", New(KindNoSurvivors, "x", "y")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsKindSeesThroughWrapping(t *testing.T) {
	inner := New(KindProbeParse, "progress", "bad json")
	wrapped := fmt.Errorf("probe failed: %w", inner)

	if !IsKind(wrapped, KindProbeParse) {
		t.Error("expected IsKind to see through fmt.Errorf wrapping")
	}
	if IsKind(wrapped, KindProbeTimeout) {
		t.Error("expected the wrong kind to not match")
	}
}

func TestErrorsIsAgainstSentinels(t *testing.T) {
	err := Wrap(KindRegistry, "registry", "transport error", errors.New("eof"))
	if !errors.Is(err, ErrRegistry) {
		t.Error("expected errors.Is to match the registry sentinel")
	}
	if errors.Is(err, ErrNoSurvivors) {
		t.Error("expected errors.Is to reject a different kind's sentinel")
	}
}

func TestErrorStringIncludesComponentAndCause(t *testing.T) {
	err := Wrap(KindProbeTransport, "poi", "probe request failed", errors.New("connection refused"))
	got := err.Error()
	want := "poi: probe request failed: connection refused"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if unwrapped := errors.Unwrap(err); unwrapped == nil || unwrapped.Error() != "connection refused" {
		t.Errorf("Unwrap() = %v", unwrapped)
	}
}

func TestKindStrings(t *testing.T) {
	if KindNoSurvivors.String() != "NoSurvivors" {
		t.Errorf("unexpected kind string %q", KindNoSurvivors)
	}
	if KindProbeTransport.String() != "ProbeTransportError" {
		t.Errorf("unexpected kind string %q", KindProbeTransport)
	}
}
