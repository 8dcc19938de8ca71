package stage

import (
	"renote/internal/services"
	"renote/internal/session"
)

// ParseEnvelope parses a persisted session envelope string.
// On failure it returns a services.ErrValidation suitable for stage Execute methods.
func ParseEnvelope(raw string) (session.Envelope, error) {
	env, err := session.Parse(raw)
	if err != nil {
		return session.Envelope{}, services.Wrap(
			services.ErrValidation, "stage", "parse session envelope",
			"Session envelope missing or invalid; rerun loading", err)
	}
	return env, nil
}
