package domain

import "errors"

var (
	// ErrNoEligibleAgents is returned when no agent may receive a lead for a source.
	ErrNoEligibleAgents = errors.New("no eligible agents")
	// ErrInvalidTransition is returned for a lead status change outside the lifecycle.
	ErrInvalidTransition = errors.New("invalid lead status transition")
	// ErrUnknownSource is returned for a lead source that is not configured.
	ErrUnknownSource = errors.New("unknown lead source")
)
