package domain

import (
	"fmt"
	"slices"
	"strings"
)

// LeadSource identifies the marketing site a lead came from.
type LeadSource string

func (s LeadSource) String() string {
	return string(s)
}

// SourceRegistry holds the configured set of known lead sources.
type SourceRegistry struct {
	sources []LeadSource
}

// NewSourceRegistry builds a registry from configured names, lower-cased and de-duplicated.
func NewSourceRegistry(names []string) *SourceRegistry {
	sources := make([]LeadSource, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		sources = append(sources, LeadSource(name))
	}
	return &SourceRegistry{sources: NormalizeSources(sources)}
}

// Parse resolves raw into a known source.
func (r *SourceRegistry) Parse(raw string) (LeadSource, error) {
	source := LeadSource(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Known(source) {
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, raw)
	}
	return source, nil
}

// Known reports whether source is configured.
func (r *SourceRegistry) Known(source LeadSource) bool {
	if r == nil {
		return false
	}
	_, found := slices.BinarySearch(r.sources, source)
	return found
}

// All returns the configured sources in ascending order.
func (r *SourceRegistry) All() []LeadSource {
	if r == nil {
		return nil
	}
	return slices.Clone(r.sources)
}
