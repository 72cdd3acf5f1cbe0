package domain

// =============================================================================
// Deployment Scope
// =============================================================================

// Scope identifies where a composition lands: the project, the target
// environment, and the tags every provided resource should carry. It is
// handed to component factories and provider creation calls unchanged.
type Scope struct {
	Project     string            `json:"project"`
	Environment string            `json:"environment"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// MergedTags returns the scope tags plus extra, with extra winning on key
// collisions. The receiver is never mutated.
func (s Scope) MergedTags(extra map[string]string) map[string]string {
	merged := make(map[string]string, len(s.Tags)+len(extra))
	for k, v := range s.Tags {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
