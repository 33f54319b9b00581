package featureflags

import "context"

// Static answers flag lookups from a fixed table, falling back to Default
// for unknown keys. Real flag delivery is an external collaborator; Static
// is the in-repo stand-in wired by deployments that have none.
type Static struct {
	Flags   map[string]bool
	Default bool
}

func (s Static) IsEnabled(ctx context.Context, workspaceSlug, userID, flagKey string) (bool, error) {
	if enabled, ok := s.Flags[flagKey]; ok {
		return enabled, nil
	}
	return s.Default, nil
}
