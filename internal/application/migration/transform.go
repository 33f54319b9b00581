package migration

import (
	"fmt"
	"strings"

	domain "github.com/trackerlabs/migrate/internal/domain/migration"
)

// Member roles on the target system.
const (
	roleAdmin  = 20
	roleMember = 15
)

// ExternalID builds the composite external identifier for a migrated
// entity. The resource id is pinned into the job config before the first
// step runs, so the same inputs always yield the same identifier.
func ExternalID(projectID, resourceID, remoteID string) string {
	return fmt.Sprintf("%s_%s_%s", projectID, resourceID, remoteID)
}

// TransformIssueType maps one remote issue type onto a work item type
// draft. Pure: no I/O, deterministic for its inputs.
func TransformIssueType(resourceID, projectID, source string, raw domain.RemoteIssueType) domain.WorkItemType {
	isEpic := strings.Contains(strings.ToLower(raw.Name), "epic")

	return domain.WorkItemType{
		Name:           raw.Name,
		Description:    raw.Description,
		IsActive:       true,
		IsEpic:         isEpic,
		ExternalID:     ExternalID(projectID, resourceID, raw.ID),
		ExternalSource: source,
	}
}

// TransformUser maps one remote user onto a member draft. Org admins get
// the admin role, everyone else joins as a member.
func TransformUser(raw domain.RemoteUser) domain.Member {
	first, last := splitFullName(raw.FullName)

	role := roleMember
	if strings.Contains(strings.ToLower(raw.OrgRole), "admin") {
		role = roleAdmin
	}

	return domain.Member{
		Email:       raw.Email,
		DisplayName: raw.UserName,
		FirstName:   first,
		LastName:    last,
		AvatarURL:   raw.AvatarURL,
		Role:        role,
	}
}

func splitFullName(fullName string) (first, last string) {
	parts := strings.SplitN(strings.TrimSpace(fullName), " ", 2)
	first = parts[0]
	if len(parts) > 1 {
		last = parts[1]
	}
	return first, last
}
