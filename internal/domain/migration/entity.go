package migration

// Raw items as pulled from the source system. Pull adapters normalize the
// remote pagination idiom to (items, hasMore) so the pipeline stays
// pagination-scheme-agnostic.

type RemoteIssueType struct {
	ID          string
	Name        string
	Description string
}

type RemoteUser struct {
	UserID    string
	UserName  string
	Email     string
	FullName  string
	AvatarURL string
	OrgRole   string
}

type IssueTypePage struct {
	Items   []RemoteIssueType
	HasMore bool
}

type UserPage struct {
	Items   []RemoteUser
	HasMore bool
}

// Target-side entities.

// WorkItemType doubles as a draft (no ID) and a persisted target entity.
// At most one IsDefault and one IsEpic type may exist per project.
type WorkItemType struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	IsActive       bool   `json:"is_active"`
	IsDefault      bool   `json:"is_default,omitempty"`
	IsEpic         bool   `json:"is_epic,omitempty"`
	ExternalID     string `json:"external_id,omitempty"`
	ExternalSource string `json:"external_source,omitempty"`
}

type Member struct {
	ID          string `json:"id,omitempty"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	AvatarURL   string `json:"avatar,omitempty"`
	Role        int    `json:"role"`
}

type Project struct {
	ID                    string
	Name                  string
	IsWorkItemTypeEnabled bool
}

// PushMode selects the batch semantics of a target push call.
type PushMode string

const (
	PushModeCreate PushMode = "create"
	PushModeUpdate PushMode = "update"
)

// Mapping records the durable external->internal identifier correspondence
// for one migrated entity.
type Mapping struct {
	ExternalID string
	InternalID string
}
