package migration

import (
	domain "github.com/trackerlabs/migrate/internal/domain/migration"
)

// TypeReconciliation partitions a page of work item type drafts against the
// current target inventory. The epic singleton never appears twice: when an
// epic already exists on the target it is patched with the draft's external
// identity and joins the update batch; when none exists the first epic draft
// of the page is created and any later epic drafts of the same page fold
// their identity into that pending create.
type TypeReconciliation struct {
	ToCreate []domain.WorkItemType
	ToUpdate []domain.WorkItemType

	// Default is the target's pre-existing default type, preserved
	// untouched and included in the page result for snapshot purposes.
	Default *domain.WorkItemType
}

// ReconcileWorkItemTypes re-derives the create/update sets from the current
// target state, which is what makes page retries idempotent: entities
// created by a previous attempt show up in existing and fall into the
// update set instead of being created again.
func ReconcileWorkItemTypes(drafts, existing []domain.WorkItemType) TypeReconciliation {
	var rec TypeReconciliation
	var epic *domain.WorkItemType

	for i := range existing {
		t := existing[i]
		if t.IsDefault && rec.Default == nil {
			d := t
			rec.Default = &d
		}
		if t.IsEpic && epic == nil {
			e := t
			epic = &e
		}
	}

	byExternal := make(map[string]domain.WorkItemType, len(existing))
	for _, t := range existing {
		if t.ExternalID != "" {
			byExternal[t.ExternalID] = t
		}
	}

	// Index of the page's epic entry in ToUpdate / ToCreate, so a later
	// epic draft on the same page overwrites rather than duplicates.
	epicUpdate, epicCreate := -1, -1

	for _, draft := range drafts {
		if draft.IsEpic {
			switch {
			case epic != nil:
				patched := *epic
				patched.ExternalID = draft.ExternalID
				patched.ExternalSource = draft.ExternalSource
				if epicUpdate >= 0 {
					rec.ToUpdate[epicUpdate] = patched
				} else {
					rec.ToUpdate = append(rec.ToUpdate, patched)
					epicUpdate = len(rec.ToUpdate) - 1
				}
			case epicCreate >= 0:
				rec.ToCreate[epicCreate].ExternalID = draft.ExternalID
				rec.ToCreate[epicCreate].ExternalSource = draft.ExternalSource
			default:
				rec.ToCreate = append(rec.ToCreate, draft)
				epicCreate = len(rec.ToCreate) - 1
			}
			continue
		}

		if match, ok := byExternal[draft.ExternalID]; ok && draft.ExternalID != "" {
			draft.ID = match.ID
			rec.ToUpdate = append(rec.ToUpdate, draft)
			continue
		}

		rec.ToCreate = append(rec.ToCreate, draft)
	}

	return rec
}

// ReconcileMembers returns the member drafts not yet present on the target
// workspace, matching by email. Members are create-only: an existing member
// is never modified by the pipeline.
func ReconcileMembers(drafts, existing []domain.Member) []domain.Member {
	byEmail := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		byEmail[m.Email] = struct{}{}
	}

	var toCreate []domain.Member
	for _, draft := range drafts {
		if _, ok := byEmail[draft.Email]; ok {
			continue
		}
		toCreate = append(toCreate, draft)
	}
	return toCreate
}
