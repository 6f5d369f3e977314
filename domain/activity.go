package domain

// Activity actions.
const (
	ActivityTaskAdded     = "task-added"
	ActivityTaskUpdated   = "task-updated"
	ActivityTaskDeleted   = "task-deleted"
	ActivityTaskMoved     = "task-moved"
	ActivityTagAdded      = "tag-added"
	ActivityTagRemoved    = "tag-removed"
	ActivityMemberAdded   = "member-added"
	ActivityMemberRemoved = "member-removed"
	ActivityRoleChanged   = "role-changed"
	ActivityAgencyCreated = "agency-created"
	ActivityAgencyDeleted = "agency-deleted"
	ActivityStatusSet     = "agency-status-set"
)

// ActivityEvent records one applied mutation for async consumers (audit
// trail, notifications). Delivery is best effort and never blocks the
// mutation that produced it.
type ActivityEvent struct {
	ID        string `json:"id"`
	AgencyID  string `json:"agencyId"`
	ActorID   string `json:"actorId"`
	Action    string `json:"action"`
	EntityID  string `json:"entityId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
