package domain

// Action identifies the mutation kind recorded in a Change.
type Action string

// Mutation kinds. ActionView and ActionExport appear only in audit trails.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionView   Action = "view"
	ActionExport Action = "export"
)

// Change captures one committed mutation. The store records a Change per
// transactional write; the hook dispatcher fans committed changes out to the
// audit trail and the sync queue after commit.
type Change struct {
	Entity EntityType `json:"entity"`
	Action Action     `json:"action"`
	ID     string     `json:"id"`
	Before any        `json:"before,omitempty"`
	After  any        `json:"after,omitempty"`
}
