package types

// ActivityStatus defines the possible statuses of an activity record.
type ActivityStatus string

const (
	// ActivitySuccess indicates the interaction completed successfully.
	ActivitySuccess ActivityStatus = "success"
	// ActivityFailed indicates the interaction was attempted but failed.
	ActivityFailed ActivityStatus = "failed"
	// ActivityPending indicates the interaction was submitted but its
	// outcome is not yet known.
	ActivityPending ActivityStatus = "pending"
)
