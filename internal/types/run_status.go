package types

// RunStatus defines the overall outcome of one orchestrator cycle.
type RunStatus string

const (
	// RunSuccess means every attempted activity succeeded.
	RunSuccess RunStatus = "success"
	// RunPartial means the cycle completed but some activities failed.
	RunPartial RunStatus = "partial"
	// RunFailed means no activity in the cycle succeeded.
	RunFailed RunStatus = "failed"
)
