package types

// TimeUnit defines the units for pacing delays.
type TimeUnit string

const (
	// TimeUnitSeconds represents seconds.
	TimeUnitSeconds TimeUnit = "seconds"
	// TimeUnitMinutes represents minutes.
	TimeUnitMinutes TimeUnit = "minutes"
)
