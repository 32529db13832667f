package ir

// Version constants for the schedule format and the scheduler.
const (
	// ScheduleVersion is the schedule record schema version.
	ScheduleVersion = "1"

	// SchedulerVersion is the bsched scheduler version.
	SchedulerVersion = "0.1.0"
)
