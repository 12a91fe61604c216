package handler

const (
	errInternalServer = "Internal server error"

	errScheduleNotFound     = "Schedule not found"
	errScheduleNameConflict = "Schedule with this name already exists"
	errInvalidFrequency     = "Invalid frequency value or unit"
	errUnknownScraperKind   = "Unknown scraper kind"
	errExecutionInFlight    = "Schedule already has an execution in flight"

	errNotificationNotFound = "Notification not found or not pending"
)
