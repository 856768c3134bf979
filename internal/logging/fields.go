package logging

// Standardized attribute keys used across components.
const (
	FieldComponent = "component"
	FieldTrackID   = "track_id"
	FieldStage     = "stage"
	FieldBatchID   = "batch_id"
	FieldEventType = "event_type"
)
