package domain

import "time"

// AlertType enumerates the rules able to raise an alert.
type AlertType string

const (
	AlertVolumeHigh      AlertType = "volume-high"
	AlertCriticalContent AlertType = "critical-content"
)

// AlertStatus tracks whether an alert still needs attention.
type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

// Alert is a notification produced by rule evaluation.
type Alert struct {
	ID           int64
	Type         AlertType
	Message      string
	CreatedAt    time.Time
	Status       AlertStatus
	ReferenceURL string
}

// ModelObservation is one surveillance snapshot of a tracked model.
type ModelObservation struct {
	ID                 int64
	ModelName          string
	Version            string
	CheckedAt          time.Time
	PerformanceSummary string
	ChangesSummary     string
}

// ModelCheck is what a verifier reports about a tracked model.
type ModelCheck struct {
	Version     string
	Performance string
	Changes     string
}

// TrackedModel pairs a local name with its upstream identifier.
type TrackedModel struct {
	Name       string
	Identifier string
}
