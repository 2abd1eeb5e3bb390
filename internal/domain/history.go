package domain

import "time"

// Heartbeat health bands, classified from the interval since the
// previous heartbeat.
type HeartbeatHealth string

const (
	HealthNormal   HeartbeatHealth = "normal"
	HealthWarning  HeartbeatHealth = "warning"
	HealthAbnormal HeartbeatHealth = "abnormal"
)

// ClassifyHeartbeat maps an inter-heartbeat interval to a health band:
// normal up to 35s, warning up to 60s, abnormal beyond.
func ClassifyHeartbeat(interval time.Duration) HeartbeatHealth {
	switch {
	case interval <= 35*time.Second:
		return HealthNormal
	case interval <= 60*time.Second:
		return HealthWarning
	default:
		return HealthAbnormal
	}
}

// HeartbeatEvent is one row of the append-only heartbeat stream.
// IntervalSeconds is nil for the first heartbeat ever observed.
type HeartbeatEvent struct {
	ID              uint            `json:"id" gorm:"primaryKey"`
	ChargerID       string          `json:"charger_id" gorm:"size:64;index:idx_heartbeat_charger_ts"`
	Timestamp       time.Time       `json:"timestamp" gorm:"index:idx_heartbeat_charger_ts"`
	IntervalSeconds *float64        `json:"interval_seconds,omitempty"`
	Health          HeartbeatHealth `json:"health" gorm:"size:16"`
}

func (HeartbeatEvent) TableName() string {
	return "heartbeat_history"
}

// StatusEvent is one row of the append-only status stream. DurationSeconds
// is how long PreviousStatus was held; nil when there was no prior event.
type StatusEvent struct {
	ID              uint          `json:"id" gorm:"primaryKey"`
	ChargerID       string        `json:"charger_id" gorm:"size:64;index:idx_status_charger_ts"`
	Timestamp       time.Time     `json:"timestamp" gorm:"index:idx_status_charger_ts"`
	Status          ChargerStatus `json:"status" gorm:"size:32"`
	PreviousStatus  ChargerStatus `json:"previous_status" gorm:"size:32"`
	DurationSeconds *float64      `json:"duration_seconds,omitempty"`
	ErrorCode       string        `json:"error_code,omitempty" gorm:"size:64"`
}

func (StatusEvent) TableName() string {
	return "status_history"
}
