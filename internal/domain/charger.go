package domain

import "time"

// ChargerStatus follows the OCPP 1.6 status vocabulary, extended with
// Unknown (never booted) and Offline (transport lost).
type ChargerStatus string

const (
	StatusUnknown       ChargerStatus = "Unknown"
	StatusAvailable     ChargerStatus = "Available"
	StatusPreparing     ChargerStatus = "Preparing"
	StatusCharging      ChargerStatus = "Charging"
	StatusSuspendedEV   ChargerStatus = "SuspendedEV"
	StatusSuspendedEVSE ChargerStatus = "SuspendedEVSE"
	StatusFinishing     ChargerStatus = "Finishing"
	StatusReserved      ChargerStatus = "Reserved"
	StatusUnavailable   ChargerStatus = "Unavailable"
	StatusFaulted       ChargerStatus = "Faulted"
	StatusOffline       ChargerStatus = "Offline"
)

// ValidStatus reports whether s is part of the accepted vocabulary.
func ValidStatus(s ChargerStatus) bool {
	switch s {
	case StatusUnknown, StatusAvailable, StatusPreparing, StatusCharging,
		StatusSuspendedEV, StatusSuspendedEVSE, StatusFinishing,
		StatusReserved, StatusUnavailable, StatusFaulted, StatusOffline:
		return true
	}
	return false
}

// Charger is the persistent record of a charge point. Created on first
// BootNotification or by operator enrollment; never deleted, only
// deactivated.
type Charger struct {
	ID              string        `json:"id" gorm:"primaryKey;size:64"`
	Vendor          string        `json:"vendor" gorm:"size:255"`
	Model           string        `json:"model" gorm:"size:255"`
	SerialNumber    string        `json:"serial_number" gorm:"size:255"`
	FirmwareVersion string        `json:"firmware_version" gorm:"size:100"`
	ConnectorType   string        `json:"connector_type" gorm:"size:50;default:Type2"`
	ChargingRateKW  float64       `json:"charging_rate_kw" gorm:"column:charging_rate_kw"`
	PricePerKWh     float64       `json:"price_per_kwh" gorm:"column:price_per_kwh"`
	Latitude        *float64      `json:"latitude,omitempty"`
	Longitude       *float64      `json:"longitude,omitempty"`
	Address         string        `json:"address,omitempty" gorm:"type:text"`
	Status          ChargerStatus `json:"status" gorm:"size:32;default:Unknown;index"`
	LastSeen        *time.Time    `json:"last_seen,omitempty"`
	IsActive        bool          `json:"is_active" gorm:"default:true"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (Charger) TableName() string {
	return "chargers"
}

// TouchSeen advances LastSeen, keeping it monotonically non-decreasing.
func (c *Charger) TouchSeen(at time.Time) {
	if c.LastSeen == nil || at.After(*c.LastSeen) {
		t := at
		c.LastSeen = &t
	}
}

// ChargerConfiguration is a key/value pair reported by (or pushed to) a
// charger via GetConfiguration / ChangeConfiguration.
type ChargerConfiguration struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	ChargerID   string    `json:"charger_id" gorm:"size:64;uniqueIndex:idx_charger_config_key"`
	ConfigKey   string    `json:"config_key" gorm:"size:128;uniqueIndex:idx_charger_config_key"`
	ConfigValue string    `json:"config_value" gorm:"type:text"`
	Readonly    bool      `json:"readonly"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (ChargerConfiguration) TableName() string {
	return "charger_configurations"
}

// OCPPErrorLog records a protocol-level failure (malformed payload,
// unknown action, rejected frame) for operator diagnosis.
type OCPPErrorLog struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ChargerID      string    `json:"charger_id" gorm:"size:64;index"`
	Action         string    `json:"action" gorm:"size:64"`
	ErrorCode      string    `json:"error_code" gorm:"size:64"`
	ErrorMessage   string    `json:"error_message" gorm:"type:text"`
	RequestPayload []byte    `json:"request_payload,omitempty" gorm:"type:jsonb"`
	Timestamp      time.Time `json:"timestamp" gorm:"index"`
}

func (OCPPErrorLog) TableName() string {
	return "ocpp_error_logs"
}
