package domain

import (
	"fmt"
	"math"
	"time"
)

type TransactionStatus string

const (
	TxOngoing   TransactionStatus = "ongoing"
	TxCompleted TransactionStatus = "completed"
	TxCancelled TransactionStatus = "cancelled"
)

// Transaction is the protocol-level record of one charging event
// (StartTransaction → StopTransaction). The surrogate ID is the database
// key; TransactionID is the protocol-visible identifier echoed to the
// charger.
type Transaction struct {
	ID              uint              `json:"id" gorm:"primaryKey"`
	TransactionID   int64             `json:"transaction_id" gorm:"uniqueIndex"`
	ChargerID       string            `json:"charger_id" gorm:"size:64;index"`
	ConnectorID     int               `json:"connector_id"`
	IDTag           string            `json:"id_tag" gorm:"size:100"`
	UserID          string            `json:"user_id,omitempty" gorm:"size:64"`
	StartTime       time.Time         `json:"start_time"`
	EndTime         *time.Time        `json:"end_time,omitempty"`
	MeterStart      int64             `json:"meter_start"`
	MeterStop       *int64            `json:"meter_stop,omitempty"`
	EnergyKWh       *float64          `json:"energy_kwh,omitempty" gorm:"column:energy_kwh"`
	DurationMinutes *float64          `json:"duration_minutes,omitempty"`
	ChargingRateKW  float64           `json:"charging_rate_kw" gorm:"column:charging_rate_kw"`
	PricePerKWh     float64           `json:"price_per_kwh" gorm:"column:price_per_kwh"`
	TotalCost       *float64          `json:"total_cost,omitempty"`
	Status          TransactionStatus `json:"status" gorm:"size:16;default:ongoing;index"`
	Simulated       bool              `json:"simulated"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// OrderIDFor derives the user-facing order identifier for a protocol
// transaction id.
func OrderIDFor(transactionID int64) string {
	return fmt.Sprintf("order_%d", transactionID)
}

// Complete closes the transaction at end, deriving duration, energy and
// cost. Energy comes from the meter delta when a real final reading is
// available and ahead of meterStart; otherwise from the declared charging
// rate over the elapsed time.
func (t *Transaction) Complete(end time.Time, meterStop *int64) {
	if t.Status == TxCompleted {
		return
	}
	t.EndTime = &end

	minutes := end.Sub(t.StartTime).Minutes()
	if minutes < 0 {
		minutes = 0
	}
	t.DurationMinutes = &minutes

	var kwh float64
	if meterStop != nil && *meterStop > t.MeterStart {
		t.MeterStop = meterStop
		kwh = float64(*meterStop-t.MeterStart) / 1000.0
	} else {
		if meterStop != nil {
			t.MeterStop = meterStop
		}
		kwh = t.ChargingRateKW * minutes / 60.0
	}
	kwh = round2(kwh)
	t.EnergyKWh = &kwh

	cost := round2(kwh * t.PricePerKWh)
	t.TotalCost = &cost
	t.Status = TxCompleted
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type OrderStatus = TransactionStatus

// Order is the business-facing view of a transaction, one-to-one with it.
type Order struct {
	ID              string      `json:"id" gorm:"primaryKey;size:64"`
	TransactionID   int64       `json:"transaction_id" gorm:"uniqueIndex"`
	ChargerID       string      `json:"charger_id" gorm:"size:64;index"`
	IDTag           string      `json:"id_tag" gorm:"size:100"`
	UserID          string      `json:"user_id,omitempty" gorm:"size:64"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         *time.Time  `json:"end_time,omitempty"`
	EnergyKWh       *float64    `json:"energy_kwh,omitempty" gorm:"column:energy_kwh"`
	DurationMinutes *float64    `json:"duration_minutes,omitempty"`
	TotalCost       *float64    `json:"total_cost,omitempty"`
	Status          OrderStatus `json:"status" gorm:"size:16;default:ongoing;index"`
	Simulated       bool        `json:"simulated"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// SyncFromTransaction copies the derived fields of the owning transaction.
func (o *Order) SyncFromTransaction(t *Transaction) {
	o.EndTime = t.EndTime
	o.EnergyKWh = t.EnergyKWh
	o.DurationMinutes = t.DurationMinutes
	o.TotalCost = t.TotalCost
	o.Status = t.Status
}

// MeterValue is an append-only sample of the charger's energy register.
type MeterValue struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ChargerID     string    `json:"charger_id" gorm:"size:64;index"`
	TransactionID int64     `json:"transaction_id" gorm:"index"`
	ConnectorID   int       `json:"connector_id"`
	Timestamp     time.Time `json:"timestamp" gorm:"index"`
	ValueWh       int64     `json:"value_wh"`
	Raw           []byte    `json:"raw,omitempty" gorm:"type:jsonb"`
	CreatedAt     time.Time `json:"created_at"`
}

func (MeterValue) TableName() string {
	return "meter_values"
}
