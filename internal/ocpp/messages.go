package ocpp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/seu-repo/ocpp-csms/internal/domain"
)

// Message is the wire envelope shared by every transport. This is a
// deliberate simplification of the OCPP-J four-element CALL framing:
// chargers on this platform speak `{action, payload}` objects and the
// websocket transport correlates responses positionally. Documented as a
// private protocol variant.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
	From    string          `json:"from,omitempty"`
}

// Decode parses a raw frame into a Message, rejecting frames without an
// action name.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed frame: %v", domain.ErrProtocolViolation, err)
	}
	if strings.TrimSpace(msg.Action) == "" {
		return nil, fmt.Errorf("%w: missing action", domain.ErrProtocolViolation)
	}
	return &msg, nil
}

// OCPP timestamps are RFC3339 in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
}

type BootNotificationResponse struct {
	Status      string `json:"status"`
	CurrentTime string `json:"currentTime"`
	Interval    int    `json:"interval"`
}

type HeartbeatResponse struct {
	CurrentTime string `json:"currentTime"`
}

type StatusNotificationRequest struct {
	ConnectorID int    `json:"connectorId"`
	Status      string `json:"status"`
	ErrorCode   string `json:"errorCode,omitempty"`
	Info        string `json:"info,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type AuthorizeRequest struct {
	IDTag string `json:"idTag"`
}

type IDTagInfo struct {
	Status string `json:"status"`
}

type AuthorizeResponse struct {
	IDTagInfo IDTagInfo `json:"idTagInfo"`
}

type StartTransactionRequest struct {
	ConnectorID   int    `json:"connectorId"`
	IDTag         string `json:"idTag"`
	MeterStart    int64  `json:"meterStart"`
	Timestamp     string `json:"timestamp,omitempty"`
	TransactionID int64  `json:"transactionId,omitempty"`
	ReservationID int    `json:"reservationId,omitempty"`
}

type StartTransactionResponse struct {
	TransactionID int64     `json:"transactionId"`
	IDTagInfo     IDTagInfo `json:"idTagInfo"`
}

type ConcurrentTxResponse struct {
	Status        string `json:"status"`
	TransactionID int64  `json:"transactionId"`
}

type StopTransactionRequest struct {
	TransactionID int64  `json:"transactionId,omitempty"`
	IDTag         string `json:"idTag,omitempty"`
	MeterStop     *int64 `json:"meterStop,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type StopTransactionResponse struct {
	Stopped       bool      `json:"stopped"`
	TransactionID int64     `json:"transactionId"`
	IDTagInfo     IDTagInfo `json:"idTagInfo"`
}

type SampledValue struct {
	Value     string `json:"value"`
	Measurand string `json:"measurand,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Context   string `json:"context,omitempty"`
}

type MeterValueEntry struct {
	Timestamp    string         `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

type MeterValuesRequest struct {
	ConnectorID   int               `json:"connectorId"`
	TransactionID int64             `json:"transactionId,omitempty"`
	MeterValue    []MeterValueEntry `json:"meterValue"`
}

type FirmwareStatusNotificationRequest struct {
	Status string `json:"status"`
}

type DiagnosticsStatusNotificationRequest struct {
	Status string `json:"status"`
}

type DataTransferRequest struct {
	VendorID  string          `json:"vendorId"`
	MessageID string          `json:"messageId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type DataTransferResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type UnknownActionResponse struct {
	Error  string `json:"error"`
	Action string `json:"action"`
}

// EnergyMeterWh extracts the cumulative Energy.Active.Import.Register
// reading in Wh from the nested meterValue structure. A sampled value
// without a measurand is treated as the energy register, which is what
// most single-register chargers send. Returns false when no usable
// reading is present.
func (r *MeterValuesRequest) EnergyMeterWh() (int64, bool) {
	var (
		found bool
		wh    int64
	)
	for _, entry := range r.MeterValue {
		for _, sv := range entry.SampledValue {
			if sv.Measurand != "" && sv.Measurand != "Energy.Active.Import.Register" {
				continue
			}
			var v float64
			if _, err := fmt.Sscanf(strings.TrimSpace(sv.Value), "%f", &v); err != nil {
				continue
			}
			if sv.Unit == "kWh" {
				v *= 1000
			}
			wh = int64(v)
			found = true
		}
	}
	return wh, found
}
