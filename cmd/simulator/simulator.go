package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SimulatorConfig describes the simulated charge point.
type SimulatorConfig struct {
	ServerURL       string
	ChargerID       string
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	ChargingRateKW  float64
}

type message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Simulator speaks the {action, payload} protocol over a websocket,
// answering server-initiated calls positionally: while one of our own
// calls is in flight the next inbound frame is its response.
type Simulator struct {
	cfg SimulatorConfig
	log *zap.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex
	callMu  sync.Mutex
	pending chan []byte
	closed  chan struct{}
	once    sync.Once

	mu            sync.Mutex
	awaiting      bool
	transactionID int64
	meterWh       int64
	heartbeatSecs int
}

func NewSimulator(cfg SimulatorConfig, log *zap.Logger) *Simulator {
	return &Simulator{
		cfg:           cfg,
		log:           log,
		pending:       make(chan []byte, 1),
		closed:        make(chan struct{}),
		meterWh:       int64(rand.Intn(10000)),
		heartbeatSecs: 30,
	}
}

// Connect dials the server, boots, and starts the heartbeat loop.
func (s *Simulator) Connect() error {
	dialer := websocket.Dialer{Subprotocols: []string{"ocpp1.6"}}
	url := fmt.Sprintf("%s?id=%s", s.cfg.ServerURL, s.cfg.ChargerID)
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	s.conn = conn

	go s.readLoop()

	boot, err := s.call("BootNotification", map[string]any{
		"chargePointVendor":       s.cfg.Vendor,
		"chargePointModel":        s.cfg.Model,
		"chargePointSerialNumber": s.cfg.SerialNumber,
		"firmwareVersion":         s.cfg.FirmwareVersion,
	})
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	var resp struct {
		Status   string `json:"status"`
		Interval int    `json:"interval"`
	}
	if err := json.Unmarshal(boot, &resp); err != nil {
		return fmt.Errorf("boot response: %w", err)
	}
	if resp.Interval > 0 {
		s.mu.Lock()
		s.heartbeatSecs = resp.Interval
		s.mu.Unlock()
	}
	s.log.Info("Booted",
		zap.String("status", resp.Status),
		zap.Int("heartbeat_interval", resp.Interval),
	)

	s.SendStatus(1, "Available", "")
	go s.heartbeatLoop()
	return nil
}

func (s *Simulator) Stop() {
	s.once.Do(func() {
		close(s.closed)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

func (s *Simulator) heartbeatLoop() {
	s.mu.Lock()
	interval := time.Duration(s.heartbeatSecs) * time.Second
	s.mu.Unlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.SendHeartbeat()
		}
	}
}

func (s *Simulator) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			default:
				s.log.Warn("Connection lost", zap.Error(err))
				s.Stop()
			}
			return
		}

		s.mu.Lock()
		awaiting := s.awaiting
		s.mu.Unlock()
		if awaiting {
			select {
			case s.pending <- data:
			default:
			}
			continue
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Action == "" {
			s.log.Warn("Unparseable server frame", zap.ByteString("frame", data))
			continue
		}
		s.reply(s.handleCall(msg))
	}
}

// handleCall answers a server-initiated call.
func (s *Simulator) handleCall(msg message) any {
	s.log.Info("Server call", zap.String("action", msg.Action))

	switch msg.Action {
	case "RemoteStartTransaction":
		var req struct {
			IDTag       string `json:"idTag"`
			ConnectorID int    `json:"connectorId"`
		}
		json.Unmarshal(msg.Payload, &req)
		go s.StartCharging(req.ConnectorID, req.IDTag)
		return map[string]string{"status": "Accepted"}

	case "RemoteStopTransaction":
		go s.StopCharging()
		return map[string]string{"status": "Accepted"}

	case "Reset":
		go func() {
			s.StopCharging()
			s.SendStatus(1, "Available", "")
		}()
		return map[string]string{"status": "Accepted"}

	case "GetConfiguration":
		s.mu.Lock()
		heartbeat := s.heartbeatSecs
		s.mu.Unlock()
		return map[string]any{
			"configurationKey": []map[string]any{
				{"key": "HeartbeatInterval", "readonly": false, "value": strconv.Itoa(heartbeat)},
				{"key": "MeterValueSampleInterval", "readonly": false, "value": "60"},
			},
		}

	case "UnlockConnector", "ChangeAvailability", "ChangeConfiguration",
		"ClearCache", "TriggerMessage", "UpdateFirmware", "GetDiagnostics":
		return map[string]string{"status": "Accepted"}

	default:
		return map[string]string{"status": "NotSupported"}
	}
}

// StartCharging opens a transaction and begins pushing meter values.
func (s *Simulator) StartCharging(connectorID int, idTag string) {
	if connectorID <= 0 {
		connectorID = 1
	}
	if idTag == "" {
		idTag = "SIM-TAG"
	}

	s.mu.Lock()
	if s.transactionID != 0 {
		s.mu.Unlock()
		s.log.Warn("Already charging")
		return
	}
	meterStart := s.meterWh
	s.mu.Unlock()

	s.SendStatus(connectorID, "Preparing", "")
	resp, err := s.call("StartTransaction", map[string]any{
		"connectorId": connectorID,
		"idTag":       idTag,
		"meterStart":  meterStart,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.log.Error("StartTransaction failed", zap.Error(err))
		return
	}
	var started struct {
		TransactionID int64 `json:"transactionId"`
	}
	json.Unmarshal(resp, &started)

	s.mu.Lock()
	s.transactionID = started.TransactionID
	s.mu.Unlock()
	s.log.Info("Charging started", zap.Int64("transaction_id", started.TransactionID))

	s.SendStatus(connectorID, "Charging", "")
	go s.meterLoop(connectorID, started.TransactionID)
}

func (s *Simulator) meterLoop(connectorID int, txID int64) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.transactionID != txID {
				s.mu.Unlock()
				return
			}
			// One minute at the configured rate.
			s.meterWh += int64(s.cfg.ChargingRateKW * 1000 / 60)
			wh := s.meterWh
			s.mu.Unlock()
			s.SendMeterValue(connectorID, txID, wh)
		}
	}
}

// StopCharging closes the ongoing transaction, if any.
func (s *Simulator) StopCharging() {
	s.mu.Lock()
	txID := s.transactionID
	s.transactionID = 0
	meterStop := s.meterWh
	s.mu.Unlock()
	if txID == 0 {
		return
	}

	_, err := s.call("StopTransaction", map[string]any{
		"transactionId": txID,
		"meterStop":     meterStop,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.log.Error("StopTransaction failed", zap.Error(err))
		return
	}
	s.log.Info("Charging stopped", zap.Int64("transaction_id", txID))
	s.SendStatus(1, "Available", "")
}

func (s *Simulator) SendHeartbeat() {
	if _, err := s.call("Heartbeat", map[string]any{}); err != nil {
		s.log.Warn("Heartbeat failed", zap.Error(err))
	}
}

func (s *Simulator) SendStatus(connectorID int, status, errorCode string) {
	payload := map[string]any{
		"connectorId": connectorID,
		"status":      status,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	if errorCode != "" {
		payload["errorCode"] = errorCode
	}
	if _, err := s.call("StatusNotification", payload); err != nil {
		s.log.Warn("StatusNotification failed", zap.Error(err))
	}
}

func (s *Simulator) SendMeterValue(connectorID int, txID, wh int64) {
	payload := map[string]any{
		"connectorId":   connectorID,
		"transactionId": txID,
		"meterValue": []map[string]any{{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"sampledValue": []map[string]any{{
				"value":     strconv.FormatInt(wh, 10),
				"measurand": "Energy.Active.Import.Register",
				"unit":      "Wh",
			}},
		}},
	}
	if _, err := s.call("MeterValues", payload); err != nil {
		s.log.Warn("MeterValues failed", zap.Error(err))
	}
}

// call sends one frame and waits for the positional response.
func (s *Simulator) call(action string, payload any) (json.RawMessage, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	frame, _ := json.Marshal(message{Action: action, Payload: raw})

	s.mu.Lock()
	s.awaiting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.awaiting = false
		s.mu.Unlock()
		select {
		case <-s.pending:
		default:
		}
	}()

	s.writeMu.Lock()
	err = s.conn.WriteMessage(websocket.TextMessage, frame)
	s.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(10 * time.Second)
	defer timer.Stop()
	select {
	case data := <-s.pending:
		return data, nil
	case <-timer.C:
		return nil, fmt.Errorf("no response to %s", action)
	case <-s.closed:
		return nil, fmt.Errorf("connection closed")
	}
}

func (s *Simulator) reply(result any) {
	out, err := json.Marshal(result)
	if err != nil {
		return
	}
	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.TextMessage, out)
	s.writeMu.Unlock()
}

// RunInteractive reads commands from stdin until quit or EOF.
func (s *Simulator) RunInteractive() {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "start":
			connector := 1
			if len(fields) > 1 {
				connector, _ = strconv.Atoi(fields[1])
			}
			s.StartCharging(connector, "SIM-TAG")
		case "stop":
			s.StopCharging()
		case "status":
			if len(fields) < 2 {
				fmt.Println("usage: status <Available|Charging|Faulted|...>")
				continue
			}
			s.SendStatus(1, fields[1], "")
		case "meter":
			if len(fields) < 2 {
				fmt.Println("usage: meter <wh>")
				continue
			}
			wh, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				fmt.Println("meter value must be an integer")
				continue
			}
			s.mu.Lock()
			s.meterWh = wh
			txID := s.transactionID
			s.mu.Unlock()
			s.SendMeterValue(1, txID, wh)
		case "heartbeat":
			s.SendHeartbeat()
		case "fault":
			s.SendStatus(1, "Faulted", "GroundFailure")
		case "quit", "exit":
			s.Stop()
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}
