// Package history appends to the heartbeat and status event streams and
// derives their per-event metrics (interval since previous heartbeat,
// duration the previous status was held).
package history

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/ports"
)

type Recorder struct {
	repo ports.HistoryRepository
	log  *zap.Logger
}

func NewRecorder(repo ports.HistoryRepository, log *zap.Logger) ports.HistoryRecorder {
	return &Recorder{repo: repo, log: log}
}

// RecordHeartbeat appends one heartbeat event. The interval and health
// band are derived from the previous event; the very first heartbeat has
// no interval and counts as normal.
func (r *Recorder) RecordHeartbeat(ctx context.Context, charger *domain.Charger, at time.Time) (*domain.HeartbeatEvent, error) {
	ev := &domain.HeartbeatEvent{
		ChargerID: charger.ID,
		Timestamp: at,
		Health:    domain.HealthNormal,
	}

	prev, err := r.repo.LastHeartbeat(ctx, charger.ID)
	if err != nil {
		r.log.Warn("Failed to load previous heartbeat",
			zap.String("charger_id", charger.ID),
			zap.Error(err),
		)
	}
	if prev != nil {
		interval := at.Sub(prev.Timestamp)
		secs := interval.Seconds()
		ev.IntervalSeconds = &secs
		ev.Health = domain.ClassifyHeartbeat(interval)
	}

	charger.TouchSeen(at)
	if err := r.repo.AppendHeartbeat(ctx, ev, charger); err != nil {
		return nil, err
	}
	return ev, nil
}

// RecordStatusChange appends one status event carrying how long the
// previous status was held. The charger row is updated in the same
// persistence transaction.
func (r *Recorder) RecordStatusChange(ctx context.Context, charger *domain.Charger, newStatus domain.ChargerStatus, errorCode string, at time.Time) (*domain.StatusEvent, error) {
	ev := &domain.StatusEvent{
		ChargerID:      charger.ID,
		Timestamp:      at,
		Status:         newStatus,
		PreviousStatus: charger.Status,
		ErrorCode:      errorCode,
	}

	prev, err := r.repo.LastStatus(ctx, charger.ID)
	if err != nil {
		r.log.Warn("Failed to load previous status event",
			zap.String("charger_id", charger.ID),
			zap.Error(err),
		)
	}
	if prev != nil {
		held := at.Sub(prev.Timestamp).Seconds()
		if held >= 0 {
			ev.DurationSeconds = &held
		}
	}

	charger.Status = newStatus
	charger.TouchSeen(at)
	if err := r.repo.AppendStatus(ctx, ev, charger); err != nil {
		return nil, err
	}
	return ev, nil
}

// LogProtocolError is fire-and-forget: a failed write must never block a
// protocol response.
func (r *Recorder) LogProtocolError(ctx context.Context, chargerID, action, code, message string, payload []byte) {
	entry := &domain.OCPPErrorLog{
		ChargerID:      chargerID,
		Action:         action,
		ErrorCode:      code,
		ErrorMessage:   message,
		RequestPayload: payload,
		Timestamp:      time.Now(),
	}
	if err := r.repo.AppendErrorLog(ctx, entry); err != nil {
		r.log.Warn("Failed to persist protocol error",
			zap.String("charger_id", chargerID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
